package pmtools

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"taskdeck/agent-api/internal/domain/tool"
)

type listProjectsArgs struct {
	Query string `json:"query,omitempty" jsonschema:"description=Optional name filter"`
}

type projectArgs struct {
	ProjectID int64 `json:"project_id" jsonschema:"required,description=Project identifier"`
}

type createEpicArgs struct {
	ProjectID   int64  `json:"project_id" jsonschema:"required"`
	Title       string `json:"title" jsonschema:"required,minLength=1"`
	Description string `json:"description,omitempty"`
}

type createStoryArgs struct {
	ProjectID   int64  `json:"project_id" jsonschema:"required"`
	Title       string `json:"title" jsonschema:"required,minLength=1"`
	Description string `json:"description,omitempty"`
	EpicID      *int64 `json:"epic_id,omitempty"`
	StoryPoints *int   `json:"story_points,omitempty" jsonschema:"minimum=0,maximum=100"`
}

type createBugArgs struct {
	ProjectID   int64  `json:"project_id" jsonschema:"required"`
	Title       string `json:"title" jsonschema:"required,minLength=1"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity,omitempty" jsonschema:"enum=low,enum=medium,enum=high,enum=critical"`
}

type createTaskArgs struct {
	ProjectID   int64  `json:"project_id" jsonschema:"required"`
	Title       string `json:"title" jsonschema:"required,minLength=1"`
	Description string `json:"description,omitempty"`
	StoryID     *int64 `json:"story_id,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
}

type listBacklogArgs struct {
	ProjectID int64  `json:"project_id" jsonschema:"required"`
	Status    string `json:"status,omitempty" jsonschema:"enum=open,enum=in_progress,enum=done"`
	Type      string `json:"type,omitempty" jsonschema:"enum=epic,enum=story,enum=bug,enum=task"`
}

type createSprintArgs struct {
	ProjectID int64  `json:"project_id" jsonschema:"required"`
	Name      string `json:"name" jsonschema:"required,minLength=1"`
	Goal      string `json:"goal,omitempty"`
	StartDate string `json:"start_date" jsonschema:"required,format=date"`
	EndDate   string `json:"end_date" jsonschema:"required,format=date"`
}

type addToSprintArgs struct {
	ProjectID int64   `json:"project_id" jsonschema:"required"`
	SprintID  int64   `json:"sprint_id" jsonschema:"required"`
	ItemIDs   []int64 `json:"item_ids" jsonschema:"required,minItems=1"`
}

type listMeetingsArgs struct {
	ProjectID int64  `json:"project_id" jsonschema:"required"`
	From      string `json:"from,omitempty" jsonschema:"format=date"`
	To        string `json:"to,omitempty" jsonschema:"format=date"`
}

type scheduleMeetingArgs struct {
	ProjectID       int64    `json:"project_id" jsonschema:"required"`
	Title           string   `json:"title" jsonschema:"required,minLength=1"`
	StartsAt        string   `json:"starts_at" jsonschema:"required,format=date-time"`
	DurationMinutes int      `json:"duration_minutes,omitempty" jsonschema:"minimum=5,maximum=480"`
	Attendees       []string `json:"attendees,omitempty"`
	Agenda          string   `json:"agenda,omitempty"`
}

func projectPath(projectID int64, rest ...string) string {
	path := "/projects/" + strconv.FormatInt(projectID, 10)
	if len(rest) > 0 {
		path += "/" + strings.Join(rest, "/")
	}
	return path
}

// Tools returns every project-management tool backed by c.
func Tools(c *Client) []tool.Tool {
	return []tool.Tool{
		tool.NewFunc("list_projects", "List the projects the user can access.",
			func(ctx context.Context, args listProjectsArgs, exec tool.ExecContext) (any, error) {
				return c.do(ctx, exec, http.MethodGet, "/projects", map[string]string{"q": args.Query}, nil)
			}),
		tool.NewFunc("get_project", "Get details of a project including its members and current sprint.",
			func(ctx context.Context, args projectArgs, exec tool.ExecContext) (any, error) {
				return c.do(ctx, exec, http.MethodGet, projectPath(args.ProjectID), nil, nil)
			}),
		tool.NewFunc("create_epic", "Create an epic in a project.",
			func(ctx context.Context, args createEpicArgs, exec tool.ExecContext) (any, error) {
				return c.do(ctx, exec, http.MethodPost, projectPath(args.ProjectID, "epics"), nil, map[string]any{
					"title":       args.Title,
					"description": args.Description,
				})
			}),
		tool.NewFunc("create_story", "Create a user story, optionally inside an epic.",
			func(ctx context.Context, args createStoryArgs, exec tool.ExecContext) (any, error) {
				return c.do(ctx, exec, http.MethodPost, projectPath(args.ProjectID, "stories"), nil, map[string]any{
					"title":        args.Title,
					"description":  args.Description,
					"epic_id":      args.EpicID,
					"story_points": args.StoryPoints,
				})
			}),
		tool.NewFunc("create_bug", "Report a bug in a project.",
			func(ctx context.Context, args createBugArgs, exec tool.ExecContext) (any, error) {
				severity := args.Severity
				if severity == "" {
					severity = "medium"
				}
				return c.do(ctx, exec, http.MethodPost, projectPath(args.ProjectID, "bugs"), nil, map[string]any{
					"title":       args.Title,
					"description": args.Description,
					"severity":    severity,
				})
			}),
		tool.NewFunc("create_task", "Create a task, optionally linked to a story.",
			func(ctx context.Context, args createTaskArgs, exec tool.ExecContext) (any, error) {
				return c.do(ctx, exec, http.MethodPost, projectPath(args.ProjectID, "tasks"), nil, map[string]any{
					"title":       args.Title,
					"description": args.Description,
					"story_id":    args.StoryID,
					"assignee":    args.Assignee,
				})
			}),
		tool.NewFunc("list_backlog", "List backlog items of a project.",
			func(ctx context.Context, args listBacklogArgs, exec tool.ExecContext) (any, error) {
				return c.do(ctx, exec, http.MethodGet, projectPath(args.ProjectID, "backlog"), map[string]string{
					"status": args.Status,
					"type":   args.Type,
				}, nil)
			}),
		tool.NewFunc("list_sprints", "List the sprints of a project.",
			func(ctx context.Context, args projectArgs, exec tool.ExecContext) (any, error) {
				return c.do(ctx, exec, http.MethodGet, projectPath(args.ProjectID, "sprints"), nil, nil)
			}),
		tool.NewFunc("create_sprint", "Create a sprint with a date range.",
			func(ctx context.Context, args createSprintArgs, exec tool.ExecContext) (any, error) {
				if args.EndDate < args.StartDate {
					return nil, fmt.Errorf("end_date %s is before start_date %s", args.EndDate, args.StartDate)
				}
				return c.do(ctx, exec, http.MethodPost, projectPath(args.ProjectID, "sprints"), nil, map[string]any{
					"name":       args.Name,
					"goal":       args.Goal,
					"start_date": args.StartDate,
					"end_date":   args.EndDate,
				})
			}),
		tool.NewFunc("add_to_sprint", "Move backlog items into a sprint.",
			func(ctx context.Context, args addToSprintArgs, exec tool.ExecContext) (any, error) {
				path := projectPath(args.ProjectID, "sprints", strconv.FormatInt(args.SprintID, 10), "items")
				return c.do(ctx, exec, http.MethodPost, path, nil, map[string]any{"item_ids": args.ItemIDs})
			}),
		tool.NewFunc("list_meetings", "List meetings of a project in an optional date range.",
			func(ctx context.Context, args listMeetingsArgs, exec tool.ExecContext) (any, error) {
				return c.do(ctx, exec, http.MethodGet, projectPath(args.ProjectID, "meetings"), map[string]string{
					"from": args.From,
					"to":   args.To,
				}, nil)
			}),
		tool.NewFunc("schedule_meeting", "Schedule a meeting for a project.",
			func(ctx context.Context, args scheduleMeetingArgs, exec tool.ExecContext) (any, error) {
				duration := args.DurationMinutes
				if duration == 0 {
					duration = 30
				}
				return c.do(ctx, exec, http.MethodPost, projectPath(args.ProjectID, "meetings"), nil, map[string]any{
					"title":            args.Title,
					"starts_at":        args.StartsAt,
					"duration_minutes": duration,
					"attendees":        args.Attendees,
					"agenda":           args.Agenda,
				})
			}),
	}
}
