package pmtools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/agent-api/internal/domain/tool"
)

type capturedRequest struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]any
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := capturedRequest{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, auth: r.Header.Get("Authorization")}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &req.body))
		}
		captured = append(captured, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func toolSet(t *testing.T, baseURL string) *tool.Set {
	t.Helper()
	reg, err := tool.NewRegistry(Tools(NewClient(baseURL, time.Second, zerolog.Nop()))...)
	require.NoError(t, err)
	set, err := reg.Select(reg.Names())
	require.NoError(t, err)
	return set
}

func invoke(t *testing.T, set *tool.Set, name string, args map[string]any, exec tool.ExecContext) (*tool.Result, error) {
	t.Helper()
	tl, ok := set.Lookup(name)
	require.True(t, ok, name)
	return tl.Invoke(context.Background(), args, exec)
}

func TestToolsCoverProjectManagementSurface(t *testing.T) {
	set := toolSet(t, "http://unused")
	for _, name := range []string{
		"list_projects", "get_project", "create_epic", "create_story", "create_bug", "create_task",
		"list_backlog", "list_sprints", "create_sprint", "add_to_sprint", "list_meetings", "schedule_meeting",
	} {
		tl, ok := set.Lookup(name)
		require.True(t, ok, name)
		assert.NotEmpty(t, tl.Description())
		assert.Equal(t, "object", tl.Schema()["type"])
	}
}

func TestCreateEpicForwardsCallerAuthorization(t *testing.T) {
	srv, captured := newServer(t, http.StatusCreated, `{"id":11,"title":"Payments"}`)
	set := toolSet(t, srv.URL)

	result, err := invoke(t, set, "create_epic", map[string]any{"project_id": 42, "title": "Payments"},
		tool.ExecContext{AuthHeader: "Bearer user-token", ConversationID: "c1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":11,"title":"Payments"}`, result.ModelContent())

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/projects/42/epics", req.path)
	assert.Equal(t, "Bearer user-token", req.auth)
	assert.Equal(t, "Payments", req.body["title"])
}

func TestListBacklogSendsOnlySetFilters(t *testing.T) {
	srv, captured := newServer(t, http.StatusOK, `[]`)
	set := toolSet(t, srv.URL)

	_, err := invoke(t, set, "list_backlog", map[string]any{"project_id": 7, "status": "open"}, tool.ExecContext{})
	require.NoError(t, err)

	require.Len(t, *captured, 1)
	assert.Equal(t, "/projects/7/backlog", (*captured)[0].path)
	assert.Equal(t, "status=open", (*captured)[0].query)
	assert.Empty(t, (*captured)[0].auth)
}

func TestAddToSprintBuildsNestedPath(t *testing.T) {
	srv, captured := newServer(t, http.StatusNoContent, ``)
	set := toolSet(t, srv.URL)

	result, err := invoke(t, set, "add_to_sprint", map[string]any{"project_id": 3, "sprint_id": 9, "item_ids": []any{1, 2}}, tool.ExecContext{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, result.ModelContent())
	assert.Equal(t, "/projects/3/sprints/9/items", (*captured)[0].path)
	assert.Equal(t, []any{float64(1), float64(2)}, (*captured)[0].body["item_ids"])
}

func TestScheduleMeetingDefaultsDuration(t *testing.T) {
	srv, captured := newServer(t, http.StatusCreated, `{"id":1}`)
	set := toolSet(t, srv.URL)

	_, err := invoke(t, set, "schedule_meeting", map[string]any{"project_id": 3, "title": "Planning", "starts_at": "2026-10-20T09:00:00Z"}, tool.ExecContext{})
	require.NoError(t, err)
	assert.Equal(t, float64(30), (*captured)[0].body["duration_minutes"])
}

func TestCreateSprintRejectsInvertedRange(t *testing.T) {
	srv, captured := newServer(t, http.StatusCreated, `{}`)
	set := toolSet(t, srv.URL)

	_, err := invoke(t, set, "create_sprint", map[string]any{
		"project_id": 3, "name": "S1", "start_date": "2026-11-01", "end_date": "2026-10-01",
	}, tool.ExecContext{})
	assert.Error(t, err)
	assert.Empty(t, *captured)
}

func TestAPIErrorsAreReturned(t *testing.T) {
	srv, _ := newServer(t, http.StatusForbidden, `{"error":"not a member"}`)
	set := toolSet(t, srv.URL)

	_, err := invoke(t, set, "get_project", map[string]any{"project_id": 5}, tool.ExecContext{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "not a member")
}
