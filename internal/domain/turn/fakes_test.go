package turn

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"taskdeck/agent-api/internal/domain/conversation"
	"taskdeck/agent-api/internal/domain/llm"
	"taskdeck/agent-api/internal/domain/retry"
	"taskdeck/agent-api/internal/domain/tool"
)

type memStore struct {
	mu            sync.Mutex
	conversations map[string]*conversation.Conversation
	messages      map[string][]conversation.Message
	historyCalls  int
	upsertErr     error
	writes        int

	// assistantAppendErr fails assistant appends only.
	assistantAppendErr error
	// holdNextRead, when set, is called once after the next history snapshot is taken.
	holdNextRead func()
}

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[string]*conversation.Conversation),
		messages:      make(map[string][]conversation.Message),
	}
}

func (s *memStore) Upsert(ctx context.Context, params conversation.UpsertParams) (*conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.writes++
	conv, ok := s.conversations[params.ID]
	if !ok {
		conv = &conversation.Conversation{ID: params.ID, CreatedAt: time.Now()}
		s.conversations[params.ID] = conv
	}
	conv.AgentType = params.AgentType
	if params.ProjectID != nil {
		conv.ProjectID = params.ProjectID
	}
	if conv.Title == "" {
		conv.Title = params.Title
	}
	conv.UpdatedAt = time.Now()
	copied := *conv
	return &copied, nil
}

func (s *memStore) GetHistory(ctx context.Context, id string) (*conversation.History, error) {
	s.mu.Lock()
	s.historyCalls++
	var history *conversation.History
	if conv, ok := s.conversations[id]; ok {
		copied := *conv
		history = &conversation.History{
			Conversation: &copied,
			Messages:     append([]conversation.Message(nil), s.messages[id]...),
		}
	} else {
		history = &conversation.History{}
	}
	hold := s.holdNextRead
	s.holdNextRead = nil
	s.mu.Unlock()

	if hold != nil {
		hold()
	}
	return history, nil
}

func (s *memStore) AppendMessage(ctx context.Context, msg *conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return conversation.ErrNotFound
	}
	if msg.Role == conversation.RoleAssistant && s.assistantAppendErr != nil {
		return s.assistantAppendErr
	}
	s.writes++
	msg.CreatedAt = time.Now()
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return nil
}

func (s *memStore) SetSummary(ctx context.Context, id, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return conversation.ErrNotFound
	}
	conv.Summary = summary
	return nil
}

func (s *memStore) log(id string) []conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conversation.Message(nil), s.messages[id]...)
}

type fixedGateway struct {
	model llm.Model
	err   error
}

func (g fixedGateway) SelectModel(ctx context.Context, requested string, usage llm.UsageClass) (llm.Model, error) {
	if g.err != nil {
		return llm.Model{}, g.err
	}
	return g.model, nil
}

// scriptedProvider answers each stream request with the chunks returned by script.
type scriptedProvider struct {
	mu       sync.Mutex
	requests []llm.ChatCompletionRequest
	script   func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error)
}

func (p *scriptedProvider) CreateChatCompletion(ctx context.Context, req llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return nil, errors.New("not used")
}

func (p *scriptedProvider) CreateChatCompletionStream(ctx context.Context, req llm.ChatCompletionRequest) (llm.Stream, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	call := len(p.requests)
	p.mu.Unlock()

	chunks, err := p.script(ctx, call, req)
	if err != nil {
		return nil, err
	}
	return &sliceStream{ctx: ctx, chunks: chunks}, nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *scriptedProvider) request(i int) llm.ChatCompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

type sliceStream struct {
	ctx    context.Context
	chunks []*llm.ChatCompletionDelta
	pos    int
}

func (s *sliceStream) Recv() (*llm.ChatCompletionDelta, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *sliceStream) Close() error { return nil }

func textChunk(text string) *llm.ChatCompletionDelta {
	return &llm.ChatCompletionDelta{Choices: []llm.ChatCompletionDeltaChoice{{Delta: llm.ChatMessage{Content: text}}}}
}

func toolChunk(index int, id, name, args string) *llm.ChatCompletionDelta {
	idx := index
	return &llm.ChatCompletionDelta{Choices: []llm.ChatCompletionDeltaChoice{{
		Delta: llm.ChatMessage{ToolCalls: []llm.ToolCall{{
			Index:    &idx,
			ID:       id,
			Function: llm.ToolFunction{Name: name, Arguments: args},
		}}},
	}}}
}

func finishChunk(reason string) *llm.ChatCompletionDelta {
	return &llm.ChatCompletionDelta{Choices: []llm.ChatCompletionDeltaChoice{{FinishReason: reason}}}
}

type recordingSink struct {
	mu     sync.Mutex
	chunks []string
	onText func(n int)
}

func (s *recordingSink) WriteText(text string) error {
	s.mu.Lock()
	s.chunks = append(s.chunks, text)
	n := len(s.chunks)
	s.mu.Unlock()
	if s.onText != nil {
		s.onText(n)
	}
	return nil
}

func (s *recordingSink) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := ""
	for _, c := range s.chunks {
		out += c
	}
	return out
}

type epicArgs struct {
	ProjectID int64  `json:"project_id" jsonschema:"required"`
	Title     string `json:"title" jsonschema:"required"`
}

type epicRecorder struct {
	mu    sync.Mutex
	calls []epicArgs
}

func (r *epicRecorder) tool() tool.Tool {
	return tool.NewFunc("create_epic", "Create an epic in a project", func(ctx context.Context, args epicArgs, exec tool.ExecContext) (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, args)
		return map[string]any{"id": len(r.calls), "title": args.Title}, nil
	})
}

func (r *epicRecorder) recorded() []epicArgs {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]epicArgs(nil), r.calls...)
}

type fixture struct {
	store    *memStore
	provider *scriptedProvider
	epics    *epicRecorder
	orch     *Orchestrator

	mu       sync.Mutex
	outcomes []Outcome
}

func newFixture(script func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error), opts ...func(*Dependencies)) *fixture {
	f := &fixture{
		store:    newMemStore(),
		provider: &scriptedProvider{script: script},
		epics:    &epicRecorder{},
	}
	tools := tool.NewSet()
	tools.Add(f.epics.tool())

	policy := retry.DefaultPolicy()
	policy.InitialDelay = time.Millisecond
	policy.MaxDelay = 5 * time.Millisecond

	deps := Dependencies{
		Store:  f.store,
		Models: fixedGateway{model: llm.Model{ID: "gpt-4o-mini", ContextLength: 128000}},
		Runner: NewRunner(f.provider, tool.NewExecutor(time.Second, nil, zerolog.Nop()), MaxSteps, policy, zerolog.Nop()),
		Profiles: map[conversation.AgentType]Profile{
			conversation.AgentProject: {Prompt: "You manage projects.", Tools: tools},
		},
		Directive: func(projectID int64) string {
			return "You are working in project " + strconv.FormatInt(projectID, 10) + "."
		},
		Recorder: func(agent conversation.AgentType, outcome Outcome, d time.Duration) {
			f.mu.Lock()
			f.outcomes = append(f.outcomes, outcome)
			f.mu.Unlock()
		},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.orch = NewOrchestrator(deps, zerolog.Nop())
	return f
}

func userTurn(id, text string, projectID *int64) PersistentTurn {
	return PersistentTurn{
		Options: Options{
			AgentType: conversation.AgentProject,
			ProjectID: projectID,
		},
		ConversationID: id,
		Message: &InboundMessage{
			Role:  conversation.RoleUser,
			Parts: conversation.TextParts(text),
		},
	}
}

func roles(messages []conversation.Message) []conversation.Role {
	out := make([]conversation.Role, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Role)
	}
	return out
}
