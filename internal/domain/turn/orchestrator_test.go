package turn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/agent-api/internal/domain/conversation"
	turnerrors "taskdeck/agent-api/internal/domain/errors"
	"taskdeck/agent-api/internal/domain/llm"
	"taskdeck/agent-api/internal/domain/status"
	"taskdeck/agent-api/internal/domain/tool"
	"taskdeck/agent-api/internal/domain/upload"
)

func TestPersistentTurnBindsProjectToToolCalls(t *testing.T) {
	f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		if call == 1 {
			return []*llm.ChatCompletionDelta{
				toolChunk(0, "call_a", "create_epic", `{"title":`),
				toolChunk(0, "", "", `"Payments"}`),
				finishChunk("tool_calls"),
			}, nil
		}
		return []*llm.ChatCompletionDelta{textChunk("Created the "), textChunk("Payments epic."), finishChunk("stop")}, nil
	})

	projectID := int64(42)
	sink := &recordingSink{}
	outcome := f.orch.Execute(context.Background(), userTurn("c1", "Create an epic called Payments", &projectID), sink)

	finished, ok := outcome.(Finished)
	require.True(t, ok, "got %#v", outcome)
	assert.Equal(t, 2, finished.Steps)
	assert.Equal(t, 1, finished.ToolCalls())
	assert.Equal(t, "Created the Payments epic.", finished.Text)
	assert.Equal(t, "Created the Payments epic.", sink.text())

	calls := f.epics.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, int64(42), calls[0].ProjectID)
	assert.Equal(t, "Payments", calls[0].Title)

	log := f.store.log("c1")
	require.Len(t, log, 2)
	assert.Equal(t, []conversation.Role{conversation.RoleUser, conversation.RoleAssistant}, roles(log))
	assert.Equal(t, "Create an epic called Payments", log[0].Text())
	assert.Equal(t, "Created the Payments epic.", log[1].Text())

	system := f.provider.request(0).Messages[0]
	assert.Equal(t, llm.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "You manage projects.")
	assert.Contains(t, system.Content, "project 42")

	second := f.provider.request(1).Messages
	toolMsg := second[len(second)-1]
	assert.Equal(t, llm.RoleTool, toolMsg.Role)
	assert.Equal(t, "call_a", toolMsg.ToolCallID)
	assert.JSONEq(t, `{"id":1,"title":"Payments"}`, toolMsg.Content)

	assert.Equal(t, "Create an epic called Payments", f.store.conversations["c1"].Title)
	assert.Equal(t, int64(42), *f.store.conversations["c1"].ProjectID)
}

func TestToolOnlyTurnPersistsFallbackAcknowledgement(t *testing.T) {
	f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		if call == 1 {
			return []*llm.ChatCompletionDelta{toolChunk(0, "call_1", "create_epic", `{"title":"Infra"}`)}, nil
		}
		return []*llm.ChatCompletionDelta{finishChunk("stop")}, nil
	})

	projectID := int64(7)
	sink := &recordingSink{}
	outcome := f.orch.Execute(context.Background(), userTurn("c2", "make an infra epic", &projectID), sink)

	finished, ok := outcome.(Finished)
	require.True(t, ok)
	assert.Equal(t, FallbackAcknowledgement, finished.Text)
	assert.Equal(t, FallbackAcknowledgement, sink.text())

	log := f.store.log("c2")
	require.Len(t, log, 2)
	assert.Equal(t, FallbackAcknowledgement, log[1].Text())
}

func TestStepLoopStopsAtCap(t *testing.T) {
	f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		return []*llm.ChatCompletionDelta{toolChunk(0, "", "create_epic", `{"title":"again"}`)}, nil
	})

	projectID := int64(1)
	outcome := f.orch.Execute(context.Background(), userTurn("loop", "keep going", &projectID), nil)

	finished, ok := outcome.(Finished)
	require.True(t, ok)
	assert.Equal(t, MaxSteps, f.provider.calls())
	assert.Equal(t, MaxSteps, finished.Steps)
	assert.Len(t, f.epics.recorded(), MaxSteps)
	assert.Equal(t, FallbackAcknowledgement, finished.Text)

	last := f.provider.request(MaxSteps - 1).Messages
	assert.Equal(t, "call_19_0", last[len(last)-2].ToolCalls[0].ID)
}

func TestCancelledTurnPersistsOnlyUserMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		return []*llm.ChatCompletionDelta{textChunk("one "), textChunk("two "), textChunk("three "), textChunk("four "), textChunk("five")}, nil
	})
	sink := &recordingSink{onText: func(n int) {
		if n == 3 {
			cancel()
		}
	}}

	outcome := f.orch.Execute(ctx, userTurn("c3", "hello", nil), sink)

	assert.Equal(t, status.TurnAborted, outcome.State())
	assert.Equal(t, "one two three ", sink.text())
	log := f.store.log("c3")
	require.Len(t, log, 1)
	assert.Equal(t, conversation.RoleUser, log[0].Role)
}

func TestCancelByConversationID(t *testing.T) {
	started := make(chan struct{})
	f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	done := make(chan Outcome, 1)
	go func() {
		done <- f.orch.Execute(context.Background(), userTurn("c4", "slow one", nil), nil)
	}()

	<-started
	assert.True(t, f.orch.Cancel("c4"))
	select {
	case outcome := <-done:
		assert.Equal(t, status.TurnAborted, outcome.State())
	case <-time.After(2 * time.Second):
		t.Fatal("turn was not cancelled")
	}
	assert.False(t, f.orch.Cancel("c4"))
	assert.Len(t, f.store.log("c4"), 1)
}

func TestEmptyAnswerPersistsNothing(t *testing.T) {
	f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		return []*llm.ChatCompletionDelta{finishChunk("stop")}, nil
	})

	outcome := f.orch.Execute(context.Background(), userTurn("c5", "hi", nil), nil)

	finished, ok := outcome.(Finished)
	require.True(t, ok)
	assert.Empty(t, finished.Text)
	assert.Len(t, f.store.log("c5"), 1)
}

func TestStatelessTurnNeverTouchesStore(t *testing.T) {
	f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		return []*llm.ChatCompletionDelta{textChunk("Sprint 3 ends Friday.")}, nil
	})

	req := StatelessTurn{
		Options: Options{AgentType: conversation.AgentProject},
		Messages: []InboundMessage{
			{Role: conversation.RoleUser, Parts: conversation.TextParts("when does the sprint end?")},
			{Role: conversation.RoleAssistant, Parts: conversation.TextParts("Which sprint?")},
			{Role: conversation.RoleUser, Parts: conversation.TextParts("sprint 3")},
		},
	}
	sink := &recordingSink{}
	outcome := f.orch.Execute(context.Background(), req, sink)

	finished, ok := outcome.(Finished)
	require.True(t, ok)
	assert.Equal(t, "Sprint 3 ends Friday.", finished.Text)
	assert.Equal(t, 0, f.store.writes)
	assert.Equal(t, 0, f.store.historyCalls)

	sent := f.provider.request(0).Messages
	require.Len(t, sent, 4)
	assert.Equal(t, "sprint 3", sent[3].Content)
}

func TestFailuresBeforeModel(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		configure func(*fixture)
		wantKind  turnerrors.Kind
		wantLog   int
	}{
		{
			name:     "missing message",
			req:      PersistentTurn{Options: Options{AgentType: conversation.AgentProject}, ConversationID: "c6"},
			wantKind: turnerrors.KindInvalidRequest,
		},
		{
			name:     "missing conversation id",
			req:      PersistentTurn{Options: Options{AgentType: conversation.AgentProject}, Message: &InboundMessage{Role: conversation.RoleUser, Parts: conversation.TextParts("x")}},
			wantKind: turnerrors.KindInvalidRequest,
		},
		{
			name:     "empty stateless messages",
			req:      StatelessTurn{Options: Options{AgentType: conversation.AgentProject}},
			wantKind: turnerrors.KindInvalidRequest,
		},
		{
			name: "unknown agent",
			req: func() Request {
				r := userTurn("c6", "x", nil)
				r.AgentType = "finance"
				return r
			}(),
			wantKind: turnerrors.KindInvalidRequest,
		},
		{
			name:      "store upsert fails",
			req:       userTurn("c6", "x", nil),
			configure: func(f *fixture) { f.store.upsertErr = errors.New("connection refused") },
			wantKind:  turnerrors.KindUpstreamFailure,
		},
		{
			name: "model selection fails after user message",
			req:  userTurn("c6", "x", nil),
			configure: func(f *fixture) {
				f.orch.models = fixedGateway{err: errors.New("catalog down")}
			},
			wantKind: turnerrors.KindUpstreamFailure,
			wantLog:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
				return nil, errors.New("model must not be called")
			})
			if tt.configure != nil {
				tt.configure(f)
			}

			outcome := f.orch.Execute(context.Background(), tt.req, nil)

			failed, ok := outcome.(Failed)
			require.True(t, ok, "got %#v", outcome)
			assert.Equal(t, tt.wantKind, turnerrors.KindOf(failed.Err))
			assert.Equal(t, 0, f.provider.calls())
			assert.Len(t, f.store.log("c6"), tt.wantLog)
		})
	}
}

func TestStreamOpenIsRetried(t *testing.T) {
	f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		if call == 1 {
			return nil, turnerrors.RetryableUpstream("model.stream", errors.New("502 bad gateway"))
		}
		return []*llm.ChatCompletionDelta{textChunk("ok")}, nil
	})

	outcome := f.orch.Execute(context.Background(), userTurn("c7", "hi", nil), nil)

	require.Equal(t, status.TurnFinished, outcome.State())
	assert.Equal(t, 2, f.provider.calls())
}

func TestNonRetryableStreamErrorFailsTurn(t *testing.T) {
	f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		return nil, errors.New("invalid api key")
	})

	outcome := f.orch.Execute(context.Background(), userTurn("c8", "hi", nil), nil)

	failed, ok := outcome.(Failed)
	require.True(t, ok)
	assert.ErrorIs(t, failed.Err, turnerrors.ErrUpstreamFailure)
	assert.Equal(t, 1, f.provider.calls())
	assert.Len(t, f.store.log("c8"), 1)
}

func TestTurnsOnSameConversationAreSerialized(t *testing.T) {
	release := make(chan struct{})
	firstStarted := make(chan struct{})
	f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		last := req.Messages[len(req.Messages)-1].Content
		if last == "first" {
			close(firstStarted)
			<-release
		}
		return []*llm.ChatCompletionDelta{textChunk("re: " + last)}, nil
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.orch.Execute(context.Background(), userTurn("c9", "first", nil), nil)
	}()
	<-firstStarted
	go func() {
		defer wg.Done()
		f.orch.Execute(context.Background(), userTurn("c9", "second", nil), nil)
	}()

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, f.store.log("c9"), 1)

	close(release)
	wg.Wait()

	var texts []string
	for _, m := range f.store.log("c9") {
		texts = append(texts, m.Text())
	}
	assert.Equal(t, []string{"first", "re: first", "second", "re: second"}, texts)

	second := f.provider.request(1).Messages
	assert.Equal(t, "re: first", second[len(second)-2].Content)
}

type failingResolver struct{}

func (failingResolver) Resolve(ctx context.Context, mediaType, url string) ([]upload.Content, error) {
	return nil, errors.New("upload expired")
}

func TestFilePartsReachModelButNotLog(t *testing.T) {
	f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		return []*llm.ChatCompletionDelta{textChunk("Looks like a burndown chart.")}, nil
	})

	req := userTurn("c10", "what is this?", nil)
	req.Message.Parts = append(req.Message.Parts, conversation.FilePart{MediaType: "image/png", URL: "data:image/png;base64,iVBORw0KGgo="})
	outcome := f.orch.Execute(context.Background(), req, nil)
	require.Equal(t, status.TurnFinished, outcome.State())

	sent := f.provider.request(0).Messages
	user := sent[len(sent)-1]
	require.Len(t, user.Parts, 2)
	assert.Equal(t, llm.PartTypeImageURL, user.Parts[1].Type)

	log := f.store.log("c10")
	assert.Equal(t, conversation.Parts{conversation.TextPart{Text: "what is this?"}}, log[0].Parts)

	f2 := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		return []*llm.ChatCompletionDelta{textChunk("ok")}, nil
	}, func(d *Dependencies) { d.Uploads = failingResolver{} })

	fileOnly := userTurn("c11", "", nil)
	fileOnly.Message.Parts = conversation.Parts{conversation.FilePart{MediaType: "application/pdf", URL: "upload://9"}}
	require.Equal(t, status.TurnFinished, f2.orch.Execute(context.Background(), fileOnly, nil).State())

	sent = f2.provider.request(0).Messages
	assert.Contains(t, sent[len(sent)-1].Content, "could not be loaded")
	assert.Equal(t, conversation.FilePlaceholder, f2.store.log("c11")[0].Text())
}

type searchArgs struct {
	Query string `json:"query"`
}

type staticSource struct {
	tools []tool.Tool
	err   error
}

func (s staticSource) ListTools(ctx context.Context) ([]tool.Tool, error) {
	return s.tools, s.err
}

func TestWebSearchToolsAreOptIn(t *testing.T) {
	search := tool.NewFunc("web_search", "Search the web", func(ctx context.Context, args searchArgs, exec tool.ExecContext) (any, error) {
		return []string{"result"}, nil
	})

	f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		return []*llm.ChatCompletionDelta{textChunk("ok")}, nil
	}, func(d *Dependencies) { d.WebSearch = staticSource{tools: []tool.Tool{search}} })

	plain := userTurn("c12", "hi", nil)
	f.orch.Execute(context.Background(), plain, nil)

	withSearch := userTurn("c12", "search please", nil)
	withSearch.WebSearchEnabled = true
	f.orch.Execute(context.Background(), withSearch, nil)

	names := func(defs []llm.ToolDefinition) []string {
		var out []string
		for _, d := range defs {
			out = append(out, d.Function.Name)
		}
		return out
	}
	assert.Equal(t, []string{"create_epic"}, names(f.provider.request(0).Tools))
	assert.Equal(t, []string{"create_epic", "web_search"}, names(f.provider.request(1).Tools))
	assert.Equal(t, 1, f.orch.profiles[conversation.AgentProject].Tools.Len())
}

func TestHistoryReturnsPlaceholderForUnseenID(t *testing.T) {
	f := newFixture(nil)

	history, err := f.orch.History(context.Background(), conversation.AgentSprint, "never-seen")
	require.NoError(t, err)
	assert.Equal(t, "never-seen", history.Conversation.ID)
	assert.Equal(t, conversation.AgentSprint, history.Conversation.AgentType)
	assert.Nil(t, history.Conversation.ProjectID)
	assert.NotNil(t, history.Messages)
	assert.Empty(t, history.Messages)

	_, err = f.orch.History(context.Background(), conversation.AgentSprint, "  ")
	assert.ErrorIs(t, err, turnerrors.ErrInvalidRequest)
}

func TestRecorderSeesEveryOutcome(t *testing.T) {
	f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		return []*llm.ChatCompletionDelta{textChunk(strings.Repeat("a", 3))}, nil
	})

	f.orch.Execute(context.Background(), userTurn("c13", "hi", nil), nil)
	f.orch.Execute(context.Background(), PersistentTurn{}, nil)

	require.Len(t, f.outcomes, 2)
	assert.Equal(t, status.TurnFinished, f.outcomes[0].State())
	assert.Equal(t, status.TurnFailed, f.outcomes[1].State())
}

func TestTurnSeesReplyOfPreviousTurnDespiteSharedRead(t *testing.T) {
	readHeld := make(chan struct{})
	releaseRead := make(chan struct{})
	readDone := make(chan *conversation.History, 1)

	var f *fixture
	f = newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		if call == 1 {
			// A history read starts while the first turn streams and stays in flight.
			f.store.mu.Lock()
			f.store.holdNextRead = func() {
				close(readHeld)
				<-releaseRead
			}
			f.store.mu.Unlock()
			go func() {
				h, _ := f.orch.History(context.Background(), conversation.AgentProject, "shared")
				readDone <- h
			}()
			<-readHeld
			return []*llm.ChatCompletionDelta{textChunk("answer A")}, nil
		}
		return []*llm.ChatCompletionDelta{textChunk("answer B")}, nil
	})

	first := f.orch.Execute(context.Background(), userTurn("shared", "question A", nil), nil)
	require.IsType(t, Finished{}, first)
	require.Len(t, f.store.log("shared"), 2)

	secondDone := make(chan Outcome, 1)
	go func() {
		secondDone <- f.orch.Execute(context.Background(), userTurn("shared", "question B", nil), nil)
	}()

	var second Outcome
	select {
	case second = <-secondDone:
	case <-time.After(500 * time.Millisecond):
	}
	close(releaseRead)
	if second == nil {
		second = <-secondDone
	}
	stale := <-readDone

	require.IsType(t, Finished{}, second)
	var sent []string
	for _, m := range f.provider.request(1).Messages {
		sent = append(sent, m.Role+":"+m.Content)
	}
	assert.Contains(t, sent, "assistant:answer A")
	assert.Contains(t, sent, "user:question B")
	assert.Len(t, stale.Messages, 1)

	fresh, err := f.orch.History(context.Background(), conversation.AgentProject, "shared")
	require.NoError(t, err)
	assert.Len(t, fresh.Messages, 4)
}

func TestAssistantPersistFailureKeepsFinishedOutcome(t *testing.T) {
	f := newFixture(func(ctx context.Context, call int, req llm.ChatCompletionRequest) ([]*llm.ChatCompletionDelta, error) {
		return []*llm.ChatCompletionDelta{textChunk("Sprint "), textChunk("created."), finishChunk("stop")}, nil
	})
	f.store.assistantAppendErr = errors.New("disk full")

	sink := &recordingSink{}
	outcome := f.orch.Execute(context.Background(), userTurn("c-persist", "create a sprint", nil), sink)

	finished, ok := outcome.(Finished)
	require.True(t, ok, "got %#v", outcome)
	assert.Equal(t, "Sprint created.", finished.Text)
	assert.Equal(t, "Sprint created.", sink.text())

	log := f.store.log("c-persist")
	require.Len(t, log, 1)
	assert.Equal(t, conversation.RoleUser, log[0].Role)
}
