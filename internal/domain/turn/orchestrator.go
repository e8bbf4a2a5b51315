// Package turn executes one conversational turn: it loads context, runs the model
// and tool step loop while streaming text, and persists the result.
package turn

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskdeck/agent-api/internal/domain/conversation"
	"taskdeck/agent-api/internal/domain/dedup"
	turnerrors "taskdeck/agent-api/internal/domain/errors"
	"taskdeck/agent-api/internal/domain/llm"
	"taskdeck/agent-api/internal/domain/status"
	"taskdeck/agent-api/internal/domain/tool"
	"taskdeck/agent-api/internal/domain/upload"
	"taskdeck/agent-api/internal/utils/stringutils"
)

// SummaryScheduler queues background work for a conversation after a finished turn.
type SummaryScheduler interface {
	ScheduleSummary(ctx context.Context, conversationID string) error
}

// OutcomeRecorder observes every terminal outcome.
type OutcomeRecorder func(agent conversation.AgentType, outcome Outcome, duration time.Duration)

// Dependencies are the collaborators of the orchestrator. Optional ones may be nil.
type Dependencies struct {
	Store     conversation.Store
	Models    llm.ModelGateway
	Runner    *Runner
	Profiles  map[conversation.AgentType]Profile
	Directive DirectiveFunc
	Dedup     *dedup.Deduplicator

	WebSearch     tool.Source
	Uploads       upload.Resolver
	Counter       llm.TokenCounter
	Summaries     SummaryScheduler
	Recorder      OutcomeRecorder
	ContextLength int
}

// Orchestrator runs turns against the conversation store, model gateway and tools.
type Orchestrator struct {
	store         conversation.Store
	models        llm.ModelGateway
	runner        *Runner
	profiles      map[conversation.AgentType]Profile
	directive     DirectiveFunc
	dedup         *dedup.Deduplicator
	webSearch     tool.Source
	normalizer    partsNormalizer
	counter       llm.TokenCounter
	summaries     SummaryScheduler
	recorder      OutcomeRecorder
	contextLength int
	locks         *KeyedLocker
	inflight      *InFlight
	log           zerolog.Logger
}

// NewOrchestrator wires an orchestrator from deps.
func NewOrchestrator(deps Dependencies, log zerolog.Logger) *Orchestrator {
	d := deps.Dedup
	if d == nil {
		d = dedup.New(nil)
	}
	counter := deps.Counter
	if counter == nil {
		counter = llm.EstimateCounter{}
	}
	return &Orchestrator{
		store:         deps.Store,
		models:        deps.Models,
		runner:        deps.Runner,
		profiles:      deps.Profiles,
		directive:     deps.Directive,
		dedup:         d,
		webSearch:     deps.WebSearch,
		normalizer:    partsNormalizer{uploads: deps.Uploads, dedup: d},
		counter:       counter,
		summaries:     deps.Summaries,
		recorder:      deps.Recorder,
		contextLength: deps.ContextLength,
		locks:         NewKeyedLocker(),
		inflight:      NewInFlight(),
		log:           log.With().Str("component", "turn-orchestrator").Logger(),
	}
}

// preparedTurn is the model input assembled before the step loop starts.
type preparedTurn struct {
	history []llm.ChatMessage
	current []llm.ChatMessage
}

// strategy is the part of a turn that differs between persistent and stateless requests.
type strategy interface {
	prepare(ctx context.Context, tracker *stateTracker) (preparedTurn, error)
	persistAssistant(ctx context.Context, text string) error
	conversationID() string
}

// Execute runs req to a terminal outcome, streaming assistant text to sink.
// Text already written to sink stays written regardless of the outcome.
func (o *Orchestrator) Execute(ctx context.Context, req Request, sink Sink) Outcome {
	start := time.Now()
	opts := Options{}
	if req != nil {
		opts = req.options()
	}
	outcome := o.execute(ctx, req, sink)
	if o.recorder != nil {
		o.recorder(opts.AgentType, outcome, time.Since(start))
	}
	return outcome
}

func (o *Orchestrator) execute(ctx context.Context, req Request, sink Sink) Outcome {
	if req == nil {
		return Failed{Err: turnerrors.InvalidRequest("empty request")}
	}
	if err := req.Validate(); err != nil {
		return Failed{Err: err}
	}

	switch r := req.(type) {
	case PersistentTurn:
		unlock, err := o.locks.Lock(ctx, r.ConversationID)
		if err != nil {
			return Aborted{}
		}
		defer unlock()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		defer o.inflight.Register(r.ConversationID, cancel)()

		return o.run(ctx, r.Options, &persistentStrategy{o: o, req: r}, sink)
	case StatelessTurn:
		return o.run(ctx, r.Options, &statelessStrategy{o: o, req: r}, sink)
	default:
		return Failed{Err: turnerrors.InvalidRequest("unsupported request")}
	}
}

func (o *Orchestrator) run(ctx context.Context, opts Options, s strategy, sink Sink) Outcome {
	ctx, span := tracer.Start(ctx, "turn.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("turn.agent", string(opts.AgentType)),
		attribute.String("turn.conversation_id", s.conversationID()),
	)

	ctx = llm.ContextWithCaller(ctx, opts.Caller)
	log := o.log.With().
		Str("agent", string(opts.AgentType)).
		Str("conversation_id", s.conversationID()).
		Str("request_id", opts.Caller.RequestID).
		Logger()
	tracker := newStateTracker(log)

	profile, ok := o.profiles[opts.AgentType]
	if !ok {
		return o.fail(span, tracker, 0, turnerrors.InvalidRequest("unknown agent "+string(opts.AgentType)))
	}

	prepared, err := s.prepare(ctx, tracker)
	if err != nil {
		return o.fail(span, tracker, 0, err)
	}

	model, err := o.models.SelectModel(ctx, opts.SelectedModel, llm.UsageChat)
	if err != nil {
		return o.fail(span, tracker, 0, wrapUpstream("model.select", err))
	}
	if model.Fallback {
		log.Info().Str("requested", opts.SelectedModel).Str("model", model.ID).Msg("requested model unavailable, using default")
	}
	span.SetAttributes(attribute.String("llm.model", model.ID))

	messages := o.buildMessages(profile, opts.ProjectID, prepared, model, log)
	tools := o.toolSet(ctx, profile, opts.AgentType, opts.WebSearchEnabled)

	tracker.to(status.TurnModelInvoked)
	tracker.to(status.TurnStepLoop)
	res, err := o.runner.Run(ctx, runParams{
		model:    model,
		messages: messages,
		tools:    tools,
		exec: tool.ExecContext{
			AuthHeader:     opts.Caller.AuthHeader,
			ConversationID: s.conversationID(),
			ProjectID:      opts.ProjectID,
			AgentType:      string(opts.AgentType),
		},
		sink: sink,
	})
	if err != nil {
		return o.fail(span, tracker, res.steps, err)
	}

	text := res.text
	if strings.TrimSpace(text) == "" && len(res.executions) > 0 {
		text = FallbackAcknowledgement
		if sink != nil {
			if err := sink.WriteText(text); err != nil {
				log.Debug().Err(err).Msg("client left before the acknowledgement was written")
			}
		}
	}

	tracker.to(status.TurnFinished)
	if text != "" {
		// The turn is complete; persisting it must not depend on the client still listening.
		if err := s.persistAssistant(context.WithoutCancel(ctx), text); err != nil {
			log.Error().Err(err).Msg("failed to persist assistant message")
		}
	}

	span.SetAttributes(
		attribute.Int("turn.steps", res.steps),
		attribute.Int("turn.tool_calls", len(res.executions)),
	)
	log.Info().
		Int("steps", res.steps).
		Int("tool_calls", len(res.executions)).
		Str("model", model.ID).
		Msg("turn finished")

	return Finished{
		Text:       text,
		Steps:      res.steps,
		Model:      model.ID,
		Executions: res.executions,
	}
}

func (o *Orchestrator) buildMessages(profile Profile, projectID *int64, prepared preparedTurn, model llm.Model, log zerolog.Logger) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, len(prepared.history)+len(prepared.current)+1)
	messages = append(messages, systemPrompt(profile, projectID, o.directive))
	messages = append(messages, prepared.history...)
	messages = append(messages, prepared.current...)

	contextLength := model.ContextLength
	if contextLength <= 0 {
		contextLength = o.contextLength
	}
	trimmed := llm.TrimMessagesToFitContext(messages, contextLength, o.counter)
	if trimmed.TrimmedCount > 0 {
		log.Info().
			Int("trimmed", trimmed.TrimmedCount).
			Int("estimated_tokens", trimmed.EstimatedTokens).
			Msg("trimmed history to fit model context")
	}
	return trimmed.Messages
}

func (o *Orchestrator) fail(span trace.Span, tracker *stateTracker, steps int, err error) Outcome {
	if turnerrors.IsCancellation(err) {
		tracker.to(status.TurnAborted)
		return Aborted{Steps: steps}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	tracker.to(status.TurnFailed)
	tracker.log.Error().Err(err).Int("steps", steps).Msg("turn failed")
	return Failed{Err: err, Steps: steps}
}

// History returns the stored conversation, or an empty placeholder when id is unseen.
// Concurrent reads of the same id share one store call.
func (o *Orchestrator) History(ctx context.Context, agent conversation.AgentType, id string) (*conversation.History, error) {
	if strings.TrimSpace(id) == "" {
		return nil, turnerrors.InvalidRequest("conversationId is required")
	}
	history, err := o.loadHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	if history.Conversation == nil {
		return &conversation.History{
			Conversation: conversation.Placeholder(id, agent),
			Messages:     []conversation.Message{},
		}, nil
	}
	return history, nil
}

// Cancel stops the running turn of a conversation. It reports whether a turn was running.
func (o *Orchestrator) Cancel(conversationID string) bool {
	return o.inflight.Cancel(conversationID)
}

func historyKey(id string) string { return "history:" + id }

// loadHistory serves read-only callers. Concurrent reads of id share one store call.
func (o *Orchestrator) loadHistory(ctx context.Context, id string) (*conversation.History, error) {
	history, _, err := dedup.Do(ctx, o.dedup, historyKey(id), func(ctx context.Context) (*conversation.History, error) {
		return o.store.GetHistory(ctx, id)
	})
	return normalizeHistory(history, err)
}

// readHistory always hits the store. Turns use it so they see every earlier append.
func (o *Orchestrator) readHistory(ctx context.Context, id string) (*conversation.History, error) {
	history, err := o.store.GetHistory(ctx, id)
	return normalizeHistory(history, err)
}

func normalizeHistory(history *conversation.History, err error) (*conversation.History, error) {
	if err != nil {
		return nil, wrapUpstream("store.history", err)
	}
	if history == nil {
		history = &conversation.History{}
	}
	return history, nil
}

// appendMessage writes msg and drops any shared history read that started before it.
func (o *Orchestrator) appendMessage(ctx context.Context, msg *conversation.Message) error {
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		return err
	}
	o.dedup.Forget(historyKey(msg.ConversationID))
	return nil
}

func wrapUpstream(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var te *turnerrors.TurnError
	if errors.As(err, &te) {
		return err
	}
	return turnerrors.Upstream(op, err)
}

// persistentStrategy stores the conversation, the user message and the final answer.
type persistentStrategy struct {
	o   *Orchestrator
	req PersistentTurn
}

func (s *persistentStrategy) conversationID() string { return s.req.ConversationID }

func (s *persistentStrategy) prepare(ctx context.Context, tracker *stateTracker) (preparedTurn, error) {
	o := s.o
	msg := s.req.Message

	if _, err := o.store.Upsert(ctx, conversation.UpsertParams{
		ID:        s.req.ConversationID,
		AgentType: s.req.AgentType,
		ProjectID: s.req.ProjectID,
		Title:     stringutils.GenerateTitle(msg.Parts.Text(), stringutils.DefaultTitleLength),
	}); err != nil {
		return preparedTurn{}, wrapUpstream("store.upsert", err)
	}
	tracker.to(status.TurnResolved)

	history, err := o.readHistory(ctx, s.req.ConversationID)
	if err != nil {
		return preparedTurn{}, err
	}
	tracker.to(status.TurnHistoryLoaded)

	// The log keeps a text-only copy; file content is only sent to the model.
	if err := o.appendMessage(ctx, &conversation.Message{
		ConversationID: s.req.ConversationID,
		Role:           conversation.RoleUser,
		Parts:          msg.Parts.TextOnly(),
	}); err != nil {
		return preparedTurn{}, wrapUpstream("store.append_user", err)
	}
	tracker.to(status.TurnUserMsgPersisted)

	current, err := o.normalizer.message(ctx, msg.Role, msg.Parts)
	if err != nil {
		return preparedTurn{}, err
	}
	return preparedTurn{
		history: historyMessages(history.Messages),
		current: []llm.ChatMessage{current},
	}, nil
}

func (s *persistentStrategy) persistAssistant(ctx context.Context, text string) error {
	o := s.o
	if err := o.appendMessage(ctx, &conversation.Message{
		ConversationID: s.req.ConversationID,
		Role:           conversation.RoleAssistant,
		Parts:          conversation.TextParts(text),
	}); err != nil {
		return err
	}
	if o.summaries != nil {
		if err := o.summaries.ScheduleSummary(ctx, s.req.ConversationID); err != nil {
			o.log.Warn().Err(err).Str("conversation_id", s.req.ConversationID).Msg("failed to schedule summary")
		}
	}
	return nil
}

// statelessStrategy answers a flat message list and never touches the store.
type statelessStrategy struct {
	o   *Orchestrator
	req StatelessTurn
}

func (s *statelessStrategy) conversationID() string { return "" }

func (s *statelessStrategy) prepare(ctx context.Context, tracker *stateTracker) (preparedTurn, error) {
	messages := make([]llm.ChatMessage, 0, len(s.req.Messages))
	for _, m := range s.req.Messages {
		msg, err := s.o.normalizer.message(ctx, m.Role, m.Parts)
		if err != nil {
			return preparedTurn{}, err
		}
		messages = append(messages, msg)
	}
	last := len(messages) - 1
	return preparedTurn{history: messages[:last], current: messages[last:]}, nil
}

func (s *statelessStrategy) persistAssistant(context.Context, string) error { return nil }
