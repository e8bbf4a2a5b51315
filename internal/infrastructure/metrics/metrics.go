package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"taskdeck/agent-api/internal/domain/conversation"
	turnerrors "taskdeck/agent-api/internal/domain/errors"
	"taskdeck/agent-api/internal/domain/tool"
	"taskdeck/agent-api/internal/domain/turn"
)

const (
	namespace = "taskdeck"
	subsystem = "agent_api"
)

// Agent API metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"method", "endpoint"},
	)

	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turns_total",
			Help:      "Conversation turns by terminal state",
		},
		[]string{"agent", "state", "error_kind"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a turn from receipt to terminal state",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"agent"},
	)

	TurnSteps = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turn_steps",
			Help:      "Model calls per turn",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 20},
		},
		[]string{"agent"},
	)

	// Tool call counters
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tool_calls_total",
			Help:      "Total tool invocations",
		},
		[]string{"tool_name", "status"},
	)

	// Tool duration histogram
	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tool_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool_name"},
	)

	DedupCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dedup_calls_total",
			Help:      "Deduplicated lookups, labelled by whether the result was shared",
		},
		[]string{"op", "shared"},
	)

	// Queue depth gauge
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "summary_queue_depth",
			Help:      "Queued summary tasks",
		},
	)

	// Background jobs counter
	BackgroundJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "background_jobs_total",
			Help:      "Total background jobs processed",
		},
		[]string{"job_type", "status"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordToolCall records a tool invocation
func RecordToolCall(toolName, status string, durationSec float64) {
	ToolCallsTotal.WithLabelValues(toolName, status).Inc()
	ToolDuration.WithLabelValues(toolName).Observe(durationSec)
}

// SetQueueDepth sets the current queue depth
func SetQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

// RecordBackgroundJob records a background job execution
func RecordBackgroundJob(jobType, status string) {
	BackgroundJobsTotal.WithLabelValues(jobType, status).Inc()
}

// RecordTurn records the terminal outcome of a turn.
func RecordTurn(agent conversation.AgentType, outcome turn.Outcome, duration time.Duration) {
	label := string(agent)
	if label == "" {
		label = "unknown"
	}
	kind := ""
	steps := 0
	switch o := outcome.(type) {
	case turn.Finished:
		steps = o.Steps
	case turn.Aborted:
		steps = o.Steps
	case turn.Failed:
		steps = o.Steps
		kind = string(turnerrors.KindOf(o.Err))
		var te *turnerrors.TurnError
		if errors.As(o.Err, &te) && te.Op != "" {
			kind += ":" + te.Op
		}
	}
	state := "unknown"
	if outcome != nil {
		state = string(outcome.State())
	}
	TurnsTotal.WithLabelValues(label, state, kind).Inc()
	TurnDuration.WithLabelValues(label).Observe(duration.Seconds())
	if steps > 0 {
		TurnSteps.WithLabelValues(label).Observe(float64(steps))
	}
}

// TurnRecorder adapts RecordTurn to the orchestrator hook.
func TurnRecorder() turn.OutcomeRecorder {
	return RecordTurn
}

// ToolRecorder adapts RecordToolCall to the executor hook.
func ToolRecorder() tool.Recorder {
	return func(toolName string, status tool.ExecutionStatus, duration time.Duration) {
		RecordToolCall(toolName, string(status), duration.Seconds())
	}
}

// RecordDedup counts one deduplicated lookup.
func RecordDedup(op string, shared bool) {
	label := "false"
	if shared {
		label = "true"
	}
	DedupCallsTotal.WithLabelValues(op, label).Inc()
}
