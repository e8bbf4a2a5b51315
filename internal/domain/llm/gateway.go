package llm

import "context"

// UsageClass selects the default model when the requested one is unavailable.
type UsageClass string

const (
	UsageChat    UsageClass = "chat"
	UsageSummary UsageClass = "summary"
)

// Model is a concrete model chosen by the gateway.
type Model struct {
	ID            string `json:"id"`
	ContextLength int    `json:"context_length,omitempty"`
	// Fallback is true when the requested model was replaced by the usage-class default.
	Fallback bool `json:"fallback,omitempty"`
}

// ModelGateway resolves a requested model id into a usable model handle.
type ModelGateway interface {
	SelectModel(ctx context.Context, requested string, usage UsageClass) (Model, error)
}
