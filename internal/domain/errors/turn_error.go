// Package errors defines the error taxonomy of conversation turns.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"

	"taskdeck/agent-api/internal/domain/status"
)

// Kind classifies a turn error.
type Kind string

const (
	// KindInvalidRequest means the inbound request was malformed. Surfaces as 400.
	KindInvalidRequest Kind = "INVALID_REQUEST"
	// KindUpstreamFailure covers store, model and upload failures. Surfaces as 500.
	KindUpstreamFailure Kind = "UPSTREAM_FAILURE"
	// KindCancellation is the caller going away. Not an error for the caller.
	KindCancellation Kind = "CANCELLATION"
	// KindToolExecution is recovered inside the step loop and fed back to the model.
	KindToolExecution Kind = "TOOL_EXECUTION_FAILURE"
)

// TurnError represents a failure of one stage of a turn.
type TurnError struct {
	Kind      Kind                 `json:"kind"`
	Op        string               `json:"op,omitempty"`
	Message   string               `json:"message"`
	Severity  status.ErrorSeverity `json:"severity"`
	Retryable bool                 `json:"retryable"`
	Cause     error                `json:"-"`
}

// Error implements the error interface.
func (e *TurnError) Error() string {
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = e.Op
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause.
func (e *TurnError) Unwrap() error {
	return e.Cause
}

// Is matches another TurnError by kind so sentinels work with errors.Is.
func (e *TurnError) Is(target error) bool {
	var te *TurnError
	if !errors.As(target, &te) {
		return false
	}
	return te.Kind == e.Kind && te.Op == "" && te.Message == ""
}

// IsRetryable returns true if the failed operation may be attempted again.
func (e *TurnError) IsRetryable() bool {
	return e.Retryable && e.Severity.IsRetryable()
}

// Sentinels for errors.Is checks by kind.
var (
	ErrInvalidRequest  = &TurnError{Kind: KindInvalidRequest}
	ErrUpstreamFailure = &TurnError{Kind: KindUpstreamFailure}
	ErrCancellation    = &TurnError{Kind: KindCancellation}
	ErrToolExecution   = &TurnError{Kind: KindToolExecution}
)

// InvalidRequest builds a 400-class error.
func InvalidRequest(message string) *TurnError {
	return &TurnError{
		Kind:     KindInvalidRequest,
		Message:  message,
		Severity: status.ErrorSeverityFatal,
	}
}

// Upstream wraps a collaborator failure during op.
func Upstream(op string, cause error) *TurnError {
	return &TurnError{
		Kind:     KindUpstreamFailure,
		Op:       op,
		Message:  "upstream failure",
		Severity: status.ErrorSeverityFatal,
		Cause:    cause,
	}
}

// RetryableUpstream wraps a transient collaborator failure during op.
func RetryableUpstream(op string, cause error) *TurnError {
	return &TurnError{
		Kind:      KindUpstreamFailure,
		Op:        op,
		Message:   "transient upstream failure",
		Severity:  status.ErrorSeverityRetryable,
		Retryable: true,
		Cause:     cause,
	}
}

// Cancellation marks op as stopped because the caller went away.
func Cancellation(op string, cause error) *TurnError {
	return &TurnError{
		Kind:     KindCancellation,
		Op:       op,
		Message:  "caller went away",
		Severity: status.ErrorSeverityFatal,
		Cause:    cause,
	}
}

// ToolFailure wraps a failed tool invocation.
func ToolFailure(toolName string, cause error) *TurnError {
	return &TurnError{
		Kind:     KindToolExecution,
		Op:       toolName,
		Message:  "tool execution failed",
		Severity: status.ErrorSeverityRecovered,
		Cause:    cause,
	}
}

// KindOf reports the kind of err. Context cancellation maps to KindCancellation
// and anything unclassified is treated as an upstream failure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return KindCancellation
	}
	var te *TurnError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUpstreamFailure
}

// IsCancellation reports whether err represents the caller going away.
func IsCancellation(err error) bool {
	return KindOf(err) == KindCancellation
}

// Classifier decides the severity of raw errors coming from collaborators.
type Classifier struct {
	rules []ClassificationRule
}

// ClassificationRule maps matching errors to a severity.
type ClassificationRule struct {
	Match    func(error) bool
	Severity status.ErrorSeverity
}

// NewClassifier creates a classifier with the default rules.
func NewClassifier() *Classifier {
	c := &Classifier{}
	c.rules = append(c.rules,
		ClassificationRule{
			Match:    func(err error) bool { return errors.Is(err, context.Canceled) },
			Severity: status.ErrorSeverityFatal,
		},
		ClassificationRule{
			Match: func(err error) bool {
				var netErr net.Error
				return errors.As(err, &netErr) && netErr.Timeout()
			},
			Severity: status.ErrorSeverityRetryable,
		},
		ClassificationRule{
			Match:    func(err error) bool { return errors.Is(err, context.DeadlineExceeded) },
			Severity: status.ErrorSeverityRetryable,
		},
	)
	return c
}

// AddRule appends a classification rule.
func (c *Classifier) AddRule(rule ClassificationRule) {
	c.rules = append(c.rules, rule)
}

// Classify determines the severity of err. Unknown errors are fatal.
func (c *Classifier) Classify(err error) status.ErrorSeverity {
	if err == nil {
		return ""
	}

	var te *TurnError
	if errors.As(err, &te) && te.Severity != "" {
		return te.Severity
	}

	for _, rule := range c.rules {
		if rule.Match(err) {
			return rule.Severity
		}
	}
	return status.ErrorSeverityFatal
}
