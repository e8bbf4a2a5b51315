package llmprovider

import (
	"context"
	"errors"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	turnerrors "taskdeck/agent-api/internal/domain/errors"
)

// classify wraps provider errors so callers can tell transient failures apart.
// Rate limits, 5xx answers and network timeouts are retryable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isRetryableStatus(statusOf(err)) {
		return turnerrors.RetryableUpstream(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return turnerrors.RetryableUpstream(op, err)
	}
	return turnerrors.Upstream(op, err)
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
