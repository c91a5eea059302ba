package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"slidewright/internal/services"
)

const llmOp = "llm request"

type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, snippet(e.body))
}

// permanent is true for 4xx responses other than 408 and 429.
func (e *statusError) permanent() bool {
	switch e.code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return e.code >= 400 && e.code < 500
}

type emptyReplyError struct {
	choices int
	finish  string
	refusal string
	snippet string
}

func (e *emptyReplyError) Error() string {
	if e.choices == 0 {
		return "empty choices (response_snippet=" + e.snippet + ")"
	}
	return fmt.Sprintf("empty content (finish_reason=%q, refusal=%q, response_snippet=%s)", e.finish, e.refusal, e.snippet)
}

type exhaustedError struct {
	attempts int
	last     error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.attempts, e.last)
}

func (e *exhaustedError) Unwrap() error { return e.last }

func invalidRequest(detail string) error {
	return services.Wrap(services.ErrInvalidConfig, "analyze", llmOp, detail, nil)
}

func classify(err error) error {
	var status *statusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "analyze", llmOp, "llm call exceeded its deadline", err)
	case errors.As(err, &status) && status.permanent():
		return services.Wrap(services.ErrInvalidConfig, "analyze", llmOp,
			fmt.Sprintf("llm endpoint rejected the request (http %d)", status.code), err)
	default:
		return services.Wrap(services.ErrExternalService, "analyze", llmOp, "llm call failed", err)
	}
}

// ParseError tags an unparseable model response as a transient external failure.
func ParseError(op string, content string, err error) error {
	return services.Wrap(services.ErrExternalService, "analyze", op, "llm returned malformed JSON: "+snippet(content), err)
}
