package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Failure markers. Stage executors tag their errors with exactly one of these
// through Wrap so the scheduler can record a failure kind and decide whether
// an attempt may be repeated.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCorruptInput      = errors.New("corrupt input")
	ErrExternalService   = errors.New("external service error")
	ErrInvalidConfig     = errors.New("invalid config")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrRender            = errors.New("render error")
	ErrTimeout           = errors.New("timeout")
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
)

// Kind is the failure classification persisted on failed tasks.
type Kind string

const (
	KindUnsupportedFormat Kind = "UnsupportedFormat"
	KindCorruptInput      Kind = "CorruptInput"
	KindExternalService   Kind = "ExternalServiceError"
	KindInvalidConfig     Kind = "InvalidConfig"
	KindTemplateNotFound  Kind = "TemplateNotFound"
	KindRender            Kind = "RenderError"
	KindTimeout           Kind = "Timeout"
	KindValidation        Kind = "Validation"
	KindNotFound          Kind = "NotFound"
	KindUnknown           Kind = "Unknown"
)

var markerKinds = []struct {
	marker error
	kind   Kind
	hint   string
}{
	{ErrUnsupportedFormat, KindUnsupportedFormat, "upload a PDF document"},
	{ErrCorruptInput, KindCorruptInput, "re-export the PDF and upload it again"},
	{ErrExternalService, KindExternalService, "check LLM connectivity and api key, then retry the stage"},
	{ErrInvalidConfig, KindInvalidConfig, "fix the stage options and request the stage again"},
	{ErrTemplateNotFound, KindTemplateNotFound, "list templates with 'slidewright templates'"},
	{ErrRender, KindRender, "check output_dir permissions and free space"},
	{ErrTimeout, KindTimeout, "raise pipeline.task_timeout_seconds or retry later"},
	{ErrValidation, KindValidation, "check the request parameters"},
	{ErrNotFound, KindNotFound, "verify the identifier"},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrExternalService
	}
	wrapped := &stageError{
		marker:    marker,
		stage:     strings.TrimSpace(stage),
		operation: strings.TrimSpace(operation),
		message:   strings.TrimSpace(message),
		cause:     err,
	}
	detail := buildDetail(stage, operation, message)
	if err != nil {
		wrapped.text = fmt.Sprintf("%s: %s: %s", marker.Error(), detail, err.Error())
	} else {
		wrapped.text = fmt.Sprintf("%s: %s", marker.Error(), detail)
	}
	return wrapped
}

type stageError struct {
	marker    error
	stage     string
	operation string
	message   string
	cause     error
	text      string
}

func (e *stageError) Error() string { return e.text }

func (e *stageError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.marker}
	}
	return []error{e.marker, e.cause}
}

// ErrorDetails is the structured view of a classified error used for logging
// and for the failure fields of a task.
type ErrorDetails struct {
	Kind      Kind
	Stage     string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

// Details extracts classification details from err. Errors that were never
// wrapped are classified by inspecting well-known causes.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	details := ErrorDetails{Kind: classify(err), Message: strings.TrimSpace(err.Error())}
	var se *stageError
	if errors.As(err, &se) {
		details.Stage = se.stage
		details.Operation = se.operation
		if se.message != "" {
			details.Message = se.message
		}
		details.Cause = se.cause
	}
	for _, mk := range markerKinds {
		if mk.kind == details.Kind {
			details.Hint = mk.hint
			break
		}
	}
	return details
}

// KindOf reports the failure kind for err.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	return classify(err)
}

// Retryable reports whether a failed attempt may be repeated by the scheduler.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindExternalService, KindTimeout:
		return true
	default:
		return false
	}
}

func classify(err error) Kind {
	for _, mk := range markerKinds {
		if errors.Is(err, mk.marker) {
			return mk.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindExternalService
	}
	return KindUnknown
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
