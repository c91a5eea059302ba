package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"slidewright/internal/ledger"
	"slidewright/internal/services"
	"slidewright/internal/store"
	"slidewright/internal/workflow"
)

// ErrNotFound is returned when a task, document or result does not exist.
var ErrNotFound = errors.New("not found")

// Error codes carried in ErrorBody.Code.
const (
	CodeNotFound          = "NotFound"
	CodeDocumentNotFound  = "DocumentNotFound"
	CodePrecondsNotMet    = "PrecondsNotMet"
	CodeAlreadyInProgress = "AlreadyInProgress"
	CodeCapacityExceeded  = "CapacityExceeded"
	CodeUnsupportedFormat = "UnsupportedFormat"
	CodeInvalidRequest    = "InvalidRequest"
	CodeUnavailable       = "Unavailable"
	CodeInternal          = "Internal"
)

var codeSentinels = map[string]error{
	CodeNotFound:          ErrNotFound,
	CodeDocumentNotFound:  workflow.ErrDocumentNotFound,
	CodePrecondsNotMet:    workflow.ErrPrecondsNotMet,
	CodeAlreadyInProgress: workflow.ErrAlreadyInProgress,
	CodeCapacityExceeded:  workflow.ErrCapacityExceeded,
	CodeUnsupportedFormat: services.ErrUnsupportedFormat,
	CodeUnavailable:       workflow.ErrNotRunning,
}

// Classify maps an error onto an HTTP status and error code.
func Classify(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, workflow.ErrDocumentNotFound):
		return http.StatusNotFound, CodeDocumentNotFound
	case errors.Is(err, ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, workflow.ErrPrecondsNotMet):
		return http.StatusConflict, CodePrecondsNotMet
	case errors.Is(err, workflow.ErrAlreadyInProgress):
		return http.StatusConflict, CodeAlreadyInProgress
	case errors.Is(err, workflow.ErrCapacityExceeded):
		return http.StatusTooManyRequests, CodeCapacityExceeded
	case errors.Is(err, services.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, CodeUnsupportedFormat
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrInvalidConfig), errors.Is(err, workflow.ErrStageUnavailable):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, workflow.ErrNotRunning):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// Error is a non-2xx response decoded by Client.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("api: %s: %s", e.Code, e.Message)
}

// Unwrap exposes the sentinel matching the error code, if any.
func (e *Error) Unwrap() error {
	return codeSentinels[e.Code]
}
