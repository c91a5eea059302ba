package workflow

import "errors"

// Admission errors. They are returned synchronously by RequestStage and never
// create a task; callers may retry once the triggering condition changes.
var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrPrecondsNotMet    = errors.New("stage preconditions not met")
	ErrAlreadyInProgress = errors.New("stage already in progress")
	ErrCapacityExceeded  = errors.New("scheduler at capacity")
)

var (
	// ErrNotRunning is returned when a stage is requested before Start or after Stop.
	ErrNotRunning = errors.New("scheduler not running")
	// ErrStageUnavailable is returned when no executor is registered for a stage.
	ErrStageUnavailable = errors.New("stage executor not registered")
)
