// Package workflow hosts the pipeline scheduler: the single component that
// admits stage requests, runs stage executors in the background and moves a
// document through uploaded, extracting, extracted, analyzing, analyzed,
// rendering and completed.
//
// Admission is synchronous and rejects rather than queues. A request fails
// with ErrDocumentNotFound, ErrPrecondsNotMet, ErrAlreadyInProgress or
// ErrCapacityExceeded, checked in that order, and an admitted task holds one
// of a fixed number of capacity slots until it reaches a terminal status.
//
// Executor errors classified as retryable are retried with linear backoff.
// On success the artifact is stored before the task is completed and the
// task is completed before the document advances. A watchdog fails tasks
// that outlive the configured timeout, and Start fails tasks that a previous
// process left behind.
package workflow
