// Package services defines shared utilities consumed by the stage executors
// and the pipeline scheduler.
//
// Key responsibilities:
//   - Context helpers that stamp document IDs, task IDs, stage names, and
//     correlation identifiers for logging.
//   - Failure markers plus the Wrap helper that classify executor errors into
//     the failure kinds recorded on failed tasks, and the Retryable predicate
//     the scheduler uses to decide whether an attempt may be repeated.
//
// Use these helpers when wiring new executor logic so failure handling and
// observability stay uniform across the pipeline.
package services
