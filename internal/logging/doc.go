// Package logging builds the slog loggers used by the daemon and CLI.
//
// NewFromConfig picks the console or JSON handler from the [logging] section.
// Log lines pick up document_id, task_id and stage from the context via
// WithContext, and NewNop gives tests a logger that drops everything.
package logging
