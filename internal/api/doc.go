// Package api is the read side of slidewright and the wire contract between
// the daemon and its clients.
//
// QueryService answers task, document and result lookups from the store and
// the task ledger. It never writes, so callers may poll it as often as they
// like. A missing task, document or result is reported as ErrNotFound; for
// results that is the normal answer while a stage is still running.
//
// The view types (Document, Task, Artifact, WorkflowStatus, Template) are the
// JSON shapes served over HTTP. They use camelCase keys; stage payloads inside
// an Artifact are passed through in their stored form.
//
// Client is the HTTP client used by the CLI. Error responses decode into
// *Error, which unwraps to the matching admission or lookup sentinel so that
// callers can branch with errors.Is on either side of the wire.
package api
