// Package store persists documents, tasks and artifacts in SQLite.
//
// Every record lives in a single records table keyed by (kind, id) with the
// typed value encoded as JSON and a few projected columns (document_id,
// record_type, status) used for filtering. Put, Get and List are each atomic
// on their own; callers needing cross-record ordering sequence their writes
// explicitly. DeleteDocument is the one multi-record operation and removes a
// document, its tasks and artifacts in one transaction.
//
// Schema changes bump the version in schema.go; users delete the database to
// adopt the new schema.
package store
