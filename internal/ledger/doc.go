// Package ledger is the durable record of every stage task and its lifecycle.
//
// Tasks move queued → processing → completed|failed and never leave a
// terminal state. FindActive backs the scheduler's rule that at most one
// non-terminal task exists per document and stage.
package ledger
