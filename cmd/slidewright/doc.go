// Command slidewright runs the paper-to-slides daemon and talks to it.
//
// `slidewright serve` starts the HTTP daemon that owns the document store,
// the task ledger and the stage scheduler. Every other subcommand except
// `config` and `run` is a thin client of that daemon's API: uploading PDFs,
// requesting extract, analyze and render stages, polling tasks and fetching
// results. `slidewright run` drives the whole pipeline for a single PDF
// in-process and copies the resulting deck to a chosen path, which is handy
// for scripting without a long-lived daemon.
//
// Table output uses go-pretty; pass --json to most read commands for
// machine-readable output.
package main
