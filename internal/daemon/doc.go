// Package daemon runs the long-lived slidewright process.
//
// It owns the single-instance lock (flock on <data_dir>/slidewright.lock),
// starts and stops the pipeline scheduler, and serves the HTTP API that
// clients use to upload papers, request stages and poll for results. The API
// is a thin translation layer: admission decisions come from the scheduler,
// reads come from api.QueryService, and errors map onto HTTP status codes
// through api.Classify.
package daemon
