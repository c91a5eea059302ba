package stage

import (
	"context"
	"encoding/json"

	"slidewright/internal/store"
)

// ProgressFunc receives a completion percentage between 0 and 100. Executors
// that cannot estimate progress simply never call it.
type ProgressFunc func(percent int)

// Request carries everything an executor needs for one attempt. The
// scheduler fills the upstream artifact the stage consumes: Extraction for
// analyze and Analysis (plus Extraction when available) for render.
type Request struct {
	Document   *store.Document
	TaskID     string
	ArtifactID string
	Config     json.RawMessage
	Extraction *store.Extraction
	Analysis   *store.Analysis
}

// Executor is the contract the scheduler needs from each stage.
type Executor interface {
	Execute(ctx context.Context, req Request, progress ProgressFunc) (*store.Artifact, error)
	HealthCheck(ctx context.Context) Health
}

// Report forwards progress to fn when it is set.
func (fn ProgressFunc) Report(percent int) {
	if fn != nil {
		fn(percent)
	}
}

// Health is an executor's self-reported readiness, shown by the status
// endpoint. Detail explains a not-ready stage.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

func Healthy(name string) Health { return Health{Name: name, Ready: true} }

func Unhealthy(name, detail string) Health { return Health{Name: name, Detail: detail} }
