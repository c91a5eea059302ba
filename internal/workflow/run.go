package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"slidewright/internal/ledger"
	"slidewright/internal/logging"
	"slidewright/internal/services"
	"slidewright/internal/stage"
	"slidewright/internal/store"
)

// run is the scheduler's handle on one admitted task. Whichever of the
// executor goroutine or the watchdog claims it first writes the outcome.
type run struct {
	ctx     context.Context
	cancel  context.CancelFunc
	def     pipelineStage
	exec    stage.Executor
	task    *ledger.Task
	config  json.RawMessage
	started time.Time

	settled  atomic.Bool
	progress atomic.Int64
	attempts atomic.Int64
}

func newRun(parent context.Context, def pipelineStage, exec stage.Executor, task *ledger.Task, config json.RawMessage, correlationID string, started time.Time) *run {
	ctx := services.WithDocumentID(parent, task.DocumentID)
	ctx = services.WithTaskID(ctx, task.ID)
	ctx = services.WithStage(ctx, string(def.taskType))
	ctx = services.WithRequestID(ctx, correlationID)
	ctx, cancel := context.WithCancel(ctx)
	return &run{
		ctx:     ctx,
		cancel:  cancel,
		def:     def,
		exec:    exec,
		task:    task,
		config:  config,
		started: started,
	}
}

// claim reports whether the caller is the first to settle the run.
func (r *run) claim() bool {
	return r.settled.CompareAndSwap(false, true)
}

func (s *Scheduler) execute(r *run) {
	defer s.wg.Done()
	defer r.cancel()
	defer s.forget(r)

	logger := logging.WithContext(r.ctx, s.logger)
	start := time.Now()

	if _, err := s.ledger.Transition(r.ctx, r.task.ID, ledger.StatusProcessing, ledger.WithProgress(0)); err != nil {
		if r.ctx.Err() != nil || r.settled.Load() {
			return
		}
		s.fail(r, fmt.Errorf("mark task processing: %w", err))
		return
	}
	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	req, err := s.buildRequest(r.ctx, r)
	if err != nil {
		if r.ctx.Err() == nil {
			s.fail(r, err)
		}
		return
	}

	var artifact *store.Artifact
	for attempt := 1; ; attempt++ {
		r.attempts.Store(int64(attempt))
		artifact, err = r.exec.Execute(r.ctx, req, func(p int) { s.reportProgress(r, p) })
		if err == nil {
			break
		}
		if r.ctx.Err() != nil {
			logger.Debug("stage interrupted", logging.Error(err))
			return
		}
		if !services.Retryable(err) || attempt >= s.maxAttempts {
			s.fail(r, err)
			return
		}
		delay := time.Duration(attempt) * s.retryBackoff
		logging.WarnWithContext(logger, "stage attempt failed; retrying", "stage_retry",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", s.maxAttempts),
			logging.Duration("backoff", delay),
			logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
			logging.Error(err),
		)
		select {
		case <-r.ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	if err := normalizeArtifact(artifact, req, r.def); err != nil {
		s.fail(r, err)
		return
	}
	s.complete(r, artifact, time.Since(start))
}

// buildRequest loads the document and the completed upstream artifacts the
// stage consumes.
func (s *Scheduler) buildRequest(ctx context.Context, r *run) (stage.Request, error) {
	doc, err := s.store.GetDocument(ctx, r.task.DocumentID)
	if err != nil {
		return stage.Request{}, services.Wrap(services.ErrNotFound, string(r.def.taskType), "load document", "document unavailable", err)
	}
	req := stage.Request{
		Document:   doc,
		TaskID:     r.task.ID,
		ArtifactID: store.NewArtifactID(),
		Config:     r.config,
	}
	switch r.def.taskType {
	case ledger.TypeAnalyze:
		artifact, err := s.ledger.LatestResult(ctx, doc.ID, store.ArtifactExtraction)
		if err != nil {
			return stage.Request{}, services.Wrap(services.ErrCorruptInput, "analyze", "load extraction", "no completed extraction; run extract again", err)
		}
		req.Extraction = artifact.Extraction
	case ledger.TypeRender:
		artifact, err := s.ledger.LatestResult(ctx, doc.ID, store.ArtifactAnalysis)
		if err != nil {
			return stage.Request{}, services.Wrap(services.ErrCorruptInput, "render", "load analysis", "no completed analysis; run analyze again", err)
		}
		req.Analysis = artifact.Analysis
		if extraction, err := s.ledger.LatestResult(ctx, doc.ID, store.ArtifactExtraction); err == nil {
			req.Extraction = extraction.Extraction
		}
	}
	return req, nil
}

func normalizeArtifact(artifact *store.Artifact, req stage.Request, def pipelineStage) error {
	if artifact == nil {
		return errors.New("executor returned no artifact")
	}
	if artifact.ID == "" {
		artifact.ID = req.ArtifactID
	}
	artifact.DocumentID = req.Document.ID
	artifact.TaskID = req.TaskID
	if artifact.Kind != def.artifact {
		return fmt.Errorf("executor returned %q artifact, want %q", artifact.Kind, def.artifact)
	}
	return nil
}

// reportProgress records executor progress. Values only ever increase and
// 100 is reserved for the completed transition.
func (s *Scheduler) reportProgress(r *run, p int) {
	p = min(max(p, 0), 99)
	for {
		last := r.progress.Load()
		if int64(p) <= last {
			return
		}
		if r.progress.CompareAndSwap(last, int64(p)) {
			break
		}
	}
	if r.settled.Load() {
		return
	}
	if _, err := s.ledger.Transition(r.ctx, r.task.ID, ledger.StatusProcessing, ledger.WithProgress(p)); err != nil {
		logging.WithContext(r.ctx, s.logger).Debug("progress update skipped", logging.Error(err))
	}
}

func (s *Scheduler) forget(r *run) {
	s.runsMu.Lock()
	delete(s.inflight, r.task.ID)
	s.runsMu.Unlock()
}
