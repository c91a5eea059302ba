package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"slidewright/internal/ledger"
	"slidewright/internal/logging"
	"slidewright/internal/services"
	"slidewright/internal/store"
)

// RequestStage admits one stage execution for a document and returns the
// queued task without waiting for it. Checks run in a fixed order:
// document existence, stage precondition, duplicate active task, capacity.
// config is passed through to the executor untouched.
func (s *Scheduler) RequestStage(ctx context.Context, documentID string, taskType ledger.Type, config json.RawMessage) (*ledger.Task, error) {
	def, ok := pipeline[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown stage %q", ErrStageUnavailable, taskType)
	}
	// The read lock is held until the run goroutine is registered so that
	// Stop cannot start waiting in between.
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, runCtx := s.executors[taskType], s.runCtx
	if !s.running {
		return nil, ErrNotRunning
	}
	if exec == nil {
		return nil, fmt.Errorf("%w: %s", ErrStageUnavailable, taskType)
	}

	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if !def.admissible(doc) {
		return nil, fmt.Errorf("%w: %s requires document status %s, document is %s",
			ErrPrecondsNotMet, taskType, def.requires, describeStatus(doc))
	}
	active, err := s.ledger.FindActive(ctx, documentID, taskType)
	if err != nil {
		return nil, fmt.Errorf("find active task: %w", err)
	}
	if active != nil {
		return nil, fmt.Errorf("%w: task %s is %s", ErrAlreadyInProgress, active.ID, active.Status)
	}
	if !s.capacity.available() {
		return nil, fmt.Errorf("%w: %d of %d slots in use", ErrCapacityExceeded, s.capacity.inUse(), s.capacity.limit)
	}

	if err := store.ValidateDocumentTransition(doc.Status, def.processing); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrecondsNotMet, err)
	}
	task, err := s.ledger.Create(ctx, taskType, documentID)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	doc.Status = def.processing
	doc.ResumeStatus = ""
	doc.ErrorMessage = ""
	if err := s.store.SaveDocument(ctx, doc); err != nil {
		s.abandon(ctx, task, err)
		return nil, fmt.Errorf("mark document %s: %w", def.processing, err)
	}
	s.capacity.acquire(task.ID)

	correlationID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		correlationID = uuid.NewString()
	}
	r := newRun(runCtx, def, exec, task, config, correlationID, time.Now())
	s.runsMu.Lock()
	s.inflight[task.ID] = r
	s.runsMu.Unlock()
	s.wg.Add(1)
	go s.execute(r)

	logging.WithContext(r.ctx, s.logger).Info("stage admitted",
		logging.String(logging.FieldEventType, "stage_admitted"),
		logging.String("document_status", StageLabel(doc.Status)),
		logging.Int("slots_in_use", s.capacity.inUse()),
	)
	return task, nil
}

// abandon fails a task whose admission could not be completed so that it
// does not linger as active.
func (s *Scheduler) abandon(ctx context.Context, task *ledger.Task, cause error) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.ledger.Transition(ctx, task.ID, ledger.StatusProcessing); err != nil {
		s.logger.Warn("could not abandon task", logging.String(logging.FieldTaskID, task.ID), logging.Error(err))
		return
	}
	if _, err := s.ledger.Transition(ctx, task.ID, ledger.StatusFailed,
		ledger.WithFailure(string(services.KindUnknown), "admission failed: "+cause.Error())); err != nil {
		s.logger.Warn("could not abandon task", logging.String(logging.FieldTaskID, task.ID), logging.Error(err))
	}
}

func describeStatus(doc *store.Document) string {
	if doc.Status == store.StatusError && doc.ResumeStatus != "" {
		return fmt.Sprintf("%s (resumable from %s)", doc.Status, doc.ResumeStatus)
	}
	return string(doc.Status)
}
