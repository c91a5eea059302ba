package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"slidewright/internal/ledger"
	"slidewright/internal/logging"
	"slidewright/internal/services"
	"slidewright/internal/store"
)

// complete applies a successful result: artifact, then task, then document.
// A crash between any two writes leaves no completed task without its
// artifact and no done document without a completed task.
func (s *Scheduler) complete(r *run, artifact *store.Artifact, elapsed time.Duration) {
	if !r.claim() {
		logging.WithContext(r.ctx, s.logger).Warn("stage result discarded; task already settled",
			logging.String(logging.FieldEventType, "stage_result_discarded"),
			logging.String(logging.FieldImpact, "artifact not stored"),
		)
		return
	}
	ctx := context.WithoutCancel(r.ctx)
	logger := logging.WithContext(ctx, s.logger)

	if err := s.store.PutArtifact(ctx, artifact); err != nil {
		s.settleFailure(ctx, r, r.def.fallback, fmt.Errorf("persist artifact: %w", err))
		return
	}
	attempts := int(r.attempts.Load())
	if err := s.settleTask(r.task.ID, func() error {
		_, err := s.ledger.Transition(ctx, r.task.ID, ledger.StatusCompleted,
			ledger.WithResult(artifact.ID), ledger.WithAttempts(attempts))
		return err
	}); err != nil {
		s.settleFailure(ctx, r, r.def.fallback, fmt.Errorf("complete task: %w", err))
		return
	}
	doc, err := s.advanceDocument(ctx, r, artifact)
	if err != nil {
		s.setLastError(err)
		logging.ErrorWithContext(logger, "document status not advanced", "document_update_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database access; re-run the stage to resume"),
		)
		return
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("artifact_id", artifact.ID),
		logging.String("document_status", StageLabel(doc.Status)),
		logging.Int("attempts", attempts),
		logging.Duration("stage_duration", elapsed),
	)
	s.notifyCompletion(ctx, r, doc, artifact)
}

// settleTask applies a task's terminal ledger transition and frees its
// capacity slot in one seqMu section, so admission never sees a finished
// task still holding a slot. The slot is freed even when apply fails.
func (s *Scheduler) settleTask(taskID string, apply func() error) error {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	defer s.capacity.release(taskID)
	return apply()
}

// advanceDocument moves the document to the stage's done status.
func (s *Scheduler) advanceDocument(ctx context.Context, r *run, artifact *store.Artifact) (*store.Document, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	doc, err := s.store.GetDocument(ctx, r.task.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if err := store.ValidateDocumentTransition(doc.Status, r.def.done); err != nil {
		return nil, err
	}
	doc.Status = r.def.done
	doc.ResumeStatus = ""
	doc.ErrorMessage = ""
	if artifact.Extraction != nil {
		doc.ExtractionID = artifact.ID
		doc.Metadata = artifact.Extraction.Metadata
	}
	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}

// fail settles the run as failed if nothing else has settled it yet.
func (s *Scheduler) fail(r *run, cause error) {
	if !r.claim() {
		return
	}
	ctx := context.WithoutCancel(r.ctx)
	s.settleFailure(ctx, r, r.def.failureKind(cause), cause)
}

// settleFailure records a failed task, freeing its capacity slot, then puts
// the document into error. The caller must have claimed the run.
func (s *Scheduler) settleFailure(ctx context.Context, r *run, kind services.Kind, cause error) {
	logger := logging.WithContext(ctx, s.logger)
	message := strings.TrimSpace(cause.Error())
	details := services.Details(cause)
	s.setLastError(cause)

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorKind, string(kind)),
		logging.Int("attempts", int(r.attempts.Load())),
		logging.Int(logging.FieldProgress, int(r.progress.Load())),
		logging.Error(cause),
	}
	if details.Hint != "" {
		attrs = append(attrs, logging.String(logging.FieldErrorHint, details.Hint))
	}
	logger.Error("stage failed", logging.Args(attrs...)...)

	if err := s.settleTask(r.task.ID, func() error {
		return s.failTask(ctx, r.task.ID, kind, message, int(r.progress.Load()), int(r.attempts.Load()))
	}); err != nil {
		logger.Error("failed to persist task failure", logging.Error(err))
	}

	summary := strings.TrimSpace(details.Message)
	if summary == "" {
		summary = message
	}
	doc, err := s.markDocumentError(ctx, r.task.ID, r.def, summary)
	if err != nil {
		logger.Error("failed to persist document error", logging.Error(err))
	}
	s.notifyFailure(ctx, r.def, doc, kind, summary)
}

// failTask moves a task to failed, passing through processing when it never
// got that far.
func (s *Scheduler) failTask(ctx context.Context, taskID string, kind services.Kind, message string, progress, attempts int) error {
	task, err := s.ledger.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status == ledger.StatusQueued {
		if _, err := s.ledger.Transition(ctx, taskID, ledger.StatusProcessing); err != nil {
			return err
		}
	}
	opts := []ledger.TransitionOption{ledger.WithFailure(string(kind), message)}
	if progress > 0 {
		opts = append(opts, ledger.WithProgress(progress))
	}
	if attempts > 0 {
		opts = append(opts, ledger.WithAttempts(attempts))
	}
	_, err = s.ledger.Transition(ctx, taskID, ledger.StatusFailed, opts...)
	return err
}

// markDocumentError puts the document into error, resumable from the status
// the stage started from.
func (s *Scheduler) markDocumentError(ctx context.Context, taskID string, def pipelineStage, summary string) (*store.Document, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	task, err := s.ledger.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, task.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if doc.Status != def.processing {
		return doc, nil
	}
	doc.Status = store.StatusError
	doc.ResumeStatus = def.requires
	doc.ErrorMessage = fmt.Sprintf("%s failed: %s", def.taskType, summary)
	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}
