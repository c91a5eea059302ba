package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slidewright/internal/ledger"
	"slidewright/internal/logging"
	"slidewright/internal/services"
	"slidewright/internal/store"
)

const restartMessage = "interrupted by restart"

func (s *Scheduler) watchdog(ctx context.Context) {
	defer s.wg.Done()
	if s.taskTimeout <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(s.watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.reapOverdue(now)
		}
	}
}

// reapOverdue fails every run older than the task timeout and cancels its
// executor. It returns the number of runs it settled.
func (s *Scheduler) reapOverdue(now time.Time) int {
	s.runsMu.Lock()
	var overdue []*run
	for _, r := range s.inflight {
		if now.Sub(r.started) >= s.taskTimeout {
			overdue = append(overdue, r)
		}
	}
	s.runsMu.Unlock()

	reaped := 0
	for _, r := range overdue {
		if !r.claim() {
			continue
		}
		r.cancel()
		cause := services.Wrap(services.ErrTimeout, string(r.def.taskType), "watchdog",
			fmt.Sprintf("no result after %s", s.taskTimeout), nil)
		s.settleFailure(context.WithoutCancel(r.ctx), r, services.KindTimeout, cause)
		reaped++
	}
	return reaped
}

// recoverInterrupted fails tasks that a previous process left queued or
// processing. Their executors are gone, so no result can ever arrive.
func (s *Scheduler) recoverInterrupted(ctx context.Context) error {
	tasks, err := s.ledger.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		def, ok := pipeline[task.Type]
		if !ok {
			continue
		}
		taskCtx := services.WithTaskID(services.WithDocumentID(ctx, task.DocumentID), task.ID)
		if err := s.failTask(taskCtx, task.ID, services.KindTimeout, restartMessage, task.Progress, task.Attempts); err != nil {
			return fmt.Errorf("fail task %s: %w", task.ID, err)
		}
		doc, err := s.markDocumentError(taskCtx, task.ID, def, restartMessage)
		if err != nil && !isMissing(err) {
			return fmt.Errorf("mark document %s: %w", task.DocumentID, err)
		}
		status := ""
		if doc != nil {
			status = string(doc.Status)
		}
		logging.WarnWithContext(logging.WithContext(taskCtx, s.logger), "interrupted task failed", "task_recovered",
			logging.String(logging.FieldStage, string(task.Type)),
			logging.String("document_status", status),
			logging.String(logging.FieldImpact, "re-request the stage to resume"),
		)
	}
	return nil
}

func isMissing(err error) bool {
	return errors.Is(err, store.ErrNotFound) || errors.Is(err, ledger.ErrNotFound)
}
