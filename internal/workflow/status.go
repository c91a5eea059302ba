package workflow

import (
	"context"
	"sort"
	"time"

	"slidewright/internal/ledger"
	"slidewright/internal/logging"
	"slidewright/internal/stage"
	"slidewright/internal/store"
)

// RunningTask describes one task currently holding a capacity slot.
type RunningTask struct {
	TaskID     string      `json:"task_id"`
	DocumentID string      `json:"document_id"`
	Type       ledger.Type `json:"task_type"`
	Progress   int         `json:"progress"`
	Attempt    int         `json:"attempt"`
	StartedAt  time.Time   `json:"started_at"`
}

// StatusSummary is a point-in-time view of the scheduler.
type StatusSummary struct {
	Running     bool                         `json:"running"`
	Active      int                          `json:"active"`
	Capacity    int                          `json:"capacity"`
	Tasks       []RunningTask                `json:"tasks,omitempty"`
	Documents   map[store.DocumentStatus]int `json:"documents"`
	StageHealth map[string]stage.Health      `json:"stage_health"`
	LastError   string                       `json:"last_error,omitempty"`
}

// Status reports capacity use, in-flight tasks, document counts and stage
// health.
func (s *Scheduler) Status(ctx context.Context) StatusSummary {
	s.mu.RLock()
	running := s.running
	executors := make(map[ledger.Type]stage.Executor, len(s.executors))
	for k, v := range s.executors {
		executors[k] = v
	}
	s.mu.RUnlock()

	s.seqMu.Lock()
	active, limit := s.capacity.inUse(), s.capacity.limit
	s.seqMu.Unlock()

	s.runsMu.Lock()
	tasks := make([]RunningTask, 0, len(s.inflight))
	for _, r := range s.inflight {
		tasks = append(tasks, RunningTask{
			TaskID:     r.task.ID,
			DocumentID: r.task.DocumentID,
			Type:       r.def.taskType,
			Progress:   int(r.progress.Load()),
			Attempt:    int(r.attempts.Load()),
			StartedAt:  r.started,
		})
	}
	lastErr := s.lastErr
	s.runsMu.Unlock()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].StartedAt.Before(tasks[j].StartedAt) })

	docs, err := s.store.DocumentStats(ctx)
	if err != nil {
		s.logger.Warn("failed to read document stats", logging.Error(err))
	}
	health := make(map[string]stage.Health, len(executors))
	for taskType, exec := range executors {
		health[string(taskType)] = exec.HealthCheck(ctx)
	}

	summary := StatusSummary{
		Running:     running,
		Active:      active,
		Capacity:    limit,
		Tasks:       tasks,
		Documents:   docs,
		StageHealth: health,
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	return summary
}
