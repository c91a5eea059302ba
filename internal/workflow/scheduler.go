package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"slidewright/internal/config"
	"slidewright/internal/ledger"
	"slidewright/internal/logging"
	"slidewright/internal/notifications"
	"slidewright/internal/stage"
	"slidewright/internal/store"
)

const component = "scheduler"

// Scheduler admits stage requests, bounds how many tasks run at once, runs
// executors in the background and applies their outcome to the ledger and
// the document. It is the only writer of document processing status.
type Scheduler struct {
	store    *store.Store
	ledger   *ledger.Ledger
	logger   *slog.Logger
	notifier notifications.Service

	maxAttempts      int
	retryBackoff     time.Duration
	taskTimeout      time.Duration
	watchdogInterval time.Duration

	executors map[ledger.Type]stage.Executor

	// seqMu serializes admission, document status writes and capacity
	// accounting. Code holding seqMu must not acquire mu.
	seqMu    sync.Mutex
	capacity *capacity

	mu      sync.RWMutex
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	runsMu   sync.Mutex
	inflight map[string]*run
	lastErr  error
}

// Option configures optional Scheduler behavior.
type Option func(*Scheduler)

// WithNotifier sets the push notification service.
func WithNotifier(n notifications.Service) Option {
	return func(s *Scheduler) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithTaskTimeout overrides the configured per-task deadline.
func WithTaskTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.taskTimeout = d }
}

// WithRetryBackoff overrides the configured linear backoff unit.
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Scheduler) { s.retryBackoff = d }
}

// WithWatchdogInterval overrides how often overdue tasks are looked for.
func WithWatchdogInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.watchdogInterval = d }
}

// NewScheduler constructs a scheduler. Executors are added with Register
// before Start.
func NewScheduler(cfg *config.Config, st *store.Store, led *ledger.Ledger, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:            st,
		ledger:           led,
		logger:           logging.NewComponentLogger(logger, component),
		notifier:         notifications.NewService(cfg),
		maxAttempts:      cfg.Pipeline.RetryAttempts,
		retryBackoff:     cfg.RetryBackoff(),
		taskTimeout:      cfg.TaskTimeout(),
		watchdogInterval: cfg.WatchdogInterval(),
		executors:        make(map[ledger.Type]stage.Executor, len(pipeline)),
		capacity:         newCapacity(cfg.Pipeline.MaxConcurrent),
		inflight:         make(map[string]*run),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = 1
	}
	if s.watchdogInterval <= 0 {
		s.watchdogInterval = time.Second
	}
	return s
}

// Register installs the executor for a stage.
func (s *Scheduler) Register(taskType ledger.Type, exec stage.Executor) error {
	if _, ok := pipeline[taskType]; !ok {
		return fmt.Errorf("register executor: unknown stage %q", taskType)
	}
	if exec == nil {
		return fmt.Errorf("register executor: %s executor is nil", taskType)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("register executor: scheduler already running")
	}
	s.executors[taskType] = exec
	return nil
}

// Start recovers tasks interrupted by a previous process and begins the
// watchdog. Stage requests are rejected until Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	if len(s.executors) == 0 {
		s.mu.Unlock()
		return errors.New("scheduler has no stage executors")
	}
	s.mu.Unlock()

	if err := s.recoverInterrupted(ctx); err != nil {
		return fmt.Errorf("recover interrupted tasks: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.runCtx = runCtx
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.watchdog(runCtx)

	s.logger.Info("scheduler started",
		logging.String(logging.FieldEventType, "scheduler_start"),
		logging.Int("capacity", s.capacity.limit),
		logging.Int("retry_attempts", s.maxAttempts),
		logging.Duration("task_timeout", s.taskTimeout),
	)
	return nil
}

// Stop cancels in-flight executors and waits for their goroutines. Tasks
// that were still running stay non-terminal in the ledger and are failed by
// the next Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped", logging.String(logging.FieldEventType, "scheduler_stop"))
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) setLastError(err error) {
	s.runsMu.Lock()
	s.lastErr = err
	s.runsMu.Unlock()
}
