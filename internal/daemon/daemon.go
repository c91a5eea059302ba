package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"slidewright/internal/api"
	"slidewright/internal/config"
	"slidewright/internal/ledger"
	"slidewright/internal/logging"
	"slidewright/internal/render"
	"slidewright/internal/store"
	"slidewright/internal/workflow"
)

// ErrAlreadyRunning is returned when another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("another slidewright daemon instance is already running")

// Daemon coordinates the scheduler and the HTTP API and enforces
// single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	ledger    *ledger.Ledger
	scheduler *workflow.Scheduler
	query     *api.QueryService

	lockPath string
	lock     *flock.Flock
	server   *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	OutputDir    string
	Workflow     workflow.StatusSummary
}

// New constructs a daemon around an opened store and a configured scheduler.
func New(cfg *config.Config, st *store.Store, led *ledger.Ledger, sched *workflow.Scheduler, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || led == nil || sched == nil {
		return nil, errors.New("daemon requires config, store, ledger, and scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := LockPath(cfg)
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     st,
		ledger:    led,
		scheduler: sched,
		query:     api.NewQueryService(st, led),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, d, logger)
	return d, nil
}

// LockPath returns the single-instance lock file location. Anything that
// runs a scheduler against the store must hold this lock.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "slidewright.lock")
}

// Start acquires the instance lock, starts the scheduler and begins serving
// the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.scheduler.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := d.server.start(runCtx); err != nil {
		d.scheduler.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("slidewright daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.server.address()),
	)
	return nil
}

// Stop stops the API, waits for in-flight stages to wind down and releases
// the instance lock.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.server.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("slidewright daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Handler returns the HTTP API handler.
func (d *Daemon) Handler() http.Handler {
	return d.server.handler()
}

// Addr returns the address the API is listening on, or "" before Start.
func (d *Daemon) Addr() string {
	return d.server.address()
}

// Templates loads the current render template catalog.
func (d *Daemon) Templates() ([]render.Template, error) {
	catalog, err := render.LoadCatalog(d.cfg.TemplatesPath())
	if err != nil {
		return nil, err
	}
	return catalog.Templates(), nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		OutputDir:    d.store.OutputDir(),
		Workflow:     d.scheduler.Status(ctx),
	}
}
