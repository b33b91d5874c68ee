package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"shelfarr/internal/app"
	"shelfarr/internal/config"
	"shelfarr/internal/deps"
	"shelfarr/internal/logging"
	"shelfarr/internal/metrics"
	"shelfarr/internal/notifications"
	"shelfarr/internal/preflight"
	"shelfarr/internal/queue"
	"shelfarr/internal/recheck"
	"shelfarr/internal/staging"
	"shelfarr/internal/workflow"
)

const preflightTimeout = 20 * time.Second

// PreflightFunc runs startup checks.
type PreflightFunc func(ctx context.Context, cfg *config.Config) []preflight.Result

// Option customizes a Daemon.
type Option func(*Daemon)

// WithPreflight replaces the startup checks.
func WithPreflight(fn PreflightFunc) Option {
	return func(d *Daemon) {
		if fn != nil {
			d.preflight = fn
		}
	}
}

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	metrics   *metrics.Metrics
	workflow  *workflow.Manager
	recheck   *recheck.Scheduler
	preflight PreflightFunc

	lockPath string
	pidPath  string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	api     *apiServer

	checksMu sync.Mutex
	checks   []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	SocketPath   string
	Dependencies []deps.Status
	Preflight    []preflight.Result
}

// New constructs a daemon around the process context. The workflow manager
// is built here so configuration errors surface before any lock is taken.
func New(appCtx *app.Context, opts ...Option) (*Daemon, error) {
	if appCtx == nil || appCtx.Config == nil || appCtx.Store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	wf, err := appCtx.Workflow()
	if err != nil {
		return nil, fmt.Errorf("build workflow: %w", err)
	}
	cfg := appCtx.Config
	lockPath := filepath.Join(cfg.Paths.StateDir, "shelfarr.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(appCtx.Logger, "daemon"),
		store:     appCtx.Store,
		metrics:   appCtx.Metrics,
		workflow:  wf,
		recheck:   recheck.New(cfg, appCtx.Store, wf, appCtx.Metrics, appCtx.Logger),
		preflight: preflight.RunAll,
		lockPath:  lockPath,
		pidPath:   filepath.Join(cfg.Paths.StateDir, "shelfarr.pid"),
		lock:      flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock and launches the poll loop, the recheck
// scheduler and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another shelfarr daemon instance is already running")
	}
	if err := d.writePID(); err != nil {
		d.releaseLock()
		return fmt.Errorf("write pid file: %w", err)
	}

	d.runPreflight(ctx)
	d.reclaimStaging(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		d.releaseLock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.recheck.Start(runCtx); err != nil {
		d.workflow.Stop()
		cancel()
		d.releaseLock()
		return fmt.Errorf("start recheck: %w", err)
	}
	srv := newAPIServer(d.cfg, d, d.logger)
	if err := srv.start(runCtx); err != nil {
		d.recheck.Stop()
		d.workflow.Stop()
		cancel()
		d.releaseLock()
		return err
	}

	d.api = srv
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("shelfarr daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("pid", os.Getpid()),
		logging.String("api", d.APIAddress()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.api = nil
	d.recheck.Stop()
	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("shelfarr daemon stopped")
}

// Close releases resources held by the daemon. The store is owned by the
// caller and left open.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

func (d *Daemon) releaseLock() {
	if err := os.Remove(d.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("failed to remove pid file", logging.String("path", d.pidPath), logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

func (d *Daemon) writePID() error {
	return os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// reclaimStaging removes work directories left by runs that did not survive
// the previous daemon. Resumed post-processing jobs start from a fresh one.
func (d *Daemon) reclaimStaging(ctx context.Context) {
	result := staging.CleanOrphaned(ctx, d.cfg.Paths.StagingDir, nil, d.logger)
	if len(result.Removed) > 0 {
		d.logger.Info("reclaimed staging directories", logging.Int("removed_count", len(result.Removed)))
	}
}

func (d *Daemon) runPreflight(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, preflightTimeout)
	defer cancel()
	results := d.preflight(checkCtx, d.cfg)
	for _, failed := range preflight.Failed(results) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldImpact, "jobs depending on this check will fail until it is fixed"),
		)
	}
	d.checksMu.Lock()
	d.checks = results
	d.checksMu.Unlock()
}

// Workflow returns the workflow manager driven by the daemon.
func (d *Daemon) Workflow() *workflow.Manager { return d.workflow }

// Store returns the job store.
func (d *Daemon) Store() *queue.Store { return d.store }

// Metrics returns the shared Prometheus registry wrapper.
func (d *Daemon) Metrics() *metrics.Metrics { return d.metrics }

// APIAddress returns the bound HTTP API address, or "" when the API is off.
func (d *Daemon) APIAddress() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr
}

// PruneJobs removes terminal jobs last updated before now-olderThan.
func (d *Daemon) PruneJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan < 0 {
		return 0, fmt.Errorf("prune age must not be negative")
	}
	removed, err := d.store.ClearTerminal(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		d.logger.Info("terminal jobs pruned", logging.Int64("removed_count", removed))
	}
	return removed, nil
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Publish(ctx, notifications.EventTest, notifications.Payload{}); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.checksMu.Lock()
	checks := append([]preflight.Result(nil), d.checks...)
	d.checksMu.Unlock()

	status := Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		SocketPath:   d.cfg.SocketPath(),
		Dependencies: preflight.CheckSystemDeps(d.cfg),
		Preflight:    checks,
	}
	if status.Running {
		status.PID = os.Getpid()
	}
	return status
}
