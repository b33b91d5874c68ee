// Package recheck periodically revisits jobs the poll loop leaves alone:
// deferred searches, stalled torrents, pending library rescans and failed
// jobs whose last error looks transient.
package recheck

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"shelfarr/internal/config"
	"shelfarr/internal/logging"
	"shelfarr/internal/metrics"
	"shelfarr/internal/queue"
	"shelfarr/internal/services"
	"shelfarr/internal/staging"
	"shelfarr/internal/workflow"
)

// Workflow is the subset of workflow.Manager a sweep drives.
type Workflow interface {
	Advance(ctx context.Context, id string) (*queue.Job, error)
	Resume(ctx context.Context, id string) (bool, error)
	RetryPublish(ctx context.Context, id string) (*queue.Job, error)
	Retry(ctx context.Context, id string) (*queue.Job, error)
	MaxRetries() int
}

// Report summarizes one sweep.
type Report struct {
	Searched  int
	Resumed   int
	Published int
	Retried   int
	Reclaimed int
	Errors    int
}

// Scheduler runs sweeps on its own cadence with its own cancellation,
// independent of job cancellation.
type Scheduler struct {
	cfg      *config.Config
	store    *queue.Store
	workflow Workflow
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a scheduler. m may be nil.
func New(cfg *config.Config, store *queue.Store, wf Workflow, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		workflow: wf,
		metrics:  m,
		logger:   logging.NewComponentLogger(logger, "recheck"),
		now:      time.Now,
	}
}

// Start runs a sweep immediately and then every recheck interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("recheck scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.loop(runCtx, s.done)
	return nil
}

// Stop cancels the current sweep and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	interval := time.Duration(s.cfg.Workflow.RecheckInterval) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report := s.Sweep(ctx)
		if ctx.Err() == nil {
			s.logger.Info("recheck sweep finished",
				logging.Int("searched", report.Searched),
				logging.Int("resumed", report.Resumed),
				logging.Int("published", report.Published),
				logging.Int("retried", report.Retried),
				logging.Int("reclaimed", report.Reclaimed),
				logging.Int("errors", report.Errors),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs every recheck pass once. Jobs are handled concurrently with a
// bounded worker group; one slow job never blocks the others from starting.
func (s *Scheduler) Sweep(ctx context.Context) Report {
	started := s.now()
	defer s.metrics.ObserveRecheck(started)

	var searched, resumed, published, retried, failures atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency())

	record := func(id, pass string, err error) {
		if err == nil || groupCtx.Err() != nil {
			return
		}
		failures.Add(1)
		logging.WarnWithContext(s.logger, "recheck pass failed for job", "recheck_job_failed",
			logging.JobID(id),
			logging.String("pass", pass),
			logging.Error(err),
		)
	}

	for _, job := range s.load(ctx, "search", func() ([]*queue.Job, error) {
		return s.store.DueForSearch(ctx, started, s.batchSize())
	}) {
		id := job.ID
		group.Go(func() error {
			_, err := s.workflow.Advance(groupCtx, id)
			if err == nil {
				searched.Add(1)
			}
			record(id, "search", err)
			return nil
		})
	}

	for _, job := range s.load(ctx, "resume", func() ([]*queue.Job, error) {
		return s.store.JobsByStatus(ctx, queue.StatusDownloading)
	}) {
		id := job.ID
		group.Go(func() error {
			ok, err := s.workflow.Resume(groupCtx, id)
			if ok {
				resumed.Add(1)
			}
			record(id, "resume", err)
			return nil
		})
	}

	for _, job := range s.load(ctx, "publish", func() ([]*queue.Job, error) {
		return s.store.PendingPublish(ctx)
	}) {
		id := job.ID
		group.Go(func() error {
			updated, err := s.workflow.RetryPublish(groupCtx, id)
			if err == nil && updated != nil && !updated.PublishPending {
				published.Add(1)
			}
			record(id, "publish", err)
			return nil
		})
	}

	for _, job := range s.load(ctx, "retry", func() ([]*queue.Job, error) {
		return s.store.JobsByStatus(ctx, queue.StatusFailed)
	}) {
		if !s.retryDue(job, started) {
			continue
		}
		id := job.ID
		group.Go(func() error {
			_, err := s.workflow.Retry(groupCtx, id)
			if err == nil {
				retried.Add(1)
			}
			if errors.Is(err, workflow.ErrRetryLimit) || errors.Is(err, workflow.ErrNotRetryable) {
				err = nil
			}
			record(id, "retry", err)
			return nil
		})
	}

	_ = group.Wait()

	// Live post-processing runs are bounded by the processing timeout.
	var cleaned staging.CleanResult
	if timeout := s.cfg.ProcessingTimeout(); timeout > 0 {
		cleaned = staging.CleanStale(ctx, s.cfg.Paths.StagingDir, 2*timeout, s.logger)
	}

	return Report{
		Searched:  int(searched.Load()),
		Resumed:   int(resumed.Load()),
		Published: int(published.Load()),
		Retried:   int(retried.Load()),
		Reclaimed: len(cleaned.Removed),
		Errors:    int(failures.Load()) + len(cleaned.Errors),
	}
}

// retryDue reports whether a Failed job is eligible for an automatic retry:
// its last error is transient, retries remain and the backoff
// retry_backoff * 2^retry_count has elapsed since it failed.
func (s *Scheduler) retryDue(job *queue.Job, now time.Time) bool {
	if job.RetryCount >= s.workflow.MaxRetries() {
		return false
	}
	if !services.RetryableDetail(job.LastError) {
		return false
	}
	backoff := workflow.RetryBackoff(s.cfg.Workflow.RetryBackoffSeconds, job.RetryCount)
	return !now.Before(job.UpdatedAt.Add(backoff))
}

func (s *Scheduler) load(ctx context.Context, pass string, fn func() ([]*queue.Job, error)) []*queue.Job {
	if ctx.Err() != nil {
		return nil
	}
	jobs, err := fn()
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(s.logger, "recheck query failed", "recheck_query_failed",
				logging.String("pass", pass),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		return nil
	}
	return jobs
}

func (s *Scheduler) batchSize() int {
	if s.cfg.Workflow.SearchBatchSize <= 0 {
		return 5
	}
	return s.cfg.Workflow.SearchBatchSize
}

func (s *Scheduler) concurrency() int {
	if s.cfg.Workflow.MaxConcurrentJobs <= 0 {
		return 4
	}
	return s.cfg.Workflow.MaxConcurrentJobs
}
