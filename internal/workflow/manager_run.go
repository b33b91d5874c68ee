package workflow

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"shelfarr/internal/logging"
	"shelfarr/internal/queue"
)

// Start begins the background poll loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go m.run(runCtx, done)
	m.logger.Info("workflow started",
		logging.Duration("poll_interval", m.pollInterval),
		logging.Int("max_concurrent_jobs", m.concurrency()),
	)
	return nil
}

// Stop cancels the poll loop and waits for in-flight advances to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	done := m.done
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	<-done
	m.logger.Info("workflow stopped")
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(m.concurrency())
	defer func() { _ = group.Wait() }()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		m.sweep(groupCtx, group)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sweep schedules an advance for every active job not already in flight.
// When the worker group is full the remaining jobs wait for the next tick.
func (m *Manager) sweep(ctx context.Context, group *errgroup.Group) {
	m.mu.Lock()
	m.lastTick = m.now()
	m.mu.Unlock()

	jobs, err := m.store.List(ctx, queue.ActiveStatuses()...)
	if err != nil {
		if ctx.Err() == nil {
			m.setLastError(err)
			logging.WarnWithContext(m.logger, "list active jobs failed", "poll_list_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		return
	}
	m.refreshStatusGauge(ctx)

	now := m.now()
	for _, job := range jobs {
		if job.Status == queue.StatusPending && job.NextSearchAt != nil && job.NextSearchAt.After(now) {
			continue
		}
		id := job.ID
		if !m.claim(id) {
			continue
		}
		started := group.TryGo(func() error {
			defer m.release(id)
			if _, err := m.Advance(ctx, id); err != nil && ctx.Err() == nil {
				logging.WarnWithContext(m.logger, "advance failed", "advance_failed",
					logging.JobID(id),
					logging.Error(err),
				)
			}
			return nil
		})
		if !started {
			m.release(id)
			return
		}
	}
}

func (m *Manager) claim(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.busy[id]; ok {
		return false
	}
	m.busy[id] = struct{}{}
	return true
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.busy, id)
	m.mu.Unlock()
}

func (m *Manager) refreshStatusGauge(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	counts, err := m.store.Stats(ctx)
	if err != nil {
		return
	}
	m.metrics.SetStatusCounts(counts)
}

func (m *Manager) concurrency() int {
	if m.cfg.Workflow.MaxConcurrentJobs <= 0 {
		return 4
	}
	return m.cfg.Workflow.MaxConcurrentJobs
}
