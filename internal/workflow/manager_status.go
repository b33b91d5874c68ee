package workflow

import (
	"context"
	"time"

	"shelfarr/internal/logging"
	"shelfarr/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	LastError  string
	LastJob    *queue.Job
	LastPoll   time.Time
	InFlight   int
	QueueStats map[queue.Status]int
	Health     queue.HealthSummary
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:  m.running,
		LastPoll: m.lastTick,
		InFlight: len(m.busy),
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		snapshot := *m.lastJob
		summary.LastJob = &snapshot
	}
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats

	health, err := m.store.Health(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue health", logging.Error(err))
	}
	summary.Health = health
	return summary
}
