package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const healthProbeTimeout = 2 * time.Second

// DatabaseHealth is the result of probing the job database file.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// Stats counts jobs per status. Statuses without jobs are absent.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	stats := make(map[Status]int)
	err := s.eachStatusCount(ctx, func(status Status, count, _ int) {
		stats[status] = count
	})
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

// Health buckets job counts into the lifecycle groups shown by `shelfarr health`.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	var health HealthSummary
	err := s.eachStatusCount(ctx, func(status Status, count, publishPending int) {
		health.Total += count
		health.PublishPending += publishPending
		switch {
		case status == StatusPending:
			health.Pending += count
		case status == StatusFailed:
			health.Failed += count
		case status == StatusCompleted:
			health.Completed += count
		case status == StatusCancelled:
			health.Cancelled += count
		case status.IsActive():
			health.Active += count
		}
	})
	if err != nil {
		return HealthSummary{}, fmt.Errorf("job health: %w", err)
	}
	return health, nil
}

func (s *Store) eachStatusCount(ctx context.Context, fn func(status Status, count, publishPending int)) error {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(1), COALESCE(SUM(publish_pending), 0) FROM jobs GROUP BY status`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status         Status
			count, pending int
		)
		if err := rows.Scan(&status, &count, &pending); err != nil {
			return err
		}
		fn(status, count, pending)
	}
	return rows.Err()
}

// CheckHealth probes the database file, connectivity, row count and
// integrity in that order, stopping at the first failure.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("job database path is unknown")
	}

	switch info, err := os.Stat(s.path); {
	case errors.Is(err, os.ErrNotExist):
		return health, nil
	case err != nil:
		return health, fmt.Errorf("stat job database: %w", err)
	case info.IsDir():
		return health, fmt.Errorf("job database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	ctx, cancel := context.WithTimeout(ensureContext(ctx), healthProbeTimeout)
	defer cancel()

	var integrity string
	probes := []struct {
		name string
		run  func() error
		mark func()
	}{
		{"ping job database", func() error { return s.db.PingContext(ctx) }, func() { health.DatabaseReadable = true }},
		{"count jobs", func() error {
			return s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs`).Scan(&health.TotalJobs)
		}, func() {}},
		{"integrity check", func() error {
			return s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&integrity)
		}, func() { health.IntegrityCheck = strings.EqualFold(integrity, "ok") }},
	}
	for _, probe := range probes {
		if err := probe.run(); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("%s: %w", probe.name, err)
		}
		probe.mark()
	}
	return health, nil
}
