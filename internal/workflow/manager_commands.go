package workflow

import (
	"context"
	"errors"
	"fmt"

	"shelfarr/internal/logging"
	"shelfarr/internal/pathmap"
	"shelfarr/internal/queue"
	"shelfarr/internal/services"
)

var (
	// ErrNotRetryable is returned when Retry targets a job that is not Failed.
	ErrNotRetryable = errors.New("job is not in a retryable status")
	// ErrRetryLimit is returned once a job has used every allowed retry.
	ErrRetryLimit = errors.New("retry limit reached")
)

// MaxRetries returns the configured retry budget per job.
func (m *Manager) MaxRetries() int {
	if m.cfg.Workflow.MaxRetries <= 0 {
		return 3
	}
	return m.cfg.Workflow.MaxRetries
}

// Retry moves a Failed job back to Pending and increments RetryCount. It
// fails with ErrRetryLimit once RetryCount reaches the configured maximum.
func (m *Manager) Retry(ctx context.Context, id string) (*queue.Job, error) {
	job, unlock, err := m.lockJob(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if job.Status != queue.StatusFailed {
		return job, fmt.Errorf("%w: job %s is %s", ErrNotRetryable, job.ID, job.Status)
	}
	if job.RetryCount >= m.MaxRetries() {
		return job, fmt.Errorf("%w: job %s retried %d of %d times", ErrRetryLimit, job.ID, job.RetryCount, m.MaxRetries())
	}

	job.RetryCount++
	job.Status = queue.StatusPending
	job.LastError = ""
	job.NextSearchAt = nil
	job.IndexerRef = ""
	job.TorrentRef = ""
	job.ContentPath = ""
	job.DestinationPath = ""
	job.SeedStartedAt = nil
	job.SeedElapsedSeconds = 0
	if err := m.transition(ctx, job, queue.StatusFailed); err != nil {
		return nil, err
	}
	m.jobLogger(ctx, job).Info("job retried", logging.Int("retry_count", job.RetryCount))
	return job, nil
}

// Cancel interrupts any in-flight advance for the job and marks it
// Cancelled. Terminal jobs are returned unchanged.
func (m *Manager) Cancel(ctx context.Context, id string) (*queue.Job, error) {
	interrupted := m.inflight.cancel(id)

	job, unlock, err := m.lockJob(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if job.Status.IsTerminal() {
		return job, nil
	}
	from := job.Status
	job.Status = queue.StatusCancelled
	job.NextSearchAt = nil
	if err := m.transition(ctx, job, from); err != nil {
		return nil, err
	}
	m.jobLogger(ctx, job).Info("job cancelled",
		logging.String("from", string(from)),
		logging.Bool("interrupted", interrupted),
	)
	return job, nil
}

// ImportJob feeds a local directory or file under the import root straight
// to post-processing. The job must be Pending, AwaitingResult or Failed.
func (m *Manager) ImportJob(ctx context.Context, id, sourcePath string) (*queue.Job, error) {
	resolved, err := pathmap.Resolve(m.cfg.Paths.ImportRoot, sourcePath)
	switch {
	case errors.Is(err, services.ErrPathSecurity):
		logging.WarnWithContext(m.logger, "import path rejected", "import_path_rejected",
			logging.JobID(id),
			logging.Error(err),
		)
		return nil, err
	case err != nil:
		return nil, services.Wrap(services.ErrValidation, "workflow", "import", "import source not found", err)
	}

	return m.runStep(ctx, id, func(stepCtx context.Context, job *queue.Job) (error, error) {
		switch job.Status {
		case queue.StatusFailed:
			job.Status = queue.StatusPending
			if err := m.transition(stepCtx, job, queue.StatusFailed); err != nil {
				return nil, err
			}
		case queue.StatusPending, queue.StatusAwaitingResult:
		default:
			return nil, fmt.Errorf("%w: cannot import into %s job", queue.ErrInvalidTransition, job.Status)
		}

		from := job.Status
		job.Status = queue.StatusPostProcessing
		job.ContentPath = resolved
		job.TorrentRef = ""
		job.IndexerRef = ""
		job.NextSearchAt = nil
		job.LastError = ""
		if err := m.transition(stepCtx, job, from); err != nil {
			return nil, err
		}
		m.jobLogger(stepCtx, job).Info("manual import accepted", logging.String("source", resolved))
		return m.stepProcess(stepCtx, job)
	})
}

// RetryPublish repeats the library rescan for a Completed job with
// PublishPending set.
func (m *Manager) RetryPublish(ctx context.Context, id string) (*queue.Job, error) {
	job, unlock, err := m.lockJob(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if job.Status != queue.StatusCompleted || !job.PublishPending {
		return job, nil
	}
	cause := m.publish(ctx, job)
	if err := m.transition(ctx, job, queue.StatusCompleted); err != nil {
		return nil, err
	}
	if cause != nil {
		return job, cause
	}
	m.jobLogger(ctx, job).Info("library rescan succeeded on retry")
	return job, nil
}

// Resume restarts a paused or errored torrent for a Downloading job.
func (m *Manager) Resume(ctx context.Context, id string) (bool, error) {
	job, unlock, err := m.lockJob(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	if job.Status != queue.StatusDownloading || job.TorrentRef == "" || m.transfer == nil {
		return false, nil
	}
	resumed, err := m.transfer.ResumeIfInactive(ctx, job.TorrentRef)
	if err != nil {
		return false, err
	}
	if resumed {
		m.metrics.IncTorrentResume()
		m.jobLogger(ctx, job).Info("torrent resumed", logging.TorrentHash(job.TorrentRef))
	}
	return resumed, nil
}
