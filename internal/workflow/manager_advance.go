package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shelfarr/internal/indexer"
	"shelfarr/internal/logging"
	"shelfarr/internal/queue"
	"shelfarr/internal/services"
	"shelfarr/internal/torrent"
)

// stepFunc runs against a locked job. cause is a pipeline failure already
// recorded on the job; err is a failure to persist or a context error.
type stepFunc func(ctx context.Context, job *queue.Job) (cause error, err error)

// Advance applies at most one row of the transition table to the job and
// returns the job as stored afterwards.
func (m *Manager) Advance(ctx context.Context, id string) (*queue.Job, error) {
	return m.runStep(ctx, id, func(stepCtx context.Context, job *queue.Job) (error, error) {
		if !job.Status.IsActive() {
			return nil, nil
		}
		return m.step(stepCtx, job)
	})
}

// runStep registers a cancel func for id, takes the job lock, re-reads the
// job and runs fn. A step interrupted by Cancel is discarded and the stored
// job is returned unchanged.
func (m *Manager) runStep(ctx context.Context, id string, fn stepFunc) (*queue.Job, error) {
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	token := m.inflight.register(id, cancel)
	defer m.inflight.unregister(id, token)

	job, unlock, err := m.lockJob(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if stepCtx.Err() != nil {
		return m.discard(ctx, job)
	}

	from := job.Status
	started := m.now()
	stepCtx = services.WithStage(services.WithJobID(stepCtx, job.ID), string(from))
	cause, err := fn(stepCtx, job)

	if stepCtx.Err() != nil && ctx.Err() == nil {
		return m.discard(ctx, job)
	}
	if err != nil {
		m.setLastError(err)
		return nil, err
	}
	if from.IsActive() {
		m.metrics.ObserveStep(from, started, cause, services.IsRetryable(cause))
	}
	m.setLastError(cause)
	return job, nil
}

func (m *Manager) discard(ctx context.Context, job *queue.Job) (*queue.Job, error) {
	m.jobLogger(ctx, job).Info("advance cancelled; result discarded",
		logging.String(logging.FieldEventType, "advance_discarded"),
	)
	current, err := m.store.GetByID(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, job.ID)
	}
	return current, nil
}

func (m *Manager) step(ctx context.Context, job *queue.Job) (error, error) {
	switch job.Status {
	case queue.StatusPending:
		return m.stepSearch(ctx, job, true)
	case queue.StatusSearching:
		return m.stepSearch(ctx, job, false)
	case queue.StatusAwaitingResult:
		return m.stepFetch(ctx, job)
	case queue.StatusDownloading:
		return m.stepDownload(ctx, job)
	case queue.StatusPostProcessing:
		return m.stepProcess(ctx, job)
	case queue.StatusPublishing:
		return m.stepPublish(ctx, job)
	default:
		return nil, nil
	}
}

// stepSearch runs Pending -> Searching -> AwaitingResult, or back to Pending
// with a deferral when nothing matched. A job found in Searching was
// interrupted mid-search and searches again.
func (m *Manager) stepSearch(ctx context.Context, job *queue.Job, fromPending bool) (error, error) {
	now := m.now()
	if fromPending {
		if job.NextSearchAt != nil && job.NextSearchAt.After(now) {
			return nil, nil
		}
		job.Status = queue.StatusSearching
		if err := m.transition(ctx, job, queue.StatusPending); err != nil {
			return nil, err
		}
	}
	if m.indexer == nil {
		return m.fail(ctx, job, services.Wrap(services.ErrConfiguration, "workflow", "search", "indexer not configured", nil))
	}

	results, err := m.indexer.Search(ctx, job.MediaKind, searchTerms(job))
	if err != nil {
		if ctx.Err() != nil {
			return err, ctx.Err()
		}
		if services.FailureStatus(queue.StatusSearching, err) == queue.StatusSearching {
			next := now.Add(m.retryBackoff(0)).UTC()
			job.Status = queue.StatusPending
			job.NextSearchAt = &next
			job.LastError = services.Details(err)
			logging.WarnWithContext(m.jobLogger(ctx, job), "search failed; will retry", "search_transient_failure",
				logging.Error(err),
				logging.String("next_search_at", next.Format(time.RFC3339)),
				logging.String(logging.FieldErrorHint, "check indexer reachability"),
			)
			return err, m.transition(ctx, job, queue.StatusSearching)
		}
		return m.fail(ctx, job, err)
	}
	m.metrics.ObserveSearchResults(len(results))

	best, ok := indexer.BestFor(results, job.Title)
	if !ok {
		next := now.Add(m.searchRetryInterval()).UTC()
		job.Status = queue.StatusPending
		job.NextSearchAt = &next
		job.LastError = ""
		m.jobLogger(ctx, job).Info("no matching search results; search deferred",
			logging.String("query", job.SearchQuery()),
			logging.Int("candidates", len(results)),
			logging.String("next_search_at", next.Format(time.RFC3339)),
		)
		return nil, m.transition(ctx, job, queue.StatusSearching)
	}

	job.Status = queue.StatusAwaitingResult
	job.IndexerRef = best.Ref().String()
	job.NextSearchAt = nil
	job.LastError = ""
	if job.Title == "" {
		job.Title = best.Title
	}
	if len(job.Authors) == 0 {
		job.Authors = append([]string(nil), best.Authors...)
	}
	if len(job.Narrators) == 0 {
		job.Narrators = append([]string(nil), best.Narrators...)
	}
	m.jobLogger(ctx, job).Info("search result selected",
		logging.String("indexer_ref", job.IndexerRef),
		logging.String("result_title", best.Title),
		logging.Int("seeders", best.Seeders),
		logging.Int64("size", best.Size),
		logging.Int("candidates", len(results)),
	)
	return nil, m.transition(ctx, job, queue.StatusSearching)
}

// stepFetch downloads the chosen payload and submits it to the backend.
func (m *Manager) stepFetch(ctx context.Context, job *queue.Job) (error, error) {
	ref, err := indexer.ParseRef(job.IndexerRef)
	if err != nil {
		return m.requeue(ctx, job, err, false)
	}
	if m.indexer == nil || m.transfer == nil {
		return m.fail(ctx, job, services.Wrap(services.ErrConfiguration, "workflow", "fetch", "indexer or torrent backend not configured", nil))
	}

	data, err := m.indexer.Fetch(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return err, ctx.Err()
		}
		if errors.Is(err, services.ErrNotFound) {
			return m.requeue(ctx, job, err, true)
		}
		return m.fail(ctx, job, err)
	}

	hash, err := m.transfer.Submit(ctx, data, torrent.SubmitOptions{JobID: job.ID})
	if err != nil {
		return m.fail(ctx, job, err)
	}
	if err := m.transfer.ApplySeedLimits(ctx, hash, m.seedPolicy); err != nil {
		logging.WarnWithContext(m.jobLogger(ctx, job), "seed limits not applied", "seed_limits_failed",
			logging.Error(err),
			logging.TorrentHash(hash),
			logging.String(logging.FieldImpact, "torrent seeds under backend defaults"),
		)
	}

	job.Status = queue.StatusDownloading
	job.TorrentRef = hash
	job.SeedStartedAt = nil
	job.SeedElapsedSeconds = 0
	job.LastError = ""
	return nil, m.transition(ctx, job, queue.StatusAwaitingResult)
}

// requeue returns an AwaitingResult job to Pending. deferred jobs wait for
// the search retry interval before searching again.
func (m *Manager) requeue(ctx context.Context, job *queue.Job, cause error, deferred bool) (error, error) {
	job.Status = queue.StatusPending
	job.IndexerRef = ""
	job.LastError = services.Details(cause)
	job.NextSearchAt = nil
	if deferred {
		next := m.now().Add(m.searchRetryInterval()).UTC()
		job.NextSearchAt = &next
	}
	logging.WarnWithContext(m.jobLogger(ctx, job), "search result unavailable; job requeued", "result_unavailable",
		logging.Error(cause),
		logging.Bool("deferred", deferred),
	)
	return cause, m.transition(ctx, job, queue.StatusAwaitingResult)
}

// stepDownload polls the backend and hands finished content to
// post-processing once the seed policy allows it.
func (m *Manager) stepDownload(ctx context.Context, job *queue.Job) (error, error) {
	if m.transfer == nil {
		return m.fail(ctx, job, services.Wrap(services.ErrConfiguration, "workflow", "poll", "torrent backend not configured", nil))
	}
	status, err := m.transfer.Poll(ctx, job.TorrentRef)
	if err != nil {
		return m.fail(ctx, job, err)
	}
	switch status.State {
	case torrent.StateMissing:
		return m.fail(ctx, job, services.Wrap(services.ErrNotFound, "torrent", "poll", "torrent no longer present in backend", nil))
	case torrent.StateErrored:
		return m.fail(ctx, job, services.Wrap(services.ErrExternalTool, "torrent", "poll", "backend reported error state "+status.RawState, nil))
	}

	from := job.Status
	if !status.Done() {
		if job.LastError == "" {
			return nil, nil
		}
		job.LastError = ""
		return nil, m.transition(ctx, job, from)
	}

	now := m.now()
	if job.SeedStartedAt == nil {
		started := now.UTC()
		job.SeedStartedAt = &started
	}
	elapsed := torrent.SeedElapsed(*job.SeedStartedAt, now)
	if status.SeedingTimeSeconds > elapsed {
		elapsed = status.SeedingTimeSeconds
	}
	job.SeedElapsedSeconds = queue.ClampSeedSeconds(elapsed)
	job.LastError = ""

	if status.ContentPath == "" {
		cause := services.Wrap(services.ErrPathSecurity, "workflow", "poll",
			"download complete but content path is outside paths.remote_download_root", nil)
		job.LastError = services.Details(cause)
		logging.WarnWithContext(m.jobLogger(ctx, job), "download complete but content path untrusted", "content_path_untrusted",
			logging.TorrentHash(job.TorrentRef),
			logging.Error(cause),
			logging.String(logging.FieldErrorHint, "check paths.remote_download_root matches the backend save path"),
		)
		return nil, m.transition(ctx, job, from)
	}
	if m.cfg.PostProcess.WaitForSeed && job.SeedElapsedSeconds < m.cfg.MinSeedSeconds() {
		return nil, m.transition(ctx, job, from)
	}

	job.ContentPath = status.ContentPath
	job.Status = queue.StatusPostProcessing
	return nil, m.transition(ctx, job, from)
}

// stepProcess converts and places the content. Imported jobs carry a local
// path and no torrent reference.
func (m *Manager) stepProcess(ctx context.Context, job *queue.Job) (error, error) {
	if m.processor == nil {
		return m.fail(ctx, job, services.Wrap(services.ErrConfiguration, "workflow", "process", "post-processor not configured", nil))
	}
	local := job.ContentPath
	if job.TorrentRef != "" {
		if m.transfer == nil {
			return m.fail(ctx, job, services.Wrap(services.ErrConfiguration, "workflow", "process", "torrent backend not configured", nil))
		}
		mapped, err := m.transfer.MapPath(job.ContentPath)
		if err != nil {
			return m.fail(ctx, job, err)
		}
		local = mapped
	}

	result, err := m.processor.Process(ctx, job, local)
	if err != nil {
		return m.fail(ctx, job, err)
	}

	job.DestinationPath = result.DestinationPath
	if job.Title == "" {
		job.Title = result.Title
	}
	if len(job.Authors) == 0 && result.Author != "" {
		job.Authors = []string{result.Author}
	}
	job.Status = queue.StatusPublishing
	job.LastError = ""
	return nil, m.transition(ctx, job, queue.StatusPostProcessing)
}

// stepPublish asks the library to rescan and completes the job. A failed
// rescan still completes the job with PublishPending set.
func (m *Manager) stepPublish(ctx context.Context, job *queue.Job) (error, error) {
	var cause error
	if job.PublishedAt == nil {
		cause = m.publish(ctx, job)
		if cause != nil && ctx.Err() != nil {
			return cause, ctx.Err()
		}
	}
	job.Status = queue.StatusCompleted
	if err := m.transition(ctx, job, queue.StatusPublishing); err != nil {
		return cause, err
	}
	m.notify(ctx, eventCompleted, job, "")
	if job.PublishPending {
		m.notify(ctx, eventPublishPending, job, job.LastError)
	}
	return cause, nil
}

// publish calls the publisher and records the outcome on job without
// persisting it.
func (m *Manager) publish(ctx context.Context, job *queue.Job) error {
	if err := m.publisher.Publish(ctx, job); err != nil {
		job.PublishPending = true
		job.LastError = services.Details(err)
		m.metrics.IncPublishFailure()
		logging.WarnWithContext(m.jobLogger(ctx, job), "library rescan failed; will retry", "publish_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "artifact placed but library not refreshed"),
		)
		return err
	}
	published := m.now().UTC()
	job.PublishedAt = &published
	job.PublishPending = false
	job.LastError = ""
	return nil
}

// fail records cause on job. Transient causes keep the current status;
// everything else moves the job to Failed.
func (m *Manager) fail(ctx context.Context, job *queue.Job, cause error) (error, error) {
	if ctx.Err() != nil {
		return cause, ctx.Err()
	}
	from := job.Status
	target := services.FailureStatus(from, cause)
	if target != from && !queue.CanTransition(from, target) {
		target = from
	}
	job.LastError = services.Details(cause)
	logger := m.jobLogger(ctx, job)

	if target == from {
		logging.WarnWithContext(logger, "step failed; job keeps status", "step_transient_failure",
			logging.Error(cause),
			logging.Status(string(from)),
			logging.String(logging.FieldErrorHint, "recheck will revisit the job"),
		)
		return cause, m.transition(ctx, job, from)
	}

	job.Status = target
	if err := m.transition(ctx, job, from); err != nil {
		return cause, err
	}
	logging.ErrorWithContext(logger, "job failed", "job_failed",
		logging.Error(cause),
		logging.String("from", string(from)),
		logging.Bool("retryable", services.IsRetryable(cause)),
	)
	m.notify(ctx, eventFailed, job, string(from))
	return cause, nil
}

func (m *Manager) searchRetryInterval() time.Duration {
	hours := m.cfg.Workflow.SearchRetryHours
	if hours <= 0 {
		hours = 72
	}
	return time.Duration(hours) * time.Hour
}

// retryBackoff returns retry_backoff * 2^attempt capped at 24h.
func (m *Manager) retryBackoff(attempt int) time.Duration {
	return RetryBackoff(m.cfg.Workflow.RetryBackoffSeconds, attempt)
}

// RetryBackoff returns base seconds doubled per attempt, capped at 24h.
func RetryBackoff(baseSeconds, attempt int) time.Duration {
	const maxBackoff = 24 * time.Hour
	if baseSeconds <= 0 {
		baseSeconds = 300
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Duration(baseSeconds) * time.Second
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

func searchTerms(job *queue.Job) []string {
	if terms := compact(job.SearchTerms); len(terms) > 0 {
		return terms
	}
	return compact([]string{job.Title, job.PrimaryAuthor()})
}
