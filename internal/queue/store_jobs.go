package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateJob inserts job in StatusPending. ID, status and timestamps are
// assigned by the store. It fails with ErrActiveJobExists when a non-terminal
// job already exists for the same request and media kind.
func (s *Store) CreateJob(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	if strings.TrimSpace(job.RequestID) == "" {
		return nil, errors.New("request id is required")
	}
	kind, ok := ParseMediaKind(string(job.MediaKind))
	if !ok {
		return nil, fmt.Errorf("unknown media kind %q", job.MediaKind)
	}

	existing, err := s.ActiveForRequest(ctx, job.RequestID, kind)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: job %s is %s", ErrActiveJobExists, existing.ID, existing.Status)
	}

	id := strings.TrimSpace(job.ID)
	if id == "" {
		id = uuid.NewString()
	}
	timestamp := formatTime(time.Now())

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, request_id, media_kind, search_terms_json, title, authors_json,
            narrators_json, cover_url, status, retry_count, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id,
		strings.TrimSpace(job.RequestID),
		kind,
		encodeStrings(job.SearchTerms),
		nullableString(strings.TrimSpace(job.Title)),
		encodeStrings(job.Authors),
		encodeStrings(job.Narrators),
		nullableString(strings.TrimSpace(job.CoverURL)),
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: request %s (%s)", ErrActiveJobExists, job.RequestID, kind)
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. It returns nil, nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ActiveForRequest returns the non-terminal job for a request and kind, if any.
func (s *Store) ActiveForRequest(ctx context.Context, requestID string, kind MediaKind) (*Job, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs
         WHERE request_id = ? AND media_kind = ? AND status NOT IN (?, ?)
         LIMIT 1`,
		strings.TrimSpace(requestID),
		kind,
		StatusCompleted,
		StatusCancelled,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active job: %w", err)
	}
	return job, nil
}

// FindByTorrentRef returns the most recent job bound to an info-hash.
func (s *Store) FindByTorrentRef(ctx context.Context, ref string) (*Job, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE torrent_ref = ? ORDER BY created_at DESC LIMIT 1`,
		strings.ToLower(strings.TrimSpace(ref)),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by torrent ref: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		query := baseQuery + ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, statusArgs(statuses)...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return scanJobs(rows)
}

// JobsByStatus returns jobs matching a status ordered by creation time.
func (s *Store) JobsByStatus(ctx context.Context, status Status) ([]*Job, error) {
	return s.List(ctx, status)
}

// DueForSearch returns up to limit jobs that need a search: Pending jobs whose
// deferral has elapsed (or was never set) and AwaitingResult jobs.
func (s *Store) DueForSearch(ctx context.Context, now time.Time, limit int) ([]*Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs
         WHERE (status = ? AND (next_search_at IS NULL OR next_search_at <= ?))
            OR status = ?
         ORDER BY created_at
         LIMIT ?`,
		StatusPending,
		formatTime(now),
		StatusAwaitingResult,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query due searches: %w", err)
	}
	return scanJobs(rows)
}

// PendingPublish returns completed jobs whose library notification failed.
func (s *Store) PendingPublish(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? AND publish_pending = 1 ORDER BY updated_at`,
		StatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending publish: %w", err)
	}
	return scanJobs(rows)
}

// Update persists every mutable field of job without a transition check.
// Orchestration code uses UpdateTransition.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if _, ok := ParseStatus(string(job.Status)); !ok {
		return fmt.Errorf("unknown status %q", job.Status)
	}
	job.UpdatedAt = time.Now().UTC()
	job.SeedElapsedSeconds = ClampSeedSeconds(job.SeedElapsedSeconds)
	query, args := updateStatement(job)
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// UpdateTransition persists job, whose Status holds the target status, only
// if the stored status still equals from and from -> job.Status is an allowed
// edge. from == job.Status writes accounting fields under the same guard.
// The check and the write share one transaction.
func (s *Store) UpdateTransition(ctx context.Context, job *Job, from Status) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if from != job.Status && !CanTransition(from, job.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, job.Status)
	}
	ctx = ensureContext(ctx)
	job.SeedElapsedSeconds = ClampSeedSeconds(job.SeedElapsedSeconds)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transition tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var current string
		err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, job.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("read job status: %w", err)
		}
		if Status(current) != from {
			return fmt.Errorf("%w: expected %s, found %s", ErrStaleStatus, from, current)
		}

		job.UpdatedAt = time.Now().UTC()
		query, args := updateStatement(job)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("write transition: %w", err)
		}
		return tx.Commit()
	})
}

func updateStatement(job *Job) (string, []any) {
	return `UPDATE jobs
         SET search_terms_json = ?, title = ?, authors_json = ?, narrators_json = ?,
             cover_url = ?, status = ?, torrent_ref = ?, indexer_ref = ?, content_path = ?,
             seed_started_at = ?, seed_elapsed_seconds = ?, retry_count = ?, last_error = ?,
             updated_at = ?, next_search_at = ?, destination_path = ?, publish_pending = ?,
             published_at = ?
         WHERE id = ?`, []any{
			encodeStrings(job.SearchTerms),
			nullableString(job.Title),
			encodeStrings(job.Authors),
			encodeStrings(job.Narrators),
			nullableString(job.CoverURL),
			job.Status,
			nullableString(strings.ToLower(job.TorrentRef)),
			nullableString(job.IndexerRef),
			nullableString(job.ContentPath),
			nullableTime(job.SeedStartedAt),
			job.SeedElapsedSeconds,
			job.RetryCount,
			nullableString(job.LastError),
			formatTime(job.UpdatedAt),
			nullableTime(job.NextSearchAt),
			nullableString(job.DestinationPath),
			boolToInt(job.PublishPending),
			nullableTime(job.PublishedAt),
			job.ID,
		}
}

// ClearTerminal removes completed and cancelled jobs updated before cutoff.
func (s *Store) ClearTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM jobs WHERE status IN (?, ?) AND updated_at < ? AND publish_pending = 0`,
		StatusCompleted,
		StatusCancelled,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("clear terminal jobs: %w", err)
	}
	return res.RowsAffected()
}
