package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// timestampLayout is fixed width so stored timestamps compare lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

const jobColumns = "id, request_id, media_kind, search_terms_json, title, authors_json, narrators_json, cover_url, status, torrent_ref, indexer_ref, content_path, seed_started_at, seed_elapsed_seconds, retry_count, last_error, created_at, updated_at, next_search_at, destination_path, publish_pending, published_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              string
		requestID       string
		mediaKind       string
		searchTermsJSON sql.NullString
		title           sql.NullString
		authorsJSON     sql.NullString
		narratorsJSON   sql.NullString
		coverURL        sql.NullString
		statusStr       string
		torrentRef      sql.NullString
		indexerRef      sql.NullString
		contentPath     sql.NullString
		seedStartedRaw  sql.NullString
		seedElapsed     sql.NullInt64
		retryCount      sql.NullInt64
		lastError       sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		nextSearchRaw   sql.NullString
		destination     sql.NullString
		publishPending  sql.NullInt64
		publishedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&requestID,
		&mediaKind,
		&searchTermsJSON,
		&title,
		&authorsJSON,
		&narratorsJSON,
		&coverURL,
		&statusStr,
		&torrentRef,
		&indexerRef,
		&contentPath,
		&seedStartedRaw,
		&seedElapsed,
		&retryCount,
		&lastError,
		&createdRaw,
		&updatedRaw,
		&nextSearchRaw,
		&destination,
		&publishPending,
		&publishedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:                 id,
		RequestID:          requestID,
		MediaKind:          MediaKind(mediaKind),
		SearchTerms:        decodeStrings(searchTermsJSON.String),
		Title:              title.String,
		Authors:            decodeStrings(authorsJSON.String),
		Narrators:          decodeStrings(narratorsJSON.String),
		CoverURL:           coverURL.String,
		Status:             Status(statusStr),
		TorrentRef:         torrentRef.String,
		IndexerRef:         indexerRef.String,
		ContentPath:        contentPath.String,
		SeedStartedAt:      parseNullableTime(seedStartedRaw),
		SeedElapsedSeconds: ClampSeedSeconds(seedElapsed.Int64),
		RetryCount:         int(retryCount.Int64),
		LastError:          lastError.String,
		NextSearchAt:       parseNullableTime(nextSearchRaw),
		DestinationPath:    destination.String,
		PublishPending:     publishPending.Int64 != 0,
		PublishedAt:        parseNullableTime(publishedRaw),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}
