package queue

import (
	"errors"
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending        Status = "pending"
	StatusSearching      Status = "searching"
	StatusAwaitingResult Status = "awaiting_result"
	StatusDownloading    Status = "downloading"
	StatusPostProcessing Status = "post_processing"
	StatusPublishing     Status = "publishing"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
)

// SeedMaxSeconds bounds accumulated seed time (one year).
const SeedMaxSeconds int64 = 31_536_000

var (
	// ErrActiveJobExists is returned when a non-terminal job already exists
	// for the same request and media kind.
	ErrActiveJobExists = errors.New("active job already exists for request")
	// ErrInvalidTransition is returned for an edge missing from the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleStatus is returned when the stored status no longer matches the
	// status a transition started from.
	ErrStaleStatus = errors.New("job status changed concurrently")
	// ErrJobNotFound is returned by guarded writes against a missing job.
	ErrJobNotFound = errors.New("job not found")
)

var allStatuses = []Status{
	StatusPending,
	StatusSearching,
	StatusAwaitingResult,
	StatusDownloading,
	StatusPostProcessing,
	StatusPublishing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// transitions lists every allowed edge. Failed -> Pending is the retry cycle;
// Searching/AwaitingResult -> Pending are search deferrals.
var transitions = map[Status][]Status{
	StatusPending:        {StatusSearching, StatusPostProcessing, StatusCancelled},
	StatusSearching:      {StatusAwaitingResult, StatusPending, StatusFailed, StatusCancelled},
	StatusAwaitingResult: {StatusDownloading, StatusPending, StatusPostProcessing, StatusFailed, StatusCancelled},
	StatusDownloading:    {StatusPostProcessing, StatusFailed, StatusCancelled},
	StatusPostProcessing: {StatusPublishing, StatusFailed, StatusCancelled},
	StatusPublishing:     {StatusCompleted, StatusFailed, StatusCancelled},
	StatusFailed:         {StatusPending, StatusCancelled},
}

// MediaKind distinguishes audiobooks from ebooks.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaEbook MediaKind = "ebook"
)

// ParseMediaKind converts a string into a known MediaKind.
func ParseMediaKind(value string) (MediaKind, bool) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(value))) {
	case MediaAudio, "audiobook":
		return MediaAudio, true
	case MediaEbook, "book":
		return MediaEbook, true
	default:
		return "", false
	}
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total          int
	Pending        int
	Active         int
	Failed         int
	Completed      int
	Cancelled      int
	PublishPending int
}

// Job represents an acquisition job persisted in SQLite.
type Job struct {
	ID                 string
	RequestID          string
	MediaKind          MediaKind
	SearchTerms        []string
	Title              string
	Authors            []string
	Narrators          []string
	CoverURL           string
	Status             Status
	TorrentRef         string
	IndexerRef         string
	ContentPath        string
	SeedStartedAt      *time.Time
	SeedElapsedSeconds int64
	RetryCount         int
	LastError          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	NextSearchAt       *time.Time
	DestinationPath    string
	PublishPending     bool
	PublishedAt        *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether status is final (Completed or Cancelled).
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsActive reports whether the background driver should advance a job in
// this status.
func (s Status) IsActive() bool {
	switch s {
	case StatusPending, StatusSearching, StatusAwaitingResult, StatusDownloading,
		StatusPostProcessing, StatusPublishing:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ActiveStatuses returns the statuses the background driver advances.
func ActiveStatuses() []Status {
	var out []Status
	for _, status := range allStatuses {
		if status.IsActive() {
			out = append(out, status)
		}
	}
	return out
}

// ClampSeedSeconds bounds a seed duration to [0, SeedMaxSeconds].
func ClampSeedSeconds(raw int64) int64 {
	if raw < 0 {
		return 0
	}
	if raw > SeedMaxSeconds {
		return SeedMaxSeconds
	}
	return raw
}

// PrimaryAuthor returns the first non-blank author.
func (j Job) PrimaryAuthor() string {
	for _, author := range j.Authors {
		if trimmed := strings.TrimSpace(author); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// SearchQuery joins the search terms into a single query string.
func (j Job) SearchQuery() string {
	parts := make([]string, 0, len(j.SearchTerms))
	for _, term := range j.SearchTerms {
		if trimmed := strings.TrimSpace(term); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

// SetFailed marks the job as failed with the given error message.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.LastError = message
}
