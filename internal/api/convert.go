package api

import (
	"slices"
	"time"

	"shelfarr/internal/deps"
	"shelfarr/internal/preflight"
	"shelfarr/internal/queue"
	"shelfarr/internal/workflow"
)

// FromJob converts a queue job to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	return Job{
		ID:                 job.ID,
		RequestID:          job.RequestID,
		MediaKind:          string(job.MediaKind),
		Status:             string(job.Status),
		Title:              job.Title,
		Authors:            slices.Clone(job.Authors),
		Narrators:          slices.Clone(job.Narrators),
		SearchTerms:        slices.Clone(job.SearchTerms),
		CoverURL:           job.CoverURL,
		IndexerRef:         job.IndexerRef,
		TorrentRef:         job.TorrentRef,
		ContentPath:        job.ContentPath,
		DestinationPath:    job.DestinationPath,
		SeedStartedAt:      formatOptional(job.SeedStartedAt),
		SeedElapsedSeconds: job.SeedElapsedSeconds,
		RetryCount:         job.RetryCount,
		LastError:          job.LastError,
		PublishPending:     job.PublishPending,
		PublishedAt:        formatOptional(job.PublishedAt),
		NextSearchAt:       formatOptional(job.NextSearchAt),
		CreatedAt:          FormatTime(job.CreatedAt),
		UpdatedAt:          FormatTime(job.UpdatedAt),
	}
}

// FromJobs converts a slice of queue jobs into API DTOs, skipping nils.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// FromStatusSummary converts workflow diagnostics into the API shape.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	wf := WorkflowStatus{
		Running:    summary.Running,
		QueueStats: MergeQueueStats(summary.QueueStats),
		LastError:  summary.LastError,
		LastPoll:   FormatTime(summary.LastPoll),
		InFlight:   summary.InFlight,
		Health:     FromHealth(summary.Health),
	}
	if summary.LastJob != nil {
		job := FromJob(summary.LastJob)
		wf.LastJob = &job
	}
	return wf
}

// FromHealth converts aggregated queue counts.
func FromHealth(h queue.HealthSummary) QueueHealth {
	return QueueHealth{
		Total:          h.Total,
		Pending:        h.Pending,
		Active:         h.Active,
		Failed:         h.Failed,
		Completed:      h.Completed,
		Cancelled:      h.Cancelled,
		PublishPending: h.PublishPending,
	}
}

// MergeQueueStats normalizes status counts to string keys. Every known status
// is present so consumers can render a stable table.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		out[string(status)] = 0
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// FromDependencies converts binary availability checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FromCheckResults converts preflight results.
func FromCheckResults(results []preflight.Result) []CheckResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]CheckResult, len(results))
	for i, r := range results {
		out[i] = CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail}
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}
