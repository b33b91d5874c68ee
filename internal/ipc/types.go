package ipc

import "shelfarr/internal/api"

// Job mirrors the HTTP API job DTO for IPC callers.
type Job = api.Job

// QueueHealth mirrors the aggregated job counts.
type QueueHealth = api.QueueHealth

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = api.DependencyStatus

// CheckResult reports one preflight check.
type CheckResult = api.CheckResult

// StartRequest resumes daemon processing.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest pauses daemon processing without exiting the process.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/workflow status information.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueStats   map[string]int     `json:"queue_stats"`
	LastError    string             `json:"last_error"`
	LastJob      *Job               `json:"last_job"`
	LastPoll     string             `json:"last_poll"`
	InFlight     int                `json:"in_flight"`
	Health       QueueHealth        `json:"health"`
	LockPath     string             `json:"lock_path"`
	QueueDBPath  string             `json:"queue_db_path"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Preflight    []CheckResult      `json:"preflight"`
}

// JobAddRequest creates a job for a library request.
type JobAddRequest struct {
	RequestID   string   `json:"request_id"`
	MediaKind   string   `json:"media_kind"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	Narrators   []string `json:"narrators"`
	SearchTerms []string `json:"search_terms"`
	CoverURL    string   `json:"cover_url"`
}

// JobListRequest filters job listing by status.
type JobListRequest struct {
	Statuses []string `json:"statuses"`
}

// JobListResponse contains jobs, newest first.
type JobListResponse struct {
	Items []Job `json:"items"`
}

// JobRequest addresses a single job by id.
type JobRequest struct {
	ID string `json:"id"`
}

// JobImportRequest feeds a local file or directory to post-processing.
type JobImportRequest struct {
	ID         string `json:"id"`
	SourcePath string `json:"source_path"`
}

// JobResponse contains a single job.
type JobResponse struct {
	Item Job `json:"item"`
}

// JobPruneRequest removes terminal jobs older than the given age.
type JobPruneRequest struct {
	OlderThanSeconds int64 `json:"older_than_seconds"`
}

// JobPruneResponse reports number of removed jobs.
type JobPruneResponse struct {
	Removed int64 `json:"removed"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse = QueueHealth

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	IntegrityCheck   bool   `json:"integrity_check"`
	TotalJobs        int    `json:"total_jobs"`
	Error            string `json:"error"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
