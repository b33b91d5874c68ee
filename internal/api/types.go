package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a queue job in a transport-friendly format.
type Job struct {
	ID                 string   `json:"id"`
	RequestID          string   `json:"requestId"`
	MediaKind          string   `json:"mediaKind"`
	Status             string   `json:"status"`
	Title              string   `json:"title"`
	Authors            []string `json:"authors,omitempty"`
	Narrators          []string `json:"narrators,omitempty"`
	SearchTerms        []string `json:"searchTerms,omitempty"`
	CoverURL           string   `json:"coverUrl,omitempty"`
	IndexerRef         string   `json:"indexerRef,omitempty"`
	TorrentRef         string   `json:"torrentRef,omitempty"`
	ContentPath        string   `json:"contentPath,omitempty"`
	DestinationPath    string   `json:"destinationPath,omitempty"`
	SeedStartedAt      string   `json:"seedStartedAt,omitempty"`
	SeedElapsedSeconds int64    `json:"seedElapsedSeconds"`
	RetryCount         int      `json:"retryCount"`
	LastError          string   `json:"lastError,omitempty"`
	PublishPending     bool     `json:"publishPending"`
	PublishedAt        string   `json:"publishedAt,omitempty"`
	NextSearchAt       string   `json:"nextSearchAt,omitempty"`
	CreatedAt          string   `json:"createdAt,omitempty"`
	UpdatedAt          string   `json:"updatedAt,omitempty"`
}

// QueueHealth mirrors the aggregated job counts.
type QueueHealth struct {
	Total          int `json:"total"`
	Pending        int `json:"pending"`
	Active         int `json:"active"`
	Failed         int `json:"failed"`
	Completed      int `json:"completed"`
	Cancelled      int `json:"cancelled"`
	PublishPending int `json:"publishPending"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running    bool           `json:"running"`
	QueueStats map[string]int `json:"queueStats"`
	LastError  string         `json:"lastError,omitempty"`
	LastJob    *Job           `json:"lastJob,omitempty"`
	LastPoll   string         `json:"lastPoll,omitempty"`
	InFlight   int            `json:"inFlight"`
	Health     QueueHealth    `json:"health"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult reports one preflight check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	SocketPath   string             `json:"socketPath,omitempty"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Preflight    []CheckResult      `json:"preflight,omitempty"`
}

// JobListResponse wraps a collection of jobs for API responses.
type JobListResponse struct {
	Items []Job `json:"items"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Item Job `json:"item"`
}
