package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"shelfarr/internal/config"
	"shelfarr/internal/indexer"
	"shelfarr/internal/library"
	"shelfarr/internal/logging"
	"shelfarr/internal/metrics"
	"shelfarr/internal/notifications"
	"shelfarr/internal/postprocess"
	"shelfarr/internal/queue"
	"shelfarr/internal/services"
	"shelfarr/internal/torrent"
)

// Indexer searches the tracker and downloads torrent payloads.
type Indexer interface {
	Search(ctx context.Context, kind queue.MediaKind, terms []string) ([]indexer.Result, error)
	Fetch(ctx context.Context, ref indexer.Ref) ([]byte, error)
}

// Transfer drives the torrent backend.
type Transfer interface {
	Submit(ctx context.Context, data []byte, opts torrent.SubmitOptions) (string, error)
	Poll(ctx context.Context, ref string) (torrent.TransferStatus, error)
	MapPath(remote string) (string, error)
	ApplySeedLimits(ctx context.Context, ref string, policy torrent.SeedPolicy) error
	ResumeIfInactive(ctx context.Context, ref string) (bool, error)
}

// Processor converts downloaded content into library artifacts.
type Processor interface {
	Process(ctx context.Context, job *queue.Job, contentPath string) (postprocess.Result, error)
}

// Deps bundles the collaborators the Manager drives. Publisher, Notifier and
// Metrics are optional.
type Deps struct {
	Indexer   Indexer
	Transfer  Transfer
	Processor Processor
	Publisher library.Publisher
	Notifier  notifications.Service
	Metrics   *metrics.Metrics
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Manager coordinates job state transitions.
type Manager struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger

	indexer   Indexer
	transfer  Transfer
	processor Processor
	publisher library.Publisher
	notifier  notifications.Service
	metrics   *metrics.Metrics
	now       func() time.Time

	seedPolicy   torrent.SeedPolicy
	pollInterval time.Duration

	locks    *jobLocks
	inflight *inflight

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	busy     map[string]struct{}
	lastErr  error
	lastJob  *queue.Job
	lastTick time.Time
}

// NewJobRequest describes a job to create.
type NewJobRequest struct {
	RequestID   string
	MediaKind   string
	Title       string
	Authors     []string
	Narrators   []string
	SearchTerms []string
	CoverURL    string
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, deps Deps, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = library.NewNoopPublisher()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	poll := time.Duration(cfg.Workflow.PollInterval) * time.Second
	if poll <= 0 {
		poll = time.Minute
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		indexer:      deps.Indexer,
		transfer:     deps.Transfer,
		processor:    deps.Processor,
		publisher:    publisher,
		notifier:     notifier,
		metrics:      deps.Metrics,
		now:          clock,
		seedPolicy:   torrent.SeedPolicyFromConfig(cfg),
		pollInterval: poll,
		locks:        newJobLocks(),
		inflight:     newInflight(),
		busy:         make(map[string]struct{}),
	}
}

// Store exposes the job store backing the manager.
func (m *Manager) Store() *queue.Store { return m.store }

// Config exposes the manager configuration.
func (m *Manager) Config() *config.Config { return m.cfg }

// CreateJob validates req and inserts a Pending job. It fails with
// queue.ErrActiveJobExists when the request already has a non-terminal job
// of the same kind.
func (m *Manager) CreateJob(ctx context.Context, req NewJobRequest) (*queue.Job, error) {
	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		return nil, services.Wrap(services.ErrValidation, "workflow", "create job", "request id is required", nil)
	}
	kind, ok := queue.ParseMediaKind(req.MediaKind)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "workflow", "create job", fmt.Sprintf("unknown media kind %q", req.MediaKind), nil)
	}
	authors := compact(req.Authors)
	terms := compact(req.SearchTerms)
	if len(terms) == 0 {
		terms = compact(append([]string{req.Title}, authors...))
	}
	if len(terms) == 0 {
		return nil, services.Wrap(services.ErrValidation, "workflow", "create job", "title or search terms are required", nil)
	}

	job, err := m.store.CreateJob(ctx, &queue.Job{
		RequestID:   requestID,
		MediaKind:   kind,
		SearchTerms: terms,
		Title:       strings.TrimSpace(req.Title),
		Authors:     authors,
		Narrators:   compact(req.Narrators),
		CoverURL:    strings.TrimSpace(req.CoverURL),
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("job created",
		logging.JobID(job.ID),
		logging.String("request_id", job.RequestID),
		logging.String("media_kind", string(job.MediaKind)),
		logging.String("query", job.SearchQuery()),
	)
	return job, nil
}

// Snapshot returns the stored job.
func (m *Manager) Snapshot(ctx context.Context, id string) (*queue.Job, error) {
	job, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	return job, nil
}

// List returns jobs, optionally filtered by status.
func (m *Manager) List(ctx context.Context, statuses ...queue.Status) ([]*queue.Job, error) {
	return m.store.List(ctx, statuses...)
}

// lockJob takes the per-job lock and re-reads the job.
func (m *Manager) lockJob(ctx context.Context, id string) (*queue.Job, func(), error) {
	unlock := m.locks.lock(id)
	job, err := m.store.GetByID(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	if job == nil {
		unlock()
		return nil, nil, fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	return job, unlock, nil
}

// transition persists job, whose Status holds the target, guarded by from.
func (m *Manager) transition(ctx context.Context, job *queue.Job, from queue.Status) error {
	if err := m.store.UpdateTransition(ctx, job, from); err != nil {
		return err
	}
	if from != job.Status {
		m.metrics.ObserveTransition(from, job.Status)
		m.jobLogger(ctx, job).Info("job transitioned",
			logging.String("from", string(from)),
			logging.Status(string(job.Status)),
			logging.String(logging.FieldEventType, "status_transition"),
		)
	}
	m.recordJob(job)
	return nil
}

func (m *Manager) jobLogger(ctx context.Context, job *queue.Job) *slog.Logger {
	if job != nil {
		ctx = services.WithJobID(ctx, job.ID)
	}
	return logging.WithContext(ctx, m.logger)
}

func (m *Manager) recordJob(job *queue.Job) {
	if job == nil {
		return
	}
	snapshot := *job
	m.mu.Lock()
	m.lastJob = &snapshot
	m.mu.Unlock()
}

func (m *Manager) setLastError(err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
