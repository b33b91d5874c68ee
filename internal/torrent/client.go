package torrent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	qbt "github.com/autobrr/go-qbittorrent"

	"shelfarr/internal/config"
	"shelfarr/internal/logging"
	"shelfarr/internal/pathmap"
	"shelfarr/internal/payload"
	"shelfarr/internal/queue"
	"shelfarr/internal/services"
)

// TransferState is the backend-independent state of a submitted torrent.
type TransferState string

const (
	StateQueued      TransferState = "queued"
	StateDownloading TransferState = "downloading"
	StateStalled     TransferState = "stalled"
	StatePaused      TransferState = "paused"
	StateSeeding     TransferState = "seeding"
	StateComplete    TransferState = "complete"
	StateErrored     TransferState = "errored"
	StateMissing     TransferState = "missing"
)

// TransferStatus is one poll of a torrent.
type TransferStatus struct {
	State    TransferState
	RawState string
	Name     string
	Progress float64
	// ContentPath is the backend-reported path, set only when it is rooted
	// under the configured remote download root.
	ContentPath        string
	AmountLeft         int64
	SeedingTimeSeconds int64
	Ratio              float64
}

// Done reports whether every byte has been downloaded.
func (s TransferStatus) Done() bool {
	switch s.State {
	case StateSeeding, StateComplete:
		return true
	case StateMissing, StateErrored:
		return false
	}
	return s.Progress >= 1
}

// SubmitOptions label a submission in the backend.
type SubmitOptions struct {
	JobID    string
	Category string
	Tags     []string
}

// SeedPolicy bounds how long the backend keeps seeding.
type SeedPolicy struct {
	RatioLimit     float64
	SeedingMinutes int64
}

// SeedPolicyFromConfig builds the configured seed policy.
func SeedPolicyFromConfig(cfg *config.Config) SeedPolicy {
	return SeedPolicy{
		RatioLimit:     cfg.QBittorrent.RatioLimit,
		SeedingMinutes: cfg.MinSeedSeconds() / 60,
	}
}

// Client is the qBittorrent adapter.
type Client struct {
	pool     *SessionPool
	creds    Credentials
	mapper   pathmap.Mapper
	category string
	tags     []string
	logger   *slog.Logger
}

// New builds an adapter that obtains sessions from pool.
func New(cfg *config.Config, pool *SessionPool, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		pool:     pool,
		creds:    CredentialsFromConfig(cfg),
		mapper:   pathmap.NewMapper(cfg.Paths.RemoteDownloadRoot, cfg.Paths.LocalDownloadRoot),
		category: cfg.QBittorrent.Category,
		tags:     append([]string(nil), cfg.QBittorrent.Tags...),
		logger:   logging.NewComponentLogger(logger, "torrent"),
	}
}

// Submit hands a validated payload to the backend and returns its info-hash.
// Submitting a payload the backend already holds is a no-op.
func (c *Client) Submit(ctx context.Context, data []byte, opts SubmitOptions) (string, error) {
	hash, err := payload.InfoHash(data)
	if err != nil {
		return "", err
	}

	existing, err := c.lookup(ctx, hash)
	if err != nil {
		return "", err
	}
	if existing != nil {
		c.logger.Info("torrent already present in backend",
			logging.TorrentHash(hash),
			logging.JobID(opts.JobID))
		return hash, nil
	}

	category := strings.TrimSpace(opts.Category)
	if category == "" {
		category = c.category
	}
	tags := append(append([]string(nil), c.tags...), opts.Tags...)
	if opts.JobID != "" {
		tags = append(tags, "job="+opts.JobID)
	}
	options := map[string]string{}
	if category != "" {
		options["category"] = category
	}
	if len(tags) > 0 {
		options["tags"] = strings.Join(tags, ",")
	}

	err = c.withSession(ctx, "submit", func(api API) error {
		return api.AddTorrentFromMemoryCtx(ctx, data, options)
	})
	if err != nil {
		return "", err
	}
	c.logger.Info("torrent submitted",
		logging.TorrentHash(hash),
		logging.JobID(opts.JobID),
		logging.String("category", category))
	return hash, nil
}

// Poll reports the current transfer state of ref. A torrent the backend no
// longer knows is StateMissing, not an error.
func (c *Client) Poll(ctx context.Context, ref string) (TransferStatus, error) {
	t, err := c.lookup(ctx, ref)
	if err != nil {
		return TransferStatus{}, err
	}
	if t == nil {
		return TransferStatus{State: StateMissing}, nil
	}

	status := TransferStatus{
		State:              mapState(t.State, t.Progress),
		RawState:           string(t.State),
		Name:               t.Name,
		Progress:           t.Progress,
		AmountLeft:         t.AmountLeft,
		SeedingTimeSeconds: t.SeedingTime,
		Ratio:              t.Ratio,
	}
	if c.mapper.Trusted(t.ContentPath) {
		status.ContentPath = t.ContentPath
	} else if strings.TrimSpace(t.ContentPath) != "" {
		c.logger.Warn("ignoring content path outside download root",
			logging.TorrentHash(ref),
			logging.String("content_path", t.ContentPath),
			logging.String("remote_root", c.mapper.RemoteRoot()),
			logging.String(logging.FieldEventType, "content_path_untrusted"))
	}
	return status, nil
}

// MapPath translates a backend path to the local mount.
func (c *Client) MapPath(remote string) (string, error) {
	return c.mapper.Map(remote)
}

// ApplySeedLimits sets the share limits for ref. The seeding time is clamped
// to the accounting bounds; zero values defer to the backend's global limits.
func (c *Client) ApplySeedLimits(ctx context.Context, ref string, policy SeedPolicy) error {
	ratio := policy.RatioLimit
	if ratio <= 0 {
		ratio = -2
	}
	minutes := ClampSeedSeconds(policy.SeedingMinutes*60) / 60
	if minutes <= 0 {
		minutes = -2
	}
	return c.withSession(ctx, "seed-limits", func(api API) error {
		return api.SetTorrentShareLimitCtx(ctx, []string{strings.ToLower(ref)}, ratio, minutes, -2)
	})
}

// ResumeIfInactive resumes a paused, stopped or errored torrent and reports
// whether a resume was issued.
func (c *Client) ResumeIfInactive(ctx context.Context, ref string) (bool, error) {
	t, err := c.lookup(ctx, ref)
	if err != nil {
		return false, err
	}
	if t == nil || !inactive(t.State) {
		return false, nil
	}
	err = c.withSession(ctx, "resume", func(api API) error {
		return api.ResumeCtx(ctx, []string{t.Hash})
	})
	if err != nil {
		return false, err
	}
	c.logger.Info("resumed inactive torrent",
		logging.TorrentHash(t.Hash),
		logging.String("state", string(t.State)))
	return true, nil
}

func (c *Client) lookup(ctx context.Context, ref string) (*qbt.Torrent, error) {
	hash := strings.ToLower(strings.TrimSpace(ref))
	if hash == "" {
		return nil, services.Wrap(services.ErrValidation, "torrent", "lookup", "empty torrent ref", nil)
	}
	var torrents []qbt.Torrent
	err := c.withSession(ctx, "poll", func(api API) error {
		var err error
		torrents, err = api.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Hashes: []string{hash}})
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range torrents {
		if strings.EqualFold(torrents[i].Hash, hash) {
			return &torrents[i], nil
		}
	}
	return nil, nil
}

// withSession runs fn with a pooled session. An auth failure evicts the
// session and retries once with a fresh login.
func (c *Client) withSession(ctx context.Context, operation string, fn func(API) error) error {
	api, err := c.pool.Get(ctx, c.creds)
	if err != nil {
		return err
	}
	err = fn(api)
	if err != nil && isAuthError(err) {
		c.logger.Debug("qBittorrent session rejected; logging in again", logging.String("operation", operation))
		c.pool.Invalidate(c.creds.Scope())
		if api, err = c.pool.Get(ctx, c.creds); err != nil {
			return err
		}
		err = fn(api)
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if isAuthError(err) {
		return services.Wrap(services.ErrConfiguration, "torrent", operation, "qBittorrent rejected the session", err)
	}
	return services.Wrap(services.ErrTransient, "torrent", operation, fmt.Sprintf("qBittorrent %s failed", operation), err)
}

func mapState(state qbt.TorrentState, progress float64) TransferState {
	switch state {
	case qbt.TorrentStateError, qbt.TorrentStateMissingFiles:
		return StateErrored
	case qbt.TorrentStateUploading, qbt.TorrentStateStalledUp, qbt.TorrentStateQueuedUp,
		qbt.TorrentStateForcedUp, qbt.TorrentStateCheckingUp:
		return StateSeeding
	case qbt.TorrentStatePausedUp, qbt.TorrentStateStoppedUp:
		return StateComplete
	case qbt.TorrentStateDownloading, qbt.TorrentStateForcedDl, qbt.TorrentStateMetaDl:
		return StateDownloading
	case qbt.TorrentStateStalledDl:
		return StateStalled
	case qbt.TorrentStatePausedDl, qbt.TorrentStateStoppedDl:
		return StatePaused
	case qbt.TorrentStateQueuedDl, qbt.TorrentStateAllocating, qbt.TorrentStateCheckingDl,
		qbt.TorrentStateCheckingResumeData, qbt.TorrentStateMoving:
		if progress >= 1 {
			return StateComplete
		}
		return StateQueued
	default:
		if progress >= 1 {
			return StateComplete
		}
		return StateQueued
	}
}

func inactive(state qbt.TorrentState) bool {
	switch state {
	case qbt.TorrentStatePausedDl, qbt.TorrentStateStoppedDl,
		qbt.TorrentStatePausedUp, qbt.TorrentStateStoppedUp,
		qbt.TorrentStateError:
		return true
	}
	return false
}

// ClampSeedSeconds bounds a seed duration to [0, queue.SeedMaxSeconds].
func ClampSeedSeconds(raw int64) int64 {
	return queue.ClampSeedSeconds(raw)
}
