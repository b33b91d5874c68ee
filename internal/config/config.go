package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, path-mapping, and bind address configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	StagingDir string `toml:"staging_dir"`
	// RemoteDownloadRoot is the download directory as reported by qBittorrent.
	RemoteDownloadRoot string `toml:"remote_download_root"`
	// LocalDownloadRoot is where RemoteDownloadRoot is mounted on this host.
	LocalDownloadRoot string `toml:"local_download_root"`
	ImportRoot        string `toml:"import_root"`
	AudioLibraryDir   string `toml:"audio_library_dir"`
	EbookLibraryDir   string `toml:"ebook_library_dir"`
	APIBind           string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token on the HTTP API.
	APIToken string `toml:"api_token"`
}

// Indexer contains configuration for the MyAnonamouse search client.
type Indexer struct {
	BaseURL               string `toml:"base_url"`
	SessionID             string `toml:"session_id"`
	AudioCategory         int    `toml:"audio_category"`
	EbookCategory         int    `toml:"ebook_category"`
	ResultLimit           int    `toml:"result_limit"`
	RequestTimeout        int    `toml:"request_timeout"`
	ConnectTimeout        int    `toml:"connect_timeout"`
	RetryAttempts         int    `toml:"retry_attempts"`
	RetryDelaySeconds     int    `toml:"retry_delay_seconds"`
	SearchCacheMinutes    int    `toml:"search_cache_minutes"`
	SearchCacheMaxEntries int    `toml:"search_cache_max_entries"`
}

// QBittorrent contains configuration for the transfer backend.
type QBittorrent struct {
	URL               string   `toml:"url"`
	Username          string   `toml:"username"`
	Password          string   `toml:"password"`
	Category          string   `toml:"category"`
	Tags              []string `toml:"tags"`
	RatioLimit        float64  `toml:"ratio_limit"`
	MinSeedHours      int      `toml:"min_seed_hours"`
	SessionTTLMinutes int      `toml:"session_ttl_minutes"`
	RequestTimeout    int      `toml:"request_timeout"`
	TLSSkipVerify     bool     `toml:"tls_skip_verify"`
}

// PostProcess contains configuration for media conversion and placement.
type PostProcess struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MergeAudio     bool   `toml:"merge_audio"`
	EmbedCover     bool   `toml:"embed_cover"`
	WriteSidecar   bool   `toml:"write_sidecar"`
	WaitForSeed    bool   `toml:"wait_for_seed"`
}

// Audiobookshelf contains configuration for library scan notifications.
type Audiobookshelf struct {
	Enabled        bool   `toml:"enabled"`
	URL            string `toml:"url"`
	Token          string `toml:"token"`
	AudioLibraryID string `toml:"audio_library_id"`
	EbookLibraryID string `toml:"ebook_library_id"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Workflow contains configuration for daemon timing and retry policy.
type Workflow struct {
	PollInterval        int `toml:"poll_interval"`
	RecheckInterval     int `toml:"recheck_interval"`
	SearchRetryHours    int `toml:"search_retry_hours"`
	SearchBatchSize     int `toml:"search_batch_size"`
	MaxRetries          int `toml:"max_retries"`
	RetryBackoffSeconds int `toml:"retry_backoff_seconds"`
	MaxConcurrentJobs   int `toml:"max_concurrent_jobs"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	MaxSizeMB     int    `toml:"max_size_mb"`
	MaxBackups    int    `toml:"max_backups"`
}

// Config encapsulates all configuration values for shelfarr.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories, download path mapping, library roots
//   - Indexer: MyAnonamouse session and network budget
//   - QBittorrent: transfer backend credentials and seed policy
//   - PostProcess: ffmpeg conversion and placement
//   - Audiobookshelf: library rescan integration
//   - Workflow: poll/recheck cadence and retry policy
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and rotation
type Config struct {
	Paths          Paths          `toml:"paths"`
	Indexer        Indexer        `toml:"indexer"`
	QBittorrent    QBittorrent    `toml:"qbittorrent"`
	PostProcess    PostProcess    `toml:"postprocess"`
	Audiobookshelf Audiobookshelf `toml:"audiobookshelf"`
	Workflow       Workflow       `toml:"workflow"`
	Notifications  Notifications  `toml:"notifications"`
	Logging        Logging        `toml:"logging"`
}

// EnsureDirectories creates required directories for daemon operation.
// Library roots are created on a best-effort basis so the daemon can run when
// network storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.StagingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	for _, dir := range []string{c.Paths.AudioLibraryDir, c.Paths.EbookLibraryDir} {
		if strings.TrimSpace(dir) != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
	}
	return nil
}

// DatabasePath returns the SQLite job store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "shelfarr.sock")
}

// LogFilePath returns the daemon log file, or "" when file logging is off.
func (c *Config) LogFilePath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "shelfarr.log")
}

// LibraryDir returns the destination root for a media kind ("audio" or "ebook").
func (c *Config) LibraryDir(kind string) string {
	if strings.EqualFold(strings.TrimSpace(kind), "ebook") {
		return c.Paths.EbookLibraryDir
	}
	return c.Paths.AudioLibraryDir
}

// FFmpegBinary returns the ffmpeg executable used for post-processing.
func (c *Config) FFmpegBinary() string {
	if bin := strings.TrimSpace(c.PostProcess.FFmpegBinary); bin != "" {
		return bin
	}
	return "ffmpeg"
}

// ProcessingTimeout returns the wall-clock budget for one post-processing run.
func (c *Config) ProcessingTimeout() time.Duration {
	return time.Duration(c.PostProcess.TimeoutSeconds) * time.Second
}

// MinSeedSeconds returns the configured minimum seeding time in seconds.
func (c *Config) MinSeedSeconds() int64 {
	return int64(c.QBittorrent.MinSeedHours) * 3600
}
