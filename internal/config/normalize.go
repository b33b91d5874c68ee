package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeIndexer()
	c.normalizeQBittorrent()
	c.normalizeAudiobookshelf()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key   string
		value *string
	}{
		{"paths.state_dir", &c.Paths.StateDir},
		{"paths.log_dir", &c.Paths.LogDir},
		{"paths.staging_dir", &c.Paths.StagingDir},
		{"paths.local_download_root", &c.Paths.LocalDownloadRoot},
		{"paths.import_root", &c.Paths.ImportRoot},
		{"paths.audio_library_dir", &c.Paths.AudioLibraryDir},
		{"paths.ebook_library_dir", &c.Paths.EbookLibraryDir},
	}
	for _, field := range fields {
		expanded, err := ExpandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	// The remote root names a path on the torrent host and is never resolved
	// against the local filesystem; only trailing separators are trimmed.
	remote := strings.TrimSpace(c.Paths.RemoteDownloadRoot)
	if len(remote) > 1 {
		remote = strings.TrimRight(remote, "/")
	}
	c.Paths.RemoteDownloadRoot = remote
	if c.Paths.LocalDownloadRoot == "" {
		c.Paths.LocalDownloadRoot = c.Paths.RemoteDownloadRoot
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("SHELFARR_API_TOKEN"); ok {
			c.Paths.APIToken = value
		}
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeIndexer() {
	if c.Indexer.SessionID == "" {
		if value, ok := os.LookupEnv("SHELFARR_MAM_SESSION"); ok {
			c.Indexer.SessionID = value
		}
	}
	c.Indexer.SessionID = strings.TrimSpace(c.Indexer.SessionID)
	c.Indexer.BaseURL = strings.TrimRight(strings.TrimSpace(c.Indexer.BaseURL), "/")
	if c.Indexer.BaseURL == "" {
		c.Indexer.BaseURL = defaultIndexerBaseURL
	}
}

func (c *Config) normalizeQBittorrent() {
	if c.QBittorrent.Password == "" {
		if value, ok := os.LookupEnv("SHELFARR_QBIT_PASSWORD"); ok {
			c.QBittorrent.Password = value
		}
	}
	c.QBittorrent.URL = strings.TrimRight(strings.TrimSpace(c.QBittorrent.URL), "/")
	c.QBittorrent.Username = strings.TrimSpace(c.QBittorrent.Username)
	c.QBittorrent.Category = strings.TrimSpace(c.QBittorrent.Category)
	tags := c.QBittorrent.Tags[:0]
	for _, tag := range c.QBittorrent.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	c.QBittorrent.Tags = tags
}

func (c *Config) normalizeAudiobookshelf() {
	if c.Audiobookshelf.Token == "" {
		if value, ok := os.LookupEnv("SHELFARR_ABS_TOKEN"); ok {
			c.Audiobookshelf.Token = value
		}
	}
	c.Audiobookshelf.URL = strings.TrimRight(strings.TrimSpace(c.Audiobookshelf.URL), "/")
	c.Audiobookshelf.Token = strings.TrimSpace(c.Audiobookshelf.Token)
	c.Audiobookshelf.AudioLibraryID = strings.TrimSpace(c.Audiobookshelf.AudioLibraryID)
	c.Audiobookshelf.EbookLibraryID = strings.TrimSpace(c.Audiobookshelf.EbookLibraryID)
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("SHELFARR_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
}
