package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateIndexer(); err != nil {
		return err
	}
	if err := c.validateQBittorrent(); err != nil {
		return err
	}
	if err := c.validatePostProcess(); err != nil {
		return err
	}
	if err := c.validateAudiobookshelf(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	remote := c.Paths.RemoteDownloadRoot
	if remote == "" {
		return errors.New("paths.remote_download_root must be set")
	}
	if !path.IsAbs(remote) {
		return fmt.Errorf("paths.remote_download_root must be absolute, got %q", remote)
	}
	if c.Paths.AudioLibraryDir == "" {
		return errors.New("paths.audio_library_dir must be set")
	}
	if c.Paths.EbookLibraryDir == "" {
		return errors.New("paths.ebook_library_dir must be set")
	}
	return nil
}

func (c *Config) validateIndexer() error {
	if err := validateURL("indexer.base_url", c.Indexer.BaseURL); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"indexer.request_timeout":          c.Indexer.RequestTimeout,
		"indexer.connect_timeout":          c.Indexer.ConnectTimeout,
		"indexer.retry_attempts":           c.Indexer.RetryAttempts,
		"indexer.result_limit":             c.Indexer.ResultLimit,
		"indexer.search_cache_max_entries": c.Indexer.SearchCacheMaxEntries,
	}); err != nil {
		return err
	}
	if c.Indexer.ConnectTimeout > c.Indexer.RequestTimeout {
		return errors.New("indexer.connect_timeout must not exceed indexer.request_timeout")
	}
	if c.Indexer.RetryDelaySeconds < 0 {
		return errors.New("indexer.retry_delay_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateQBittorrent() error {
	if err := validateURL("qbittorrent.url", c.QBittorrent.URL); err != nil {
		return err
	}
	if c.QBittorrent.RatioLimit < 0 {
		return errors.New("qbittorrent.ratio_limit must be >= 0")
	}
	if c.QBittorrent.MinSeedHours < 0 {
		return errors.New("qbittorrent.min_seed_hours must be >= 0")
	}
	return ensurePositiveMap(map[string]int{
		"qbittorrent.session_ttl_minutes": c.QBittorrent.SessionTTLMinutes,
		"qbittorrent.request_timeout":     c.QBittorrent.RequestTimeout,
	})
}

func (c *Config) validatePostProcess() error {
	if c.PostProcess.TimeoutSeconds <= 0 {
		return errors.New("postprocess.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateAudiobookshelf() error {
	if !c.Audiobookshelf.Enabled {
		return nil
	}
	if err := validateURL("audiobookshelf.url", c.Audiobookshelf.URL); err != nil {
		return err
	}
	if c.Audiobookshelf.Token == "" {
		return errors.New("audiobookshelf.token must be set when audiobookshelf.enabled is true")
	}
	if c.Audiobookshelf.AudioLibraryID == "" && c.Audiobookshelf.EbookLibraryID == "" {
		return errors.New("audiobookshelf requires audio_library_id or ebook_library_id")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval":         c.Workflow.PollInterval,
		"workflow.recheck_interval":      c.Workflow.RecheckInterval,
		"workflow.search_retry_hours":    c.Workflow.SearchRetryHours,
		"workflow.search_batch_size":     c.Workflow.SearchBatchSize,
		"workflow.max_concurrent_jobs":   c.Workflow.MaxConcurrentJobs,
		"workflow.retry_backoff_seconds": c.Workflow.RetryBackoffSeconds,
	}); err != nil {
		return err
	}
	if c.Workflow.MaxRetries <= 0 {
		return errors.New("workflow.max_retries must be positive; unlimited retries are not supported")
	}
	if c.Workflow.MaxRetries > maxAllowedRetries {
		return fmt.Errorf("workflow.max_retries must be <= %d", maxAllowedRetries)
	}
	if c.Workflow.RetryBackoffSeconds > maxAllowedRetryBackoffSeconds {
		return fmt.Errorf("workflow.retry_backoff_seconds must be <= %d", maxAllowedRetryBackoffSeconds)
	}
	return nil
}

func validateURL(key, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s must be set", key)
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, raw)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
