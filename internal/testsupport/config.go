package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"shelfarr/internal/config"
)

// ConfigOption adjusts a test config. base is the per-test temp root.
type ConfigOption func(t testing.TB, base string, cfg *config.Config)

// NewConfig returns a default config whose directories all live under a
// fresh temp dir, with credentials filled in so validation passes.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	base := t.TempDir()
	under := func(parts ...string) string { return filepath.Join(append([]string{base}, parts...)...) }

	cfg := config.Default()
	cfg.Paths.StateDir = under("state")
	cfg.Paths.LogDir = under("logs")
	cfg.Paths.StagingDir = under("staging")
	cfg.Paths.RemoteDownloadRoot = "/downloads"
	cfg.Paths.LocalDownloadRoot = under("downloads")
	cfg.Paths.ImportRoot = under("imports")
	cfg.Paths.AudioLibraryDir = under("library", "audiobooks")
	cfg.Paths.EbookLibraryDir = under("library", "ebooks")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Indexer.SessionID = "test-session"
	cfg.Indexer.RetryDelaySeconds = 0
	cfg.QBittorrent.Username = "admin"
	cfg.QBittorrent.Password = "adminadmin"

	for _, opt := range opts {
		opt(t, base, &cfg)
	}
	return &cfg
}

// BaseDir returns the temp root behind a config from NewConfig.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

func WithIndexerURL(url string) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) { cfg.Indexer.BaseURL = url }
}

func WithQBittorrentURL(url string) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) { cfg.QBittorrent.URL = url }
}

// WithAudiobookshelf enables library publishing against url.
func WithAudiobookshelf(url string) ConfigOption {
	return func(_ testing.TB, _ string, cfg *config.Config) {
		abs := &cfg.Audiobookshelf
		abs.Enabled = true
		abs.URL = url
		abs.Token = "abs-token"
		abs.AudioLibraryID = "lib-audio"
		abs.EbookLibraryID = "lib-ebook"
	}
}

// WithStubbedBinaries puts no-op executables for names (ffmpeg when empty)
// at the front of PATH for the rest of the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(t testing.TB, base string, _ *config.Config) {
		t.Helper()
		if len(names) == 0 {
			names = []string{"ffmpeg"}
		}
		binDir := filepath.Join(base, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
				t.Fatalf("write stub %s: %v", name, err)
			}
		}
		t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}
