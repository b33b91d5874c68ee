package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"shelfarr/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndReadsEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SHELFARR_MAM_SESSION", "cookie-value")
	t.Setenv("SHELFARR_QBIT_PASSWORD", "secret")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "shelfarr")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.AudioLibraryDir != filepath.Join(tempHome, "library", "audiobooks") {
		t.Fatalf("unexpected audio library dir: %q", cfg.Paths.AudioLibraryDir)
	}
	if cfg.Indexer.SessionID != "cookie-value" {
		t.Fatalf("expected session from env, got %q", cfg.Indexer.SessionID)
	}
	if cfg.QBittorrent.Password != "secret" {
		t.Fatalf("expected qbittorrent password from env, got %q", cfg.QBittorrent.Password)
	}
	if cfg.Indexer.RequestTimeout != 30 || cfg.Indexer.ConnectTimeout != 10 {
		t.Fatalf("unexpected indexer timeouts: %d/%d", cfg.Indexer.RequestTimeout, cfg.Indexer.ConnectTimeout)
	}
	if cfg.Workflow.MaxRetries != 3 {
		t.Fatalf("unexpected max retries default: %d", cfg.Workflow.MaxRetries)
	}
	if cfg.ProcessingTimeout().Hours() != 1 {
		t.Fatalf("unexpected processing timeout: %s", cfg.ProcessingTimeout())
	}
	if cfg.Audiobookshelf.Enabled {
		t.Fatal("expected audiobookshelf disabled by default")
	}
}

func TestLoadCustomConfigOverridesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
state_dir = "~/state"
remote_download_root = "/data/torrents/"
local_download_root = "/mnt/torrents"
audio_library_dir = "/srv/audio"
ebook_library_dir = "/srv/ebooks"

[qbittorrent]
url = "http://seedbox:8080/"
tags = ["books", " ", "shelfarr"]

[workflow]
max_retries = 5

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, "state") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Paths.RemoteDownloadRoot != "/data/torrents" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Paths.RemoteDownloadRoot)
	}
	if cfg.Paths.LocalDownloadRoot != "/mnt/torrents" {
		t.Fatalf("unexpected local root: %q", cfg.Paths.LocalDownloadRoot)
	}
	if cfg.QBittorrent.URL != "http://seedbox:8080" {
		t.Fatalf("unexpected qbittorrent url: %q", cfg.QBittorrent.URL)
	}
	if strings.Join(cfg.QBittorrent.Tags, ",") != "books,shelfarr" {
		t.Fatalf("unexpected tags: %v", cfg.QBittorrent.Tags)
	}
	if cfg.Workflow.MaxRetries != 5 {
		t.Fatalf("unexpected max retries: %d", cfg.Workflow.MaxRetries)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging settings: %+v", cfg.Logging)
	}
	if got := cfg.LibraryDir("ebook"); got != "/srv/ebooks" {
		t.Fatalf("unexpected ebook library dir: %q", got)
	}
	if got := cfg.LibraryDir("audio"); got != "/srv/audio" {
		t.Fatalf("unexpected audio library dir: %q", got)
	}
}

func TestValidateRejectsUnboundedRetries(t *testing.T) {
	for _, retries := range []int{0, -1, 21} {
		cfg := config.Default()
		cfg.Workflow.MaxRetries = retries
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected validation error for max_retries=%d", retries)
		}
	}
}

func TestValidateRequiresAudiobookshelfCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Audiobookshelf.Enabled = true
	cfg.Audiobookshelf.URL = "http://abs:13378"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when token missing")
	}
	cfg.Audiobookshelf.Token = "token"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when no library id configured")
	}
	cfg.Audiobookshelf.AudioLibraryID = "lib-audio"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid audiobookshelf config, got %v", err)
	}
}

func TestValidateRejectsRelativeRemoteRoot(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.RemoteDownloadRoot = "downloads"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for relative remote root")
	}
}

func TestValidateRejectsConnectTimeoutAboveTotal(t *testing.T) {
	cfg := config.Default()
	cfg.Indexer.ConnectTimeout = 60
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when connect timeout exceeds total timeout")
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}

	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}

func TestLoadReportsParsePosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("[paths]\nstate_dir = \n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "broken.toml:2:") {
		t.Fatalf("expected positioned parse error, got %v", err)
	}
}

func TestExpandPathHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	got, err := config.ExpandPath("~/state/../db")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	if got != filepath.Join(home, "db") {
		t.Fatalf("ExpandPath = %q, want %q", got, filepath.Join(home, "db"))
	}
	if got, _ := config.ExpandPath(""); got != "" {
		t.Fatalf("empty path expanded to %q", got)
	}
}
