package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"shelfarr/internal/config"
	"shelfarr/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckDirectoryAccess("test", f); result.Passed {
		t.Fatal("expected failure for file path")
	}
	if result := CheckReadable("test", ""); result.Passed {
		t.Fatal("expected failure for unset path")
	}
}

func TestCheckAudiobookshelf_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/libraries" || r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckAudiobookshelf(context.Background(), srv.URL, "good-token")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckAudiobookshelf_BadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckAudiobookshelf(context.Background(), srv.URL, "bad-token")
	if result.Passed {
		t.Fatal("expected failure for bad token")
	}
}

func TestCheckAudiobookshelf_MissingSettings(t *testing.T) {
	if result := CheckAudiobookshelf(context.Background(), "", "token"); result.Passed {
		t.Fatal("expected failure for missing URL")
	}
	if result := CheckAudiobookshelf(context.Background(), "http://localhost", ""); result.Passed {
		t.Fatal("expected failure for missing token")
	}
}

func TestCheckIndexerSession(t *testing.T) {
	cfg := config.Default()
	cfg.Indexer.SessionID = ""
	if result := CheckIndexerSession(&cfg); result.Passed {
		t.Fatal("expected failure without a session")
	}
	cfg.Indexer.SessionID = "abc"
	if result := CheckIndexerSession(&cfg); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
}

func TestCheckQBittorrent_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithQBittorrentURL(url))
	if result := CheckQBittorrent(context.Background(), cfg); result.Passed {
		t.Fatal("expected failure for closed server")
	}
	cfg.QBittorrent.URL = ""
	if result := CheckQBittorrent(context.Background(), cfg); result.Passed || result.Detail != "missing url" {
		t.Fatalf("expected missing url failure, got %+v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ReportsDirectoriesAndFFmpeg(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffmpeg"))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.LocalDownloadRoot, cfg.Paths.ImportRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	cfg.QBittorrent.URL = ""

	results := RunAll(context.Background(), cfg)
	byName := make(map[string]Result, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	for _, name := range []string{"State directory", "Staging directory", "Audiobook library", "Ebook library", "Download mount", "Import directory", "FFmpeg", "MyAnonamouse"} {
		r, ok := byName[name]
		if !ok {
			t.Fatalf("expected %s check in results", name)
		}
		if !r.Passed {
			t.Errorf("check %q failed: %s", name, r.Detail)
		}
	}
	if _, ok := byName["Audiobookshelf"]; ok {
		t.Fatal("expected disabled Audiobookshelf to be skipped")
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "qBittorrent" {
		t.Fatalf("expected only qBittorrent to fail, got %+v", failed)
	}
}
