package postprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"

	"shelfarr/internal/fileutil"
	"shelfarr/internal/logging"
	"shelfarr/internal/queue"
)

const (
	sidecarName   = "metadata.json"
	unknownAuthor = "Unknown Author"
	maxCoverBytes = 10 << 20
)

type metadata struct {
	Title     string
	Author    string
	Authors   []string
	Narrators []string
	CoverURL  string
}

// resolveMetadata prefers the job's fields and falls back to the tags of the
// first audio file, then to the source directory name.
func resolveMetadata(job *queue.Job, files []string, source string, logger *slog.Logger) metadata {
	meta := metadata{
		Title:     strings.TrimSpace(job.Title),
		Author:    job.PrimaryAuthor(),
		Authors:   append([]string(nil), job.Authors...),
		Narrators: append([]string(nil), job.Narrators...),
		CoverURL:  strings.TrimSpace(job.CoverURL),
	}

	if (meta.Title == "" || meta.Author == "") && job.MediaKind != queue.MediaEbook && len(files) > 0 {
		if tags, err := readTags(files[0]); err != nil {
			logger.Debug("audio tags unavailable", logging.String("file", files[0]), logging.Error(err))
		} else {
			if meta.Title == "" {
				meta.Title = firstNonEmpty(tags.Album(), tags.Title())
			}
			if meta.Author == "" {
				meta.Author = firstNonEmpty(tags.AlbumArtist(), tags.Artist())
				if meta.Author != "" {
					meta.Authors = []string{meta.Author}
				}
			}
			if len(meta.Narrators) == 0 && strings.TrimSpace(tags.Composer()) != "" {
				meta.Narrators = []string{strings.TrimSpace(tags.Composer())}
			}
		}
	}

	if meta.Title == "" {
		meta.Title = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	}
	if meta.Author == "" {
		meta.Author = unknownAuthor
	}
	return meta
}

func readTags(path string) (tag.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return tag.ReadFrom(f)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type sidecar struct {
	JobID       string    `json:"job_id"`
	RequestID   string    `json:"request_id,omitempty"`
	MediaKind   string    `json:"media_kind"`
	Title       string    `json:"title"`
	Authors     []string  `json:"authors"`
	Narrators   []string  `json:"narrators,omitempty"`
	CoverURL    string    `json:"cover_url,omitempty"`
	Files       []string  `json:"files"`
	ProcessedAt time.Time `json:"processed_at"`
}

func writeSidecar(job *queue.Job, meta metadata, result Result) error {
	dir := result.DestinationPath
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		dir = filepath.Dir(result.DestinationPath)
	}
	files := make([]string, 0, len(result.Files))
	for _, f := range result.Files {
		files = append(files, filepath.Base(f))
	}
	authors := meta.Authors
	if len(authors) == 0 {
		authors = []string{meta.Author}
	}
	data, err := json.MarshalIndent(sidecar{
		JobID:       job.ID,
		RequestID:   job.RequestID,
		MediaKind:   string(job.MediaKind),
		Title:       meta.Title,
		Authors:     authors,
		Narrators:   meta.Narrators,
		CoverURL:    meta.CoverURL,
		Files:       files,
		ProcessedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	return fileutil.WriteFileAtomic(filepath.Join(dir, sidecarName), append(data, '\n'), 0o644)
}

// resolveCover returns a local cover image path, downloading coverURL into
// workDir when the download carries no artwork. Failures yield "".
func (e *Engine) resolveCover(ctx context.Context, source, workDir, coverURL string, logger *slog.Logger) string {
	dir := source
	if info, err := os.Stat(source); err == nil && !info.IsDir() {
		dir = filepath.Dir(source)
	}
	for _, name := range coverNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate
		}
	}
	if coverURL == "" || !(strings.HasPrefix(coverURL, "http://") || strings.HasPrefix(coverURL, "https://")) {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return ""
	}
	resp, err := e.http.Do(req)
	if err != nil {
		logger.Debug("cover download failed", logging.String("url", coverURL), logging.Error(err))
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		logger.Debug("cover download rejected", logging.String("url", coverURL), logging.Int("status", resp.StatusCode))
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes+1))
	if err != nil || len(data) == 0 || len(data) > maxCoverBytes {
		return ""
	}
	ext := ".jpg"
	if strings.Contains(resp.Header.Get("Content-Type"), "png") {
		ext = ".png"
	}
	path := filepath.Join(workDir, "cover"+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return ""
	}
	return path
}
