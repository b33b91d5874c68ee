// Package library notifies the media server that new items were placed.
package library

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shelfarr/internal/config"
	"shelfarr/internal/logging"
	"shelfarr/internal/queue"
	"shelfarr/internal/services"
)

// Publisher makes a placed artifact visible to library consumers.
type Publisher interface {
	Publish(ctx context.Context, job *queue.Job) error
}

// HTTPDoer describes the HTTP client used by the Audiobookshelf publisher.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type noopPublisher struct{}

// NewNoopPublisher returns a publisher that does nothing; files in the
// library tree are picked up by the server's own watcher.
func NewNoopPublisher() Publisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, *queue.Job) error { return nil }

type absPublisher struct {
	baseURL    string
	token      string
	libraryIDs map[queue.MediaKind]string
	client     HTTPDoer
	logger     *slog.Logger
}

// NewConfiguredPublisher returns an Audiobookshelf publisher when it is
// enabled and configured, otherwise a no-op publisher.
func NewConfiguredPublisher(cfg *config.Config, logger *slog.Logger) Publisher {
	if cfg == nil || !cfg.Audiobookshelf.Enabled {
		return NewNoopPublisher()
	}
	abs := cfg.Audiobookshelf
	if strings.TrimSpace(abs.URL) == "" || strings.TrimSpace(abs.Token) == "" {
		return NewNoopPublisher()
	}
	timeout := time.Duration(abs.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewAudiobookshelf(abs.URL, abs.Token, abs.AudioLibraryID, abs.EbookLibraryID,
		&http.Client{Timeout: timeout}, logger)
}

// NewAudiobookshelf constructs an HTTP-backed publisher.
func NewAudiobookshelf(baseURL, token, audioLibraryID, ebookLibraryID string, client HTTPDoer, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &absPublisher{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		libraryIDs: map[queue.MediaKind]string{
			queue.MediaAudio: strings.TrimSpace(audioLibraryID),
			queue.MediaEbook: strings.TrimSpace(ebookLibraryID),
		},
		client: client,
		logger: logging.NewComponentLogger(logger, "library"),
	}
}

// Publish requests a scan of the library holding job's media kind. Repeated
// scans are harmless, so Publish is safe to retry.
func (p *absPublisher) Publish(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return services.Wrap(services.ErrValidation, "library", "publish", "job is required", nil)
	}
	libraryID := p.libraryIDs[job.MediaKind]
	if libraryID == "" {
		p.logger.Debug("no library id configured for media kind; skipping scan",
			logging.JobID(job.ID), logging.String("media_kind", string(job.MediaKind)))
		return nil
	}

	scanURL := fmt.Sprintf("%s/api/libraries/%s/scan", p.baseURL, url.PathEscape(libraryID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, scanURL, nil)
	if err != nil {
		return services.Wrap(services.ErrPublish, "library", "publish", "build scan request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrPublish, "library", "publish", "scan request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return services.Wrap(services.ErrPublish, "library", "publish",
			fmt.Sprintf("audiobookshelf scan returned %d", resp.StatusCode), nil)
	}
	p.logger.Info("library scan requested",
		logging.JobID(job.ID),
		logging.String("library_id", libraryID))
	return nil
}
