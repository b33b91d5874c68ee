package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"

	"shelfarr/internal/config"
)

const (
	userAgent      = "shelfarr/0.1.0"
	sendAttempts   = 3
	sendRetryDelay = 200 * time.Millisecond
)

// Event names a notifiable milestone.
type Event string

const (
	EventJobCompleted   Event = "job_completed"
	EventJobFailed      Event = "job_failed"
	EventPublishPending Event = "publish_pending"
	EventTest           Event = "test"
)

// Payload carries event fields. Known keys: title, author, kind,
// destination, error, stage.
type Payload map[string]string

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		failed:    cfg.Notifications.Failed,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, p Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(p[key]) }
	display := get("title")
	if author := get("author"); author != "" {
		display = fmt.Sprintf("%s by %s", display, author)
	}
	kind := get("kind")
	if kind == "" {
		kind = "audio"
	}

	switch event {
	case EventJobCompleted:
		if !n.completed {
			return message{}, false
		}
		body := fmt.Sprintf("📚 Ready: %s", display)
		if dest := get("destination"); dest != "" {
			body = fmt.Sprintf("%s\nFile: %s", body, dest)
		}
		return message{
			title:    "Shelfarr - Complete",
			body:     body,
			tags:     []string{"shelfarr", kind, "completed"},
			priority: "high",
		}, true
	case EventJobFailed:
		if !n.failed {
			return message{}, false
		}
		var b strings.Builder
		b.WriteString("❌ Failed")
		if stage := get("stage"); stage != "" {
			b.WriteString(" during ")
			b.WriteString(stage)
		}
		b.WriteString(": ")
		b.WriteString(display)
		if errText := get("error"); errText != "" {
			b.WriteString("\n")
			b.WriteString(errText)
		}
		return message{
			title:    "Shelfarr - Error",
			body:     b.String(),
			tags:     []string{"shelfarr", "error", "alert"},
			priority: "high",
		}, true
	case EventPublishPending:
		if !n.failed {
			return message{}, false
		}
		return message{
			title: "Shelfarr - Library Scan Pending",
			body:  fmt.Sprintf("Placed %s but the library scan failed; it will be retried", display),
			tags:  []string{"shelfarr", "library", "retry"},
		}, true
	case EventTest:
		return message{
			title:    "Shelfarr - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"shelfarr", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

// send posts msg to the topic. Network errors and 5xx responses are retried;
// any other non-2xx status fails immediately.
func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}
	return retry.Do(func() error { return n.post(ctx, msg) },
		retry.Context(ctx),
		retry.Attempts(sendAttempts),
		retry.Delay(sendRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func (n *ntfyService) post(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("build ntfy request: %w", err))
	}
	header := req.Header
	header.Set("User-Agent", userAgent)
	header.Set("Content-Type", "text/plain; charset=utf-8")
	for key, value := range map[string]string{
		"Title":    msg.title,
		"Tags":     strings.Join(msg.tags, ","),
		"Priority": msg.priority,
	} {
		if value != "" && value != "default" {
			header.Set(key, value)
		}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	err = fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode < 500 {
		return retry.Unrecoverable(err)
	}
	return err
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
