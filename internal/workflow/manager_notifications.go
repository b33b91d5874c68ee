package workflow

import (
	"context"
	"strings"
	"time"

	"shelfarr/internal/logging"
	"shelfarr/internal/notifications"
	"shelfarr/internal/queue"
)

const (
	eventCompleted      = notifications.EventJobCompleted
	eventFailed         = notifications.EventJobFailed
	eventPublishPending = notifications.EventPublishPending
)

const notifyTimeout = 15 * time.Second

// notify publishes an event for job. Delivery failures are logged and never
// affect the job. detail is the failing status for failures and the rescan
// error for pending publishes.
func (m *Manager) notify(ctx context.Context, event notifications.Event, job *queue.Job, detail string) {
	if m.notifier == nil || job == nil {
		return
	}
	payload := notifications.Payload{
		"title":       job.Title,
		"author":      strings.Join(job.Authors, ", "),
		"kind":        string(job.MediaKind),
		"destination": job.DestinationPath,
	}
	switch event {
	case eventFailed:
		payload["error"] = job.LastError
		payload["stage"] = detail
	case eventPublishPending:
		payload["error"] = detail
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := m.notifier.Publish(notifyCtx, event, payload); err != nil {
		logging.WarnWithContext(m.jobLogger(ctx, job), "notification failed", "notification_failed",
			logging.Error(err),
			logging.String("event", string(event)),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}
