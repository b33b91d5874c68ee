package testsupport

import (
	"context"
	"testing"

	"shelfarr/internal/config"
	"shelfarr/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob inserts a pending audio job for tests using the provided store.
func NewJob(t testing.TB, store *queue.Store, requestID, title, author string) *queue.Job {
	t.Helper()

	job, err := store.CreateJob(context.Background(), &queue.Job{
		RequestID:   requestID,
		MediaKind:   queue.MediaAudio,
		SearchTerms: []string{title, author},
		Title:       title,
		Authors:     []string{author},
	})
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}

// SetStatus writes status onto job directly, bypassing transition checks.
func SetStatus(t testing.TB, store *queue.Store, job *queue.Job, status queue.Status) *queue.Job {
	t.Helper()

	job.Status = status
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("store.Update: %v", err)
	}
	return job
}
