package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"shelfarr/internal/queue"
	"shelfarr/internal/workflow"
)

type mockJobReader struct {
	jobs     []*queue.Job
	stats    map[queue.Status]int
	jobErr   error
	statsErr error
}

func (m *mockJobReader) List(context.Context, ...queue.Status) ([]*queue.Job, error) {
	return m.jobs, m.jobErr
}

func (m *mockJobReader) Stats(context.Context) (map[queue.Status]int, error) {
	return m.stats, m.statsErr
}

func (m *mockJobReader) GetByID(_ context.Context, id string) (*queue.Job, error) {
	for _, job := range m.jobs {
		if job.ID == id {
			return job, m.jobErr
		}
	}
	return nil, m.jobErr
}

func TestJobServiceListSortsNewestFirst(t *testing.T) {
	older := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	svc := NewJobService(&mockJobReader{jobs: []*queue.Job{
		{ID: "a", Title: "Emma", Status: queue.StatusPending, CreatedAt: older, UpdatedAt: older},
		{ID: "b", Title: "Dune", Status: queue.StatusDownloading, CreatedAt: newer, UpdatedAt: newer},
	}})

	got, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("unexpected job count: %d", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("expected newest first, got %s then %s", got[0].ID, got[1].ID)
	}
	if got[0].Status != string(queue.StatusDownloading) {
		t.Fatalf("unexpected status: %q", got[0].Status)
	}
	if got[0].CreatedAt == "" || got[0].UpdatedAt == "" {
		t.Fatal("expected timestamps to be formatted")
	}
}

func TestJobServiceErrorsAndMissing(t *testing.T) {
	boom := errors.New("boom")
	svc := NewJobService(&mockJobReader{jobErr: boom, statsErr: boom})
	if _, err := svc.List(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected list error, got %v", err)
	}
	if _, err := svc.Stats(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected stats error, got %v", err)
	}

	svc = NewJobService(&mockJobReader{})
	job, err := svc.Describe(context.Background(), "missing")
	if err != nil || job != nil {
		t.Fatalf("expected nil job for missing id, got %+v %v", job, err)
	}

	var nilSvc *JobService
	if jobs, err := nilSvc.List(context.Background()); jobs != nil || err != nil {
		t.Fatal("expected nil service to return nothing")
	}
	if NewJobService(nil) != nil {
		t.Fatal("expected nil service for nil reader")
	}
}

func TestMergeQueueStatsIncludesEveryStatus(t *testing.T) {
	stats := MergeQueueStats(map[queue.Status]int{queue.StatusFailed: 2})
	if stats[string(queue.StatusFailed)] != 2 {
		t.Fatalf("expected failed=2, got %d", stats[string(queue.StatusFailed)])
	}
	for _, status := range queue.AllStatuses() {
		if _, ok := stats[string(status)]; !ok {
			t.Fatalf("expected %s key", status)
		}
	}
}

func TestFromJobFormatsOptionalTimes(t *testing.T) {
	seed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("x", 3600))
	job := FromJob(&queue.Job{
		ID:            "job-1",
		MediaKind:     queue.MediaAudio,
		Authors:       []string{"Frank Herbert"},
		SeedStartedAt: &seed,
	})
	if job.SeedStartedAt != "2026-03-04T04:06:07.000Z" {
		t.Fatalf("unexpected seed start %q", job.SeedStartedAt)
	}
	if job.PublishedAt != "" || job.NextSearchAt != "" || job.CreatedAt != "" {
		t.Fatalf("expected unset times to be empty, got %+v", job)
	}
	if job.MediaKind != string(queue.MediaAudio) {
		t.Fatalf("unexpected media kind %q", job.MediaKind)
	}
	if FromJobs([]*queue.Job{nil}) == nil || len(FromJobs([]*queue.Job{nil})) != 0 {
		t.Fatal("expected nil entries to be skipped")
	}
}

func TestFromStatusSummary(t *testing.T) {
	poll := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	wf := FromStatusSummary(workflow.StatusSummary{
		Running:    true,
		LastError:  "boom",
		LastJob:    &queue.Job{ID: "job-9", Status: queue.StatusCompleted},
		LastPoll:   poll,
		InFlight:   2,
		QueueStats: map[queue.Status]int{queue.StatusPending: 3},
		Health:     queue.HealthSummary{Total: 3, Pending: 3},
	})
	if !wf.Running || wf.LastError != "boom" || wf.InFlight != 2 {
		t.Fatalf("unexpected status %+v", wf)
	}
	if wf.LastJob == nil || wf.LastJob.ID != "job-9" {
		t.Fatalf("expected last job, got %+v", wf.LastJob)
	}
	if wf.LastPoll != "2026-05-01T12:00:00.000Z" {
		t.Fatalf("unexpected poll time %q", wf.LastPoll)
	}
	if wf.QueueStats[string(queue.StatusPending)] != 3 || wf.Health.Total != 3 {
		t.Fatalf("unexpected counts %+v", wf)
	}
}
