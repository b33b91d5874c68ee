package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"shelfarr/internal/config"
	"shelfarr/internal/indexer"
	"shelfarr/internal/notifications"
	"shelfarr/internal/pathmap"
	"shelfarr/internal/postprocess"
	"shelfarr/internal/queue"
	"shelfarr/internal/services"
	"shelfarr/internal/testsupport"
	"shelfarr/internal/torrent"
	"shelfarr/internal/workflow"
)

type harness struct {
	cfg       *config.Config
	store     *queue.Store
	indexer   *fakeIndexer
	transfer  *fakeTransfer
	publisher *fakePublisher
	notifier  *recordingNotifier
	ffmpeg    *testsupport.FakeFFmpeg
	manager   *workflow.Manager
}

type harnessOptions struct {
	configure func(*config.Config)
	processor workflow.Processor
	clock     func() time.Time
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if opts.configure != nil {
		opts.configure(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)

	h := &harness{
		cfg:   cfg,
		store: store,
		indexer: &fakeIndexer{
			results: []indexer.Result{
				{ID: "11", Title: "Dune", Authors: []string{"Frank Herbert"}, Seeders: 3, Size: 900},
				{ID: "12", Title: "Dune", Authors: []string{"Frank Herbert"}, Seeders: 40, Size: 700, DownloadHash: "dl12"},
			},
			payload: testsupport.TorrentPayload(t, "Dune"),
		},
		transfer: &fakeTransfer{
			mapper: pathmap.NewMapper(cfg.Paths.RemoteDownloadRoot, cfg.Paths.LocalDownloadRoot),
			hash:   "aaaabbbbccccddddeeeeffff0000111122223333",
			status: torrent.TransferStatus{
				State:       torrent.StateSeeding,
				Progress:    1,
				ContentPath: "/downloads/Dune",
			},
		},
		publisher: &fakePublisher{},
		notifier:  &recordingNotifier{},
		ffmpeg:    &testsupport.FakeFFmpeg{},
	}

	processor := opts.processor
	if processor == nil {
		processor = postprocess.New(cfg, nil, postprocess.WithExecutor(h.ffmpeg))
	}
	h.manager = workflow.NewManager(cfg, store, workflow.Deps{
		Indexer:   h.indexer,
		Transfer:  h.transfer,
		Processor: processor,
		Publisher: h.publisher,
		Notifier:  h.notifier,
		Clock:     opts.clock,
	}, nil)
	return h
}

func (h *harness) createJob(t *testing.T, requestID string) *queue.Job {
	t.Helper()
	job, err := h.manager.CreateJob(context.Background(), workflow.NewJobRequest{
		RequestID: requestID,
		MediaKind: "audio",
		Title:     "Dune",
		Authors:   []string{"Frank Herbert"},
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func (h *harness) advance(t *testing.T, id string) *queue.Job {
	t.Helper()
	job, err := h.manager.Advance(context.Background(), id)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	return job
}

func writeDownload(t *testing.T, cfg *config.Config) {
	t.Helper()
	source := filepath.Join(cfg.Paths.LocalDownloadRoot, "Dune")
	testsupport.WriteFile(t, filepath.Join(source, "Part 1.mp3"), 256)
	testsupport.WriteFile(t, filepath.Join(source, "Part 2.mp3"), 256)
}

func TestAdvanceDrivesAudioJobToCompleted(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	writeDownload(t, h.cfg)
	job := h.createJob(t, "req-1")

	want := []queue.Status{
		queue.StatusAwaitingResult,
		queue.StatusDownloading,
		queue.StatusPostProcessing,
		queue.StatusPublishing,
		queue.StatusCompleted,
	}
	for _, status := range want {
		job = h.advance(t, job.ID)
		if job.Status != status {
			t.Fatalf("expected %s, got %s (last error %q)", status, job.Status, job.LastError)
		}
	}

	if job.IndexerRef != "12:dl12" {
		t.Fatalf("expected best result to be chosen, got %q", job.IndexerRef)
	}
	if job.TorrentRef != h.transfer.hash {
		t.Fatalf("unexpected torrent ref %q", job.TorrentRef)
	}
	dest := filepath.Join(h.cfg.Paths.AudioLibraryDir, "Frank Herbert", "Dune", "Dune.m4b")
	if job.DestinationPath != dest {
		t.Fatalf("unexpected destination %q, want %q", job.DestinationPath, dest)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("expected artifact at %s: %v", dest, err)
	}
	if job.PublishedAt == nil || job.PublishPending {
		t.Fatalf("expected job to be published, got published_at=%v pending=%v", job.PublishedAt, job.PublishPending)
	}
	if h.publisher.callCount() != 1 {
		t.Fatalf("expected one library rescan, got %d", h.publisher.callCount())
	}
	if len(h.transfer.limits) != 1 {
		t.Fatalf("expected seed limits to be applied once, got %d", len(h.transfer.limits))
	}
	if !h.notifier.has(notifications.EventJobCompleted) {
		t.Fatal("expected completion notification")
	}

	again := h.advance(t, job.ID)
	if again.Status != queue.StatusCompleted || h.publisher.callCount() != 1 {
		t.Fatalf("expected completed job to stay untouched, got %s with %d rescans", again.Status, h.publisher.callCount())
	}
}

func TestSearchWithoutResultsDefersJob(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, harnessOptions{clock: func() time.Time { return now }})
	h.indexer.results = nil
	job := h.createJob(t, "req-1")

	job = h.advance(t, job.ID)
	if job.Status != queue.StatusPending {
		t.Fatalf("expected job to stay pending, got %s", job.Status)
	}
	if job.NextSearchAt == nil || !job.NextSearchAt.Equal(now.Add(72*time.Hour)) {
		t.Fatalf("expected next search in 72h, got %v", job.NextSearchAt)
	}

	h.advance(t, job.ID)
	if h.indexer.searchCount() != 1 {
		t.Fatalf("expected deferred job not to search again, got %d searches", h.indexer.searchCount())
	}

	due, err := h.store.DueForSearch(context.Background(), now.Add(73*time.Hour), 10)
	if err != nil {
		t.Fatalf("DueForSearch: %v", err)
	}
	if len(due) != 1 || due[0].ID != job.ID {
		t.Fatalf("expected job to be due after the retry interval, got %d jobs", len(due))
	}
}

func TestTransientSearchErrorKeepsJobPending(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.indexer.searchErr = services.Wrap(services.ErrTransient, "indexer", "search", "503", nil)
	job := h.createJob(t, "req-1")

	job = h.advance(t, job.ID)
	if job.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}
	if job.LastError == "" || job.NextSearchAt == nil {
		t.Fatalf("expected last error and backoff, got %q %v", job.LastError, job.NextSearchAt)
	}
}

func TestSearchConfigurationErrorFailsJob(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.indexer.searchErr = services.Wrap(services.ErrConfiguration, "indexer", "search", "session rejected", nil)
	job := h.createJob(t, "req-1")

	job = h.advance(t, job.ID)
	if job.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if !h.notifier.has(notifications.EventJobFailed) {
		t.Fatal("expected failure notification")
	}
}

func TestVanishedResultRequeuesJob(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	job := h.createJob(t, "req-1")
	job = h.advance(t, job.ID)
	if job.Status != queue.StatusAwaitingResult {
		t.Fatalf("expected awaiting result, got %s", job.Status)
	}

	h.indexer.fetchErr = services.Wrap(services.ErrNotFound, "indexer", "fetch", "gone", nil)
	job = h.advance(t, job.ID)
	if job.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}
	if job.IndexerRef != "" || job.NextSearchAt == nil {
		t.Fatalf("expected cleared ref and deferral, got %q %v", job.IndexerRef, job.NextSearchAt)
	}
}

func TestInvalidPayloadFailsJob(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.transfer.submitErr = services.Wrap(services.ErrInvalidPayload, "torrent", "submit", "not bencoded", nil)
	job := h.createJob(t, "req-1")
	h.advance(t, job.ID)

	job = h.advance(t, job.ID)
	if job.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.LastError == "" {
		t.Fatal("expected last error to be recorded")
	}
}

func TestTransientPollErrorKeepsDownloading(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	job := h.createJob(t, "req-1")
	h.advance(t, job.ID)
	h.advance(t, job.ID)

	h.transfer.pollErr = services.Wrap(services.ErrTransient, "torrent", "poll", "connection refused", nil)
	job = h.advance(t, job.ID)
	if job.Status != queue.StatusDownloading || job.LastError == "" {
		t.Fatalf("expected downloading with last error, got %s %q", job.Status, job.LastError)
	}

	h.transfer.pollErr = nil
	h.transfer.setStatus(torrent.TransferStatus{State: torrent.StateDownloading, Progress: 0.5})
	job = h.advance(t, job.ID)
	if job.Status != queue.StatusDownloading || job.LastError != "" {
		t.Fatalf("expected last error to clear, got %s %q", job.Status, job.LastError)
	}
}

func TestMissingTorrentFailsJob(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	job := h.createJob(t, "req-1")
	h.advance(t, job.ID)
	h.advance(t, job.ID)

	h.transfer.setStatus(torrent.TransferStatus{State: torrent.StateMissing})
	job = h.advance(t, job.ID)
	if job.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
}

func TestDownloadingWaitsForSeedPolicy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, harnessOptions{
		clock: func() time.Time { return now },
		configure: func(cfg *config.Config) {
			cfg.PostProcess.WaitForSeed = true
			cfg.QBittorrent.MinSeedHours = 72
		},
	})
	job := h.createJob(t, "req-1")
	h.advance(t, job.ID)
	h.advance(t, job.ID)

	h.transfer.setStatus(torrent.TransferStatus{
		State:              torrent.StateSeeding,
		Progress:           1,
		ContentPath:        "/downloads/Dune",
		SeedingTimeSeconds: 10,
	})
	job = h.advance(t, job.ID)
	if job.Status != queue.StatusDownloading {
		t.Fatalf("expected to keep seeding, got %s", job.Status)
	}
	if job.SeedElapsedSeconds != 10 || job.SeedStartedAt == nil {
		t.Fatalf("expected seed accounting, got %d %v", job.SeedElapsedSeconds, job.SeedStartedAt)
	}

	h.transfer.setStatus(torrent.TransferStatus{
		State:              torrent.StateSeeding,
		Progress:           1,
		ContentPath:        "/downloads/Dune",
		SeedingTimeSeconds: 72 * 3600,
	})
	job = h.advance(t, job.ID)
	if job.Status != queue.StatusPostProcessing {
		t.Fatalf("expected post-processing once seeded, got %s", job.Status)
	}
}

func TestUntrustedContentPathIsNotAvailable(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	job := h.createJob(t, "req-1")
	h.advance(t, job.ID)
	h.advance(t, job.ID)

	h.transfer.setStatus(torrent.TransferStatus{State: torrent.StateComplete, Progress: 1})
	job = h.advance(t, job.ID)
	if job.Status != queue.StatusDownloading {
		t.Fatalf("expected job to wait for a trusted path, got %s", job.Status)
	}
	if !strings.Contains(job.LastError, "remote_download_root") {
		t.Fatalf("expected last error to explain the untrusted path, got %q", job.LastError)
	}

	stored, err := h.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.LastError != job.LastError {
		t.Fatalf("expected last error to be persisted, got %q", stored.LastError)
	}
}

func TestPublishFailureCompletesWithPublishPending(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	writeDownload(t, h.cfg)
	h.publisher.setErr(services.Wrap(services.ErrPublish, "library", "scan", "503", nil))
	job := h.createJob(t, "req-1")
	for i := 0; i < 5; i++ {
		job = h.advance(t, job.ID)
	}
	if job.Status != queue.StatusCompleted || !job.PublishPending || job.PublishedAt != nil {
		t.Fatalf("expected completed with publish pending, got %s pending=%v", job.Status, job.PublishPending)
	}
	if !h.notifier.has(notifications.EventPublishPending) {
		t.Fatal("expected publish pending notification")
	}

	h.publisher.setErr(nil)
	job, err := h.manager.RetryPublish(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("RetryPublish: %v", err)
	}
	if job.PublishPending || job.PublishedAt == nil {
		t.Fatalf("expected publish to be recorded, got pending=%v", job.PublishPending)
	}
	pending, err := h.store.PendingPublish(context.Background())
	if err != nil {
		t.Fatalf("PendingPublish: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending publishes, got %d", len(pending))
	}
}

func TestRetryIncrementsUntilLimit(t *testing.T) {
	h := newHarness(t, harnessOptions{configure: func(cfg *config.Config) {
		cfg.Workflow.MaxRetries = 3
	}})
	job := h.createJob(t, "req-1")
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		job = testsupport.SetStatus(t, h.store, job, queue.StatusFailed)
		retried, err := h.manager.Retry(ctx, job.ID)
		if err != nil {
			t.Fatalf("retry %d: %v", attempt, err)
		}
		if retried.Status != queue.StatusPending || retried.RetryCount != attempt {
			t.Fatalf("retry %d: expected pending with count %d, got %s %d", attempt, attempt, retried.Status, retried.RetryCount)
		}
		job = retried
	}

	job = testsupport.SetStatus(t, h.store, job, queue.StatusFailed)
	if _, err := h.manager.Retry(ctx, job.ID); !errors.Is(err, workflow.ErrRetryLimit) {
		t.Fatalf("expected retry limit error, got %v", err)
	}
	stored, err := h.manager.Snapshot(ctx, job.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if stored.Status != queue.StatusFailed || stored.RetryCount != 3 {
		t.Fatalf("expected job to stay failed with 3 retries, got %s %d", stored.Status, stored.RetryCount)
	}
}

func TestRetryRejectsActiveJob(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	job := h.createJob(t, "req-1")
	if _, err := h.manager.Retry(context.Background(), job.ID); !errors.Is(err, workflow.ErrNotRetryable) {
		t.Fatalf("expected not retryable, got %v", err)
	}
}

func TestCancelInterruptsInFlightAdvance(t *testing.T) {
	processor := newBlockingProcessor()
	h := newHarness(t, harnessOptions{processor: processor})
	job := h.createJob(t, "req-1")
	job.ContentPath = filepath.Join(h.cfg.Paths.ImportRoot, "Dune")
	job = testsupport.SetStatus(t, h.store, job, queue.StatusPostProcessing)

	type outcome struct {
		job *queue.Job
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		advanced, err := h.manager.Advance(context.Background(), job.ID)
		done <- outcome{advanced, err}
	}()

	select {
	case <-processor.started:
	case <-time.After(5 * time.Second):
		t.Fatal("processor never started")
	}

	cancelled, err := h.manager.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("expected discarded advance to return cleanly, got %v", res.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("advance did not return after cancel")
	}

	stored, err := h.manager.Snapshot(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if stored.Status != queue.StatusCancelled {
		t.Fatalf("expected cancellation to win, got %s", stored.Status)
	}
}

func TestConcurrentAdvanceAndCancelEndCancelled(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		job := h.createJob(t, "req-race-"+string(rune('a'+i)))
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.manager.Advance(ctx, job.ID)
		}()
		go func() {
			defer wg.Done()
			if _, err := h.manager.Cancel(ctx, job.ID); err != nil {
				t.Errorf("Cancel: %v", err)
			}
		}()
		wg.Wait()

		stored, err := h.manager.Snapshot(ctx, job.ID)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if stored.Status != queue.StatusCancelled {
			t.Fatalf("iteration %d: expected cancelled, got %s", i, stored.Status)
		}
	}
}

func TestCancelTerminalJobIsNoop(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	job := h.createJob(t, "req-1")
	testsupport.SetStatus(t, h.store, job, queue.StatusCompleted)

	got, err := h.manager.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != queue.StatusCompleted {
		t.Fatalf("expected completed job to stay completed, got %s", got.Status)
	}
}

func TestImportJobRejectsPathsOutsideImportRoot(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	job := h.createJob(t, "req-1")

	for _, candidate := range []string{"../outside", "/etc", filepath.Join(h.cfg.Paths.ImportRoot, "..", "x")} {
		if _, err := h.manager.ImportJob(context.Background(), job.ID, candidate); !errors.Is(err, services.ErrPathSecurity) {
			t.Fatalf("expected %q to be rejected, got %v", candidate, err)
		}
	}
}

func TestImportJobRejectsSymlinkOutOfImportRoot(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	job := h.createJob(t, "req-1")
	outside := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(outside, "Dune.m4b"), 64)
	testsupport.Symlink(t, outside, filepath.Join(h.cfg.Paths.ImportRoot, "Dune"))

	if _, err := h.manager.ImportJob(context.Background(), job.ID, "Dune"); !errors.Is(err, services.ErrPathSecurity) {
		t.Fatalf("expected symlinked import to be rejected, got %v", err)
	}
	got, err := h.store.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != queue.StatusPending {
		t.Fatalf("rejected import must not change status, got %s", got.Status)
	}
}

func TestImportJobProcessesFailedJob(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	source := filepath.Join(h.cfg.Paths.ImportRoot, "Dune")
	testsupport.WriteFile(t, filepath.Join(source, "Dune.m4b"), 512)
	job := h.createJob(t, "req-1")
	testsupport.SetStatus(t, h.store, job, queue.StatusFailed)

	got, err := h.manager.ImportJob(context.Background(), job.ID, "Dune")
	if err != nil {
		t.Fatalf("ImportJob: %v", err)
	}
	if got.Status != queue.StatusPublishing {
		t.Fatalf("expected publishing after import, got %s (%q)", got.Status, got.LastError)
	}
	want := filepath.Join(h.cfg.Paths.AudioLibraryDir, "Frank Herbert", "Dune", "Dune.m4b")
	if got.DestinationPath != want {
		t.Fatalf("unexpected destination %q", got.DestinationPath)
	}
	if _, err := os.Stat(source); err != nil {
		t.Fatalf("expected import source to remain: %v", err)
	}
}

func TestCreateJobValidation(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	cases := []workflow.NewJobRequest{
		{MediaKind: "audio", Title: "Dune"},
		{RequestID: "r", MediaKind: "video", Title: "Dune"},
		{RequestID: "r", MediaKind: "ebook"},
	}
	for _, req := range cases {
		if _, err := h.manager.CreateJob(ctx, req); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}

	h.createJob(t, "req-1")
	_, err := h.manager.CreateJob(ctx, workflow.NewJobRequest{RequestID: "req-1", MediaKind: "audio", Title: "Dune"})
	if !errors.Is(err, queue.ErrActiveJobExists) {
		t.Fatalf("expected duplicate active job to be rejected, got %v", err)
	}
	if _, err := h.manager.CreateJob(ctx, workflow.NewJobRequest{RequestID: "req-1", MediaKind: "ebook", Title: "Dune"}); err != nil {
		t.Fatalf("expected ebook job for same request to be accepted: %v", err)
	}
}

func TestSnapshotMissingJob(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	if _, err := h.manager.Snapshot(context.Background(), "missing"); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResumeOnlyTouchesDownloadingJobs(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.transfer.inactive = true
	job := h.createJob(t, "req-1")

	resumed, err := h.manager.Resume(context.Background(), job.ID)
	if err != nil || resumed {
		t.Fatalf("expected pending job to be skipped, got %v %v", resumed, err)
	}

	h.advance(t, job.ID)
	h.advance(t, job.ID)
	resumed, err = h.manager.Resume(context.Background(), job.ID)
	if err != nil || !resumed {
		t.Fatalf("expected downloading job to be resumed, got %v %v", resumed, err)
	}
}

func TestStartStopPollLoop(t *testing.T) {
	h := newHarness(t, harnessOptions{configure: func(cfg *config.Config) {
		cfg.Workflow.PollInterval = 1
	}})
	job := h.createJob(t, "req-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := h.manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.manager.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		stored, err := h.manager.Snapshot(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if stored.Status != queue.StatusPending {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("poll loop never advanced the job")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if !h.manager.Status(context.Background()).Running {
		t.Fatal("expected running status")
	}
	h.manager.Stop()
	summary := h.manager.Status(context.Background())
	if summary.Running {
		t.Fatal("expected stopped status")
	}
	if summary.QueueStats == nil {
		t.Fatal("expected queue stats")
	}
}

func TestRetryBackoffDoublesAndCaps(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 10 * time.Minute},
		{2, 20 * time.Minute},
		{20, 24 * time.Hour},
	}
	for _, tc := range cases {
		if got := workflow.RetryBackoff(300, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: got %s, want %s", tc.attempt, got, tc.want)
		}
	}
}
