package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"shelfarr/internal/api"
	"shelfarr/internal/app"
	"shelfarr/internal/config"
	"shelfarr/internal/preflight"
	"shelfarr/internal/queue"
	"shelfarr/internal/testsupport"
	"shelfarr/internal/workflow"
)

func stubPreflight(context.Context, *config.Config) []preflight.Result {
	return []preflight.Result{
		{Name: "State directory", Passed: true},
		{Name: "FFmpeg", Passed: false, Detail: "binary not found"},
	}
}

func newTestDaemon(t *testing.T, cfg *config.Config) (*Daemon, *queue.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	appCtx := app.New(cfg, store, nil, app.WithBuilder(func(c *app.Context) (*workflow.Manager, error) {
		return workflow.NewManager(c.Config, c.Store, workflow.Deps{Metrics: c.Metrics}, c.Logger), nil
	}))
	d, err := New(appCtx, WithPreflight(stubPreflight))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return d, store
}

func TestNewRequiresStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := New(app.New(cfg, nil, nil)); err == nil {
		t.Fatal("expected error without a store")
	}
	if _, err := New(nil); err == nil {
		t.Fatal("expected error without a context")
	}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newTestDaemon(t, cfg)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.PID != os.Getpid() {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), status.PID)
	}
	if !status.Workflow.Running {
		t.Fatal("expected workflow poll loop to run")
	}
	if len(status.Preflight) != 2 {
		t.Fatalf("expected preflight results to be recorded, got %+v", status.Preflight)
	}

	raw, err := os.ReadFile(d.pidPath)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if strings.TrimSpace(string(raw)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file contents %q", raw)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running || status.PID != 0 {
		t.Fatalf("expected daemon to be stopped, got %+v", status)
	}
	if _, err := os.Stat(d.pidPath); !os.IsNotExist(err) {
		t.Fatalf("expected pid file to be removed, got %v", err)
	}
	d.Stop()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	d.Stop()
}

func TestStartReclaimsLeftoverWorkDirs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newTestDaemon(t, cfg)

	leftover := filepath.Join(cfg.Paths.StagingDir, "job-abc-123")
	if err := os.MkdirAll(leftover, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Fatalf("expected leftover work dir to be removed, got %v", err)
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newTestDaemon(t, cfg)
	second, _ := newTestDaemon(t, cfg)
	ctx := context.Background()

	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	err := second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention, got %v", err)
	}
	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("expected lock to be free after stop: %v", err)
	}
	second.Stop()
}

func TestStartServesStatusAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newTestDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := d.APIAddress()
	if addr == "" {
		t.Fatal("expected api address")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", resp.StatusCode)
	}
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.PID == 0 {
		t.Fatalf("unexpected status %+v", status)
	}
	var sawFailure bool
	for _, check := range status.Preflight {
		if check.Name == "FFmpeg" && !check.Passed {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Fatalf("expected failed preflight check in status, got %+v", status.Preflight)
	}

	d.Stop()
	if _, err := client.Get("http://" + addr + "/api/status"); err == nil {
		t.Fatal("expected api to be closed after stop")
	}
}

func TestAPIDisabledWithoutBind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	d, _ := newTestDaemon(t, cfg)
	if srv := newAPIServer(cfg, d, nil); srv != nil {
		t.Fatal("expected no api server without a bind address")
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if d.APIAddress() != "" {
		t.Fatal("expected empty api address")
	}
}

func TestAPIJobRoutes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, store := newTestDaemon(t, cfg)
	dune := testsupport.NewJob(t, store, "req-1", "Dune", "Frank Herbert")
	emma := testsupport.NewJob(t, store, "req-2", "Emma", "Jane Austen")
	emma.LastError = "external tool: ffmpeg exit 1"
	testsupport.SetStatus(t, store, emma, queue.StatusFailed)

	handler := newAPIServer(cfg, d, nil).routes("")
	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	w := get("/api/jobs")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var list api.JobListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(list.Items) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(list.Items))
	}

	w = get("/api/jobs?status=failed")
	list = api.JobListResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != emma.ID || list.Items[0].LastError == "" {
		t.Fatalf("expected failed job only, got %+v", list.Items)
	}

	if w = get("/api/jobs?status=bogus"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}

	w = get("/api/jobs/" + dune.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var one api.JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &one); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if one.Item.Title != "Dune" || one.Item.Status != string(queue.StatusPending) {
		t.Fatalf("unexpected job %+v", one.Item)
	}

	if w = get("/api/jobs/missing"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w = get("/metrics"); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatalf("expected prometheus exposition, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	guarded := authMiddleware("secret", ok)

	cases := []struct {
		header string
		want   int
	}{
		{"", http.StatusUnauthorized},
		{"Basic secret", http.StatusUnauthorized},
		{"Bearer wrong", http.StatusUnauthorized},
		{"Bearer secret", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		guarded(w, req)
		if w.Code != tc.want {
			t.Fatalf("header %q: expected %d, got %d", tc.header, tc.want, w.Code)
		}
	}

	w := httptest.NewRecorder()
	authMiddleware("", ok)(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected open access without token, got %d", w.Code)
	}
}

func TestPruneJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, store := newTestDaemon(t, cfg)
	ctx := context.Background()

	done := testsupport.SetStatus(t, store, testsupport.NewJob(t, store, "req-1", "Dune", "Frank Herbert"), queue.StatusCompleted)
	testsupport.NewJob(t, store, "req-2", "Emma", "Jane Austen")

	if _, err := d.PruneJobs(ctx, -time.Second); err == nil {
		t.Fatal("expected negative age to be rejected")
	}
	removed, err := d.PruneJobs(ctx, time.Hour)
	if err != nil || removed != 0 {
		t.Fatalf("expected recent job to be kept, got %d %v", removed, err)
	}
	time.Sleep(5 * time.Millisecond)
	removed, err = d.PruneJobs(ctx, 0)
	if err != nil || removed != 1 {
		t.Fatalf("expected one pruned job, got %d %v", removed, err)
	}
	if job, _ := store.GetByID(ctx, done.ID); job != nil {
		t.Fatal("expected completed job to be removed")
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""
	d, _ := newTestDaemon(t, cfg)
	sent, message, err := d.TestNotification(context.Background())
	if sent || err != nil || message != "ntfy topic not configured" {
		t.Fatalf("unexpected result %v %q %v", sent, message, err)
	}
}
