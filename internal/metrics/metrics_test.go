package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"shelfarr/internal/metrics"
	"shelfarr/internal/queue"
)

func TestObserveTransitionCounts(t *testing.T) {
	m := metrics.New()
	m.ObserveTransition(queue.StatusPending, queue.StatusSearching)
	m.ObserveTransition(queue.StatusPending, queue.StatusSearching)
	m.ObserveTransition(queue.StatusPending, queue.StatusPending)

	got := testutil.ToFloat64(m.Transitions.WithLabelValues("pending", "searching"))
	if got != 2 {
		t.Fatalf("expected 2 transitions, got %v", got)
	}
	if n := testutil.CollectAndCount(m.Transitions); n != 1 {
		t.Fatalf("expected self transitions to be ignored, got %d series", n)
	}
}

func TestObserveStepRecordsErrors(t *testing.T) {
	m := metrics.New()
	m.ObserveStep(queue.StatusDownloading, time.Now(), errors.New("boom"), true)
	m.ObserveStep(queue.StatusDownloading, time.Now(), nil, false)

	if got := testutil.ToFloat64(m.StepErrors.WithLabelValues("downloading", "true")); got != 1 {
		t.Fatalf("expected one retryable error, got %v", got)
	}
}

func TestIndependentInstancesAndHandler(t *testing.T) {
	first := metrics.New()
	second := metrics.New()
	first.SetStatusCounts(map[queue.Status]int{queue.StatusPending: 3})
	second.SetStatusCounts(nil)

	rec := httptest.NewRecorder()
	first.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `shelfarr_jobs{status="pending"} 3`) {
		t.Fatalf("expected pending gauge in exposition, got:\n%s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveTransition(queue.StatusPending, queue.StatusSearching)
	m.ObserveStep(queue.StatusPending, time.Now(), nil, false)
	m.SetStatusCounts(nil)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveTransition(queue.StatusPending, queue.StatusSearching)
	m.ObserveStep(queue.StatusPending, time.Now(), errors.New("boom"), false)
	m.SetStatusCounts(map[queue.Status]int{queue.StatusPending: 1})
	m.ObserveSearchResults(3)
	m.IncPublishFailure()
	m.IncTorrentResume()
	m.ObserveRecheck(time.Now())
}

func TestRecheckAndPublishCounters(t *testing.T) {
	m := metrics.New()
	m.ObserveRecheck(time.Now())
	m.IncPublishFailure()
	m.IncPublishFailure()
	if got := testutil.ToFloat64(m.RecheckSweeps); got != 1 {
		t.Fatalf("expected one sweep, got %v", got)
	}
	if got := testutil.ToFloat64(m.PublishFailures); got != 2 {
		t.Fatalf("expected two publish failures, got %v", got)
	}
}
