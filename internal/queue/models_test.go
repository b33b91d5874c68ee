package queue_test

import (
	"testing"

	"shelfarr/internal/queue"
)

func TestParseStatus(t *testing.T) {
	if status, ok := queue.ParseStatus(" Awaiting_Result "); !ok || status != queue.StatusAwaitingResult {
		t.Fatalf("unexpected parse result %q %v", status, ok)
	}
	for _, raw := range []string{"", "ripping", "done"} {
		if _, ok := queue.ParseStatus(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]queue.Status{
		{queue.StatusPending, queue.StatusSearching},
		{queue.StatusSearching, queue.StatusAwaitingResult},
		{queue.StatusAwaitingResult, queue.StatusDownloading},
		{queue.StatusAwaitingResult, queue.StatusPending},
		{queue.StatusDownloading, queue.StatusPostProcessing},
		{queue.StatusDownloading, queue.StatusFailed},
		{queue.StatusPostProcessing, queue.StatusPublishing},
		{queue.StatusPublishing, queue.StatusCompleted},
		{queue.StatusFailed, queue.StatusPending},
	}
	for _, edge := range allowed {
		if !queue.CanTransition(edge[0], edge[1]) {
			t.Fatalf("expected %s -> %s to be allowed", edge[0], edge[1])
		}
	}

	rejected := [][2]queue.Status{
		{queue.StatusPending, queue.StatusCompleted},
		{queue.StatusCompleted, queue.StatusPending},
		{queue.StatusCancelled, queue.StatusPending},
		{queue.StatusDownloading, queue.StatusAwaitingResult},
		{queue.StatusPublishing, queue.StatusPostProcessing},
		{queue.StatusFailed, queue.StatusDownloading},
	}
	for _, edge := range rejected {
		if queue.CanTransition(edge[0], edge[1]) {
			t.Fatalf("expected %s -> %s to be rejected", edge[0], edge[1])
		}
	}

	for _, status := range queue.AllStatuses() {
		if status.IsTerminal() {
			continue
		}
		if !queue.CanTransition(status, queue.StatusCancelled) {
			t.Fatalf("expected %s to be cancellable", status)
		}
	}
}

func TestClampSeedSeconds(t *testing.T) {
	cases := map[int64]int64{
		-500:       0,
		0:          0,
		3600:       3600,
		40_000_000: 31_536_000,
	}
	for raw, want := range cases {
		if got := queue.ClampSeedSeconds(raw); got != want {
			t.Fatalf("ClampSeedSeconds(%d) = %d, want %d", raw, got, want)
		}
	}
}

func TestParseMediaKind(t *testing.T) {
	if kind, ok := queue.ParseMediaKind("Audiobook"); !ok || kind != queue.MediaAudio {
		t.Fatalf("unexpected kind %q %v", kind, ok)
	}
	if kind, ok := queue.ParseMediaKind("ebook"); !ok || kind != queue.MediaEbook {
		t.Fatalf("unexpected kind %q %v", kind, ok)
	}
	if _, ok := queue.ParseMediaKind("film"); ok {
		t.Fatal("expected unknown kind to be rejected")
	}
}
