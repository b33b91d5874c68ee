package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shelfarr/internal/api"
	"shelfarr/internal/config"
	"shelfarr/internal/ipc"
	"shelfarr/internal/preflight"
	"shelfarr/internal/queue"
)

// StatusLine is one labelled row in the status report. Severity is one of
// ok, info, warn or error.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

type DependencySummary struct {
	Total           int
	Available       int
	MissingRequired int
	MissingOptional int
	Severity        string
	Detail          string
}

// Snapshot is the CLI view of daemon state.
type Snapshot struct {
	Status            ipc.StatusResponse
	Reachable         bool
	SystemChecks      []StatusLine
	LibraryPaths      []StatusLine
	DependencySummary DependencySummary
}

// BuildStatusSnapshot asks the daemon for its status. When the socket does not
// answer it reads queue counts straight from the database and probes
// dependencies locally.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &Snapshot{}

	if client, err := ipc.Dial(socketPath); err == nil {
		if resp, err := client.Status(); err == nil && resp != nil {
			snap.Status = *resp
			snap.Reachable = true
		}
		_ = client.Close()
	}
	if !snap.Reachable {
		snap.Status.QueueStats = offlineQueueStats(ctx, cfg)
	}

	if len(snap.Status.QueueStats) == 0 {
		snap.Status.QueueStats = api.MergeQueueStats(nil)
	}
	if len(snap.Status.Dependencies) == 0 {
		snap.Status.Dependencies = api.FromDependencies(preflight.CheckSystemDeps(cfg))
	}
	snap.SystemChecks = BuildSystemChecks(cfg, snap.Reachable, snap.Status.Running)
	snap.LibraryPaths = BuildLibraryPathChecks(cfg)
	snap.DependencySummary = BuildDependencySummary(snap.Status.Dependencies)
	return snap, nil
}

func offlineQueueStats(ctx context.Context, cfg *config.Config) map[string]int {
	store, err := queue.Open(cfg)
	if err != nil {
		return nil
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	stats, err := store.Stats(ctx)
	if err != nil {
		return nil
	}
	return api.MergeQueueStats(stats)
}

// BuildSystemChecks combines daemon runtime state with configured integrations.
func BuildSystemChecks(cfg *config.Config, reachable, processing bool) []StatusLine {
	daemon := StatusLine{Label: "Shelfarr", Severity: "warn", Detail: "Not running (run `shelfarr start`)"}
	switch {
	case reachable && processing:
		daemon.Severity, daemon.Detail = "ok", "Running"
	case reachable:
		daemon.Detail = "Paused (run `shelfarr start`)"
	}

	qbit := StatusLine{Label: "qBittorrent", Severity: "error", Detail: "URL not configured"}
	if url := strings.TrimSpace(cfg.QBittorrent.URL); url != "" {
		qbit.Severity, qbit.Detail = "info", url
	}

	abs := StatusLine{Label: "Audiobookshelf", Severity: "info", Detail: "Disabled"}
	if cfg.Audiobookshelf.Enabled {
		abs.Severity, abs.Detail = "ok", "Enabled"
	}

	notify := StatusLine{Label: "Notifications", Severity: "warn", Detail: "Not configured"}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		notify.Severity, notify.Detail = "ok", "Configured"
	}

	return []StatusLine{
		daemon,
		fromResult("Indexer", preflight.CheckIndexerSession(cfg)),
		qbit,
		abs,
		notify,
	}
}

// BuildLibraryPathChecks reports whether each configured directory is usable.
func BuildLibraryPathChecks(cfg *config.Config) []StatusLine {
	dirs := []struct{ label, path string }{
		{"Audiobooks", cfg.Paths.AudioLibraryDir},
		{"Ebooks", cfg.Paths.EbookLibraryDir},
		{"Downloads", cfg.Paths.LocalDownloadRoot},
		{"Imports", cfg.Paths.ImportRoot},
	}
	lines := make([]StatusLine, 0, len(dirs))
	for _, dir := range dirs {
		if strings.TrimSpace(dir.path) == "" {
			lines = append(lines, StatusLine{Label: dir.label, Severity: "info", Detail: "Not configured"})
			continue
		}
		lines = append(lines, fromResult(dir.label, preflight.CheckDirectoryAccess(dir.label, dir.path)))
	}
	return lines
}

func fromResult(label string, result preflight.Result) StatusLine {
	line := StatusLine{Label: label, Severity: "error", Detail: result.Detail}
	if result.Passed {
		line.Severity = "ok"
	}
	return line
}

// BuildDependencySummary counts available and missing dependencies.
func BuildDependencySummary(deps []ipc.DependencyStatus) DependencySummary {
	if len(deps) == 0 {
		return DependencySummary{Severity: "info", Detail: "No dependency checks configured"}
	}

	summary := DependencySummary{Total: len(deps)}
	for _, dep := range deps {
		switch {
		case dep.Available:
			summary.Available++
		case dep.Optional:
			summary.MissingOptional++
		default:
			summary.MissingRequired++
		}
	}

	summary.Severity = "ok"
	summary.Detail = fmt.Sprintf("%d/%d available", summary.Available, summary.Total)
	if summary.Available == summary.Total {
		return summary
	}
	summary.Severity = "warn"
	if summary.MissingRequired > 0 {
		summary.Severity = "error"
	}
	summary.Detail += fmt.Sprintf(" (missing: %d required, %d optional)", summary.MissingRequired, summary.MissingOptional)
	return summary
}
