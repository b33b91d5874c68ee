package preflight

import (
	"context"
	"strings"

	"shelfarr/internal/config"
	"shelfarr/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Audiobook library", cfg.Paths.AudioLibraryDir),
		CheckDirectoryAccess("Ebook library", cfg.Paths.EbookLibraryDir),
		CheckReadable("Download mount", cfg.Paths.LocalDownloadRoot),
	}
	if strings.TrimSpace(cfg.Paths.ImportRoot) != "" {
		results = append(results, CheckReadable("Import directory", cfg.Paths.ImportRoot))
	}

	for _, status := range CheckSystemDeps(cfg) {
		result := Result{Name: status.Name, Passed: status.Available, Detail: status.Command}
		if !status.Available {
			result.Detail = status.Detail
		}
		results = append(results, result)
	}

	results = append(results, CheckIndexerSession(cfg))
	results = append(results, CheckQBittorrent(ctx, cfg))
	if cfg.Audiobookshelf.Enabled {
		results = append(results, CheckAudiobookshelf(ctx, cfg.Audiobookshelf.URL, cfg.Audiobookshelf.Token))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, result := range results {
		if !result.Passed {
			out = append(out, result)
		}
	}
	return out
}

// CheckSystemDeps evaluates the binaries shelfarr executes. Both the daemon
// and the CLI status command use this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for audiobook merging and tagging",
		},
	})
}
