package postprocess

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"shelfarr/internal/config"
	"shelfarr/internal/fileutil"
	"shelfarr/internal/logging"
	"shelfarr/internal/pathmap"
	"shelfarr/internal/queue"
	"shelfarr/internal/services"
)

// Result describes a placed artifact.
type Result struct {
	// DestinationPath is the final artifact file, or the title directory
	// when several audio files were placed unmerged.
	DestinationPath string
	Files           []string
	Title           string
	Author          string
}

// HTTPDoer fetches remote cover art.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures the engine.
type Option func(*Engine)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(e *Engine) {
		if exec != nil {
			e.exec = exec
		}
	}
}

// WithTimeout overrides the per-run wall-clock budget.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithHTTPClient sets the client used to download cover art.
func WithHTTPClient(client HTTPDoer) Option {
	return func(e *Engine) {
		if client != nil {
			e.http = client
		}
	}
}

// Engine runs post-processing for one job at a time per call; calls for
// different jobs may run concurrently.
type Engine struct {
	cfg     *config.Config
	ffmpeg  string
	timeout time.Duration
	exec    Executor
	http    HTTPDoer
	logger  *slog.Logger
}

// New constructs an engine from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := cfg.ProcessingTimeout()
	if timeout <= 0 {
		timeout = time.Hour
	}
	e := &Engine{
		cfg:     cfg,
		ffmpeg:  cfg.FFmpegBinary(),
		timeout: timeout,
		exec:    commandExecutor{},
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logging.NewComponentLogger(logger, "postprocess"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process validates contentPath, builds the artifact for job and moves it
// into the library. contentPath must live under the local download root or
// the manual import root.
func (e *Engine) Process(ctx context.Context, job *queue.Job, contentPath string) (Result, error) {
	if job == nil {
		return Result{}, services.Wrap(services.ErrValidation, "postprocess", "process", "job is required", nil)
	}
	source, err := e.validateSource(contentPath)
	if err != nil {
		return Result{}, err
	}
	logger := logging.WithContext(ctx, e.logger).With(logging.JobID(job.ID))

	files, err := gatherMedia(source, job.MediaKind)
	if err != nil {
		return Result{}, err
	}

	meta := resolveMetadata(job, files, source, logger)

	if err := os.MkdirAll(e.cfg.Paths.StagingDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create staging dir: %w", err)
	}
	workDir, err := os.MkdirTemp(e.cfg.Paths.StagingDir, "job-"+SanitizeSegment(job.ID)+"-")
	if err != nil {
		return Result{}, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var artifacts []string
	if job.MediaKind == queue.MediaEbook {
		artifacts, err = e.stageEbook(files, workDir)
	} else {
		artifacts, err = e.stageAudio(runCtx, files, source, workDir, meta, logger)
	}
	if err != nil {
		return Result{}, e.classify(ctx, runCtx, err)
	}

	result, err := e.place(job, meta, artifacts)
	if err != nil {
		return Result{}, err
	}
	if e.cfg.PostProcess.WriteSidecar {
		if err := writeSidecar(job, meta, result); err != nil {
			logging.WarnWithContext(logger, "metadata sidecar not written", "sidecar_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "library scanners fall back to embedded tags"))
		}
	}
	logger.Info("post-processing complete",
		logging.String("destination", result.DestinationPath),
		logging.Int("files", len(result.Files)))
	return result, nil
}

func (e *Engine) validateSource(contentPath string) (string, error) {
	var lastErr error
	for _, root := range []string{e.cfg.Paths.LocalDownloadRoot, e.cfg.Paths.ImportRoot} {
		if strings.TrimSpace(root) == "" {
			continue
		}
		resolved, err := pathmap.Resolve(root, contentPath)
		switch {
		case errors.Is(err, services.ErrPathSecurity):
			lastErr = err
			continue
		case err != nil:
			return "", services.Wrap(services.ErrValidation, "postprocess", "validate source",
				fmt.Sprintf("content path %q is not readable", contentPath), err)
		}
		return resolved, nil
	}
	if lastErr == nil {
		lastErr = services.Wrap(services.ErrPathSecurity, "postprocess", "validate source", "no content roots configured", nil)
	}
	return "", lastErr
}

// gatherMedia lists the media files under source for kind, naturally sorted.
// A filename that would corrupt the concat manifest fails the whole job.
func gatherMedia(source string, kind queue.MediaKind) ([]string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "postprocess", "gather", "stat content path", err)
	}

	var candidates []string
	if !info.IsDir() {
		candidates = []string{source}
	} else {
		err = filepath.WalkDir(source, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.Type()&fs.ModeSymlink != 0 || d.IsDir() {
				return nil
			}
			candidates = append(candidates, path)
			return nil
		})
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "postprocess", "gather", "walk content path", err)
		}
	}

	var files []string
	for _, path := range candidates {
		matches := isAudio(path)
		if kind == queue.MediaEbook {
			matches = ebookRank(path) >= 0
		}
		if !matches {
			continue
		}
		if unsafeName(path) {
			return nil, services.Wrap(services.ErrValidation, "postprocess", "gather",
				fmt.Sprintf("unsupported characters in filename %q", filepath.Base(path)), nil)
		}
		files = append(files, path)
	}
	if len(files) == 0 {
		return nil, services.Wrap(services.ErrValidation, "postprocess", "gather",
			fmt.Sprintf("no %s files found under %s", kind, source), nil)
	}
	if kind == queue.MediaEbook {
		sort.SliceStable(files, func(i, j int) bool {
			ri, rj := ebookRank(files[i]), ebookRank(files[j])
			if ri != rj {
				return ri < rj
			}
			return naturalLess(files[i], files[j])
		})
		return files[:1], nil
	}
	sort.SliceStable(files, func(i, j int) bool { return naturalLess(files[i], files[j]) })
	return files, nil
}

func (e *Engine) stageEbook(files []string, workDir string) ([]string, error) {
	src := files[0]
	dst := filepath.Join(workDir, "book"+strings.ToLower(filepath.Ext(src)))
	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		return nil, services.Wrap(services.ErrTransient, "postprocess", "stage ebook", "copy source", err)
	}
	return []string{dst}, nil
}

func (e *Engine) stageAudio(ctx context.Context, files []string, source, workDir string, meta metadata, logger *slog.Logger) ([]string, error) {
	merged := filepath.Join(workDir, "merged.m4b")
	switch {
	case len(files) > 1 && e.cfg.PostProcess.MergeAudio:
		manifest, err := writeConcatManifest(workDir, files)
		if err != nil {
			return nil, err
		}
		args := []string{"-hide_banner", "-nostdin", "-y", "-f", "concat", "-safe", "0", "-i", manifest,
			"-map", "0:a", "-c", "copy", merged}
		if err := e.run(ctx, args, logger); err != nil {
			return nil, err
		}
	case len(files) == 1 && remuxable(files[0]):
		args := []string{"-hide_banner", "-nostdin", "-y", "-i", files[0], "-map", "0:a", "-c", "copy", merged}
		if err := e.run(ctx, args, logger); err != nil {
			return nil, err
		}
	default:
		staged := make([]string, 0, len(files))
		for i, src := range files {
			dst := filepath.Join(workDir, fmt.Sprintf("%03d-%s", i, SanitizeSegment(filepath.Base(src))))
			if err := fileutil.CopyFileVerified(src, dst); err != nil {
				return nil, services.Wrap(services.ErrTransient, "postprocess", "stage audio", "copy source", err)
			}
			staged = append(staged, dst)
		}
		return staged, nil
	}

	if _, err := os.Stat(merged); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "postprocess", "ffmpeg", "no output file produced", err)
	}
	tagged, err := e.tag(ctx, merged, source, workDir, meta, logger)
	if err != nil {
		return nil, err
	}
	return []string{tagged}, nil
}

func remuxable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m4a", ".m4b":
		return true
	}
	return false
}

func writeConcatManifest(workDir string, files []string) (string, error) {
	var b strings.Builder
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return "", fmt.Errorf("resolve %q: %w", file, err)
		}
		fmt.Fprintf(&b, "file '%s'\n", abs)
	}
	manifest := filepath.Join(workDir, "concat.txt")
	if err := os.WriteFile(manifest, []byte(b.String()), 0o600); err != nil {
		return "", fmt.Errorf("write concat manifest: %w", err)
	}
	return manifest, nil
}

// tag writes metadata and cover art in a second pass. Tagging problems keep
// the untagged audio.
func (e *Engine) tag(ctx context.Context, input, source, workDir string, meta metadata, logger *slog.Logger) (string, error) {
	output := filepath.Join(workDir, "tagged.m4b")
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", input}

	cover := ""
	if e.cfg.PostProcess.EmbedCover {
		cover = e.resolveCover(ctx, source, workDir, meta.CoverURL, logger)
	}
	if cover != "" {
		args = append(args, "-i", cover, "-map", "0:a", "-map", "1:v", "-c", "copy", "-disposition:v", "attached_pic")
	} else {
		args = append(args, "-map", "0:a", "-c", "copy")
	}
	args = append(args,
		"-metadata", "title="+meta.Title,
		"-metadata", "album="+meta.Title,
		"-metadata", "artist="+meta.Author,
		"-metadata", "album_artist="+meta.Author,
	)
	if len(meta.Narrators) > 0 {
		args = append(args, "-metadata", "composer="+strings.Join(meta.Narrators, ", "))
	}
	args = append(args, output)

	if err := e.run(ctx, args, logger); err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		logging.WarnWithContext(logger, "tagging pass failed; keeping untagged audio", "tagging_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "artifact is placed without embedded tags"))
		return input, nil
	}
	if _, err := os.Stat(output); err != nil {
		return input, nil
	}
	return output, nil
}

func (e *Engine) run(ctx context.Context, args []string, logger *slog.Logger) error {
	var (
		mu   sync.Mutex
		tail []string
	)
	err := e.exec.Run(ctx, e.ffmpeg, args, func(line string) {
		mu.Lock()
		defer mu.Unlock()
		if len(tail) == 8 {
			tail = tail[1:]
		}
		tail = append(tail, line)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	mu.Lock()
	defer mu.Unlock()
	logger.Debug("ffmpeg failed", logging.Error(err), logging.String("output_tail", strings.Join(tail, " | ")))
	return services.Wrap(services.ErrExternalTool, "postprocess", "ffmpeg", strings.Join(tail, " | "), err)
}

// classify turns a context expiry into a processing timeout while leaving
// caller cancellation untouched.
func (e *Engine) classify(parent, runCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrProcessingTimeout, "postprocess", "ffmpeg",
			fmt.Sprintf("exceeded %s budget", e.timeout), err)
	}
	return err
}

func (e *Engine) place(job *queue.Job, meta metadata, artifacts []string) (Result, error) {
	root := e.cfg.LibraryDir(string(job.MediaKind))
	titleSegment := SanitizeSegment(meta.Title)
	dir, err := pathmap.Within(root, filepath.Join(SanitizeSegment(meta.Author), titleSegment))
	if err != nil {
		return Result{}, err
	}

	result := Result{Title: meta.Title, Author: meta.Author}
	if len(artifacts) == 1 {
		dest := filepath.Join(dir, titleSegment+strings.ToLower(filepath.Ext(artifacts[0])))
		if err := fileutil.MoveAtomic(artifacts[0], dest); err != nil {
			return Result{}, services.Wrap(services.ErrTransient, "postprocess", "place", "move artifact", err)
		}
		result.DestinationPath = dest
		result.Files = []string{dest}
		return result, nil
	}

	for i, artifact := range artifacts {
		dest := filepath.Join(dir, fmt.Sprintf("%s - %03d%s", titleSegment, i+1, strings.ToLower(filepath.Ext(artifact))))
		if err := fileutil.MoveAtomic(artifact, dest); err != nil {
			unplace(dir, result.Files)
			return Result{}, services.Wrap(services.ErrTransient, "postprocess", "place",
				fmt.Sprintf("move artifact %d of %d", i+1, len(artifacts)), err)
		}
		result.Files = append(result.Files, dest)
	}
	result.DestinationPath = dir
	return result, nil
}

// unplace removes files placed before a failed move so a retry starts from an
// empty title directory. The directory goes too when nothing else is in it.
func unplace(dir string, placed []string) {
	for _, path := range placed {
		_ = os.Remove(path)
	}
	_ = os.Remove(dir)
}
