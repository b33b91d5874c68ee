// Package daemonrun hosts the foreground daemon process: logging, store,
// daemon lifecycle and the IPC socket, torn down on SIGINT/SIGTERM or a
// shutdown request.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"shelfarr/internal/app"
	"shelfarr/internal/config"
	"shelfarr/internal/daemon"
	"shelfarr/internal/deps"
	"shelfarr/internal/ipc"
	"shelfarr/internal/logging"
	"shelfarr/internal/preflight"
	"shelfarr/internal/queue"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel   string
	SocketPath string
}

// Run starts the shelfarr daemon and blocks until it is told to exit.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String("session_id", uuid.NewString()))

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	logDependencySnapshot(logger, cfg)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	appCtx := app.New(cfg, store, logger)
	defer appCtx.Close()

	d, err := daemon.New(appCtx)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	// The lock is taken before the socket is touched so a second instance
	// never removes a live daemon's socket.
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and queue database access"),
		)
		return err
	}

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger, cancel)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("shelfarr daemon ready", logging.String("socket", socketPath))
	<-signalCtx.Done()
	logger.Info("shelfarr daemon shutting down")
	return nil
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("mam_session_present", strings.TrimSpace(cfg.Indexer.SessionID) != ""),
		logging.String("qbittorrent_url", cfg.QBittorrent.URL),
		logging.Bool("audiobookshelf_enabled", cfg.Audiobookshelf.Enabled),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
	statuses := preflight.CheckSystemDeps(cfg)
	for _, status := range statuses {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	if missing := deps.Missing(statuses); len(missing) > 0 {
		attrs = append(attrs, logging.Int("missing_dependencies", len(missing)))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
