package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"shelfarr/internal/api"
	"shelfarr/internal/daemon"
	"shelfarr/internal/logging"
	"shelfarr/internal/queue"
	"shelfarr/internal/workflow"
)

// serviceName prefixes every RPC method.
const serviceName = "Shelfarr"

// Server serves the daemon's control API as JSON-RPC on a Unix socket.
type Server struct {
	path     string
	logger   *slog.Logger
	listener net.Listener
	rpc      *rpc.Server
	cancel   context.CancelFunc
	group    *errgroup.Group

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer binds the socket at path (replacing a stale one) and registers
// the RPC service. shutdown runs when a client asks the process to exit; it
// may be nil.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, shutdown func()) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	server := rpc.NewServer()
	if err := server.RegisterName(serviceName, &service{daemon: d, logger: logger, ctx: ctx, shutdown: shutdown}); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}
	return &Server{
		path:     path,
		logger:   logger,
		listener: listener,
		rpc:      server,
		cancel:   cancel,
		group:    &errgroup.Group{},
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.group.Go(s.acceptLoop)
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
				logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.group.Go(func() error {
			defer s.untrack(conn)
			s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn))
			return nil
		})
	}
}

// track registers conn; it reports false once Close has begun.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Close stops accepting, disconnects clients and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()

	_ = s.group.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.logger.Info("daemon shutdown requested via IPC", logging.String(logging.FieldEventType, "daemon_shutdown"))
	if s.shutdown != nil {
		// The reply must go out before the process starts tearing down.
		go func() {
			time.Sleep(50 * time.Millisecond)
			s.shutdown()
		}()
	}
	resp.Acknowledged = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	wf := api.FromStatusSummary(status.Workflow)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.QueueStats = wf.QueueStats
	resp.LastError = wf.LastError
	resp.LastJob = wf.LastJob
	resp.LastPoll = wf.LastPoll
	resp.InFlight = wf.InFlight
	resp.Health = wf.Health
	resp.LockPath = status.LockFilePath
	resp.QueueDBPath = status.QueueDBPath
	resp.Dependencies = api.FromDependencies(status.Dependencies)
	resp.Preflight = api.FromCheckResults(status.Preflight)
	return nil
}

func (s *service) JobAdd(req JobAddRequest, resp *JobResponse) error {
	job, err := s.daemon.Workflow().CreateJob(s.ctx, workflow.NewJobRequest{
		RequestID:   req.RequestID,
		MediaKind:   req.MediaKind,
		Title:       req.Title,
		Authors:     req.Authors,
		Narrators:   req.Narrators,
		SearchTerms: req.SearchTerms,
		CoverURL:    req.CoverURL,
	})
	if err != nil {
		return err
	}
	resp.Item = api.FromJob(job)
	s.logger.Info("job added via IPC",
		logging.String(logging.FieldEventType, "job_add"),
		logging.JobID(job.ID),
		logging.String("request_id", job.RequestID))
	return nil
}

func (s *service) JobList(req JobListRequest, resp *JobListResponse) error {
	statuses := make([]queue.Status, 0, len(req.Statuses))
	for _, value := range req.Statuses {
		parsed, ok := queue.ParseStatus(strings.TrimSpace(value))
		if !ok {
			return fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, parsed)
	}
	jobs, err := s.daemon.Workflow().List(s.ctx, statuses...)
	if err != nil {
		return err
	}
	resp.Items = api.SortJobsNewestFirst(api.FromJobs(jobs))
	return nil
}

func (s *service) JobShow(req JobRequest, resp *JobResponse) error {
	job, err := s.daemon.Workflow().Snapshot(s.ctx, strings.TrimSpace(req.ID))
	if err != nil {
		return err
	}
	resp.Item = api.FromJob(job)
	return nil
}

func (s *service) JobRetry(req JobRequest, resp *JobResponse) error {
	job, err := s.daemon.Workflow().Retry(s.ctx, strings.TrimSpace(req.ID))
	if err != nil {
		return err
	}
	resp.Item = api.FromJob(job)
	s.logger.Info("job retried via IPC",
		logging.String(logging.FieldEventType, "job_retry"),
		logging.JobID(job.ID),
		logging.Int("retry_count", job.RetryCount))
	return nil
}

func (s *service) JobCancel(req JobRequest, resp *JobResponse) error {
	job, err := s.daemon.Workflow().Cancel(s.ctx, strings.TrimSpace(req.ID))
	if err != nil {
		return err
	}
	resp.Item = api.FromJob(job)
	s.logger.Info("job cancelled via IPC",
		logging.String(logging.FieldEventType, "job_cancel"),
		logging.JobID(job.ID),
		logging.Status(string(job.Status)))
	return nil
}

func (s *service) JobAdvance(req JobRequest, resp *JobResponse) error {
	job, err := s.daemon.Workflow().Advance(s.ctx, strings.TrimSpace(req.ID))
	if job != nil {
		resp.Item = api.FromJob(job)
	}
	return err
}

func (s *service) JobRetryPublish(req JobRequest, resp *JobResponse) error {
	job, err := s.daemon.Workflow().RetryPublish(s.ctx, strings.TrimSpace(req.ID))
	if err != nil {
		return err
	}
	resp.Item = api.FromJob(job)
	s.logger.Info("publish retried via IPC",
		logging.String(logging.FieldEventType, "job_publish_retry"),
		logging.JobID(job.ID),
		logging.Bool("publish_pending", job.PublishPending))
	return nil
}

func (s *service) JobImport(req JobImportRequest, resp *JobResponse) error {
	job, err := s.daemon.Workflow().ImportJob(s.ctx, strings.TrimSpace(req.ID), req.SourcePath)
	if err != nil {
		return err
	}
	resp.Item = api.FromJob(job)
	s.logger.Info("job imported via IPC",
		logging.String(logging.FieldEventType, "job_import"),
		logging.JobID(job.ID),
		logging.Status(string(job.Status)))
	return nil
}

func (s *service) JobPrune(req JobPruneRequest, resp *JobPruneResponse) error {
	removed, err := s.daemon.PruneJobs(s.ctx, time.Duration(req.OlderThanSeconds)*time.Second)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) QueueHealth(_ QueueHealthRequest, resp *QueueHealthResponse) error {
	health, err := s.daemon.QueueHealth(s.ctx)
	if err != nil {
		return err
	}
	*resp = api.FromHealth(health)
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalJobs = health.TotalJobs
	resp.Error = health.Error
	if err != nil && health.Error == "" {
		return err
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
