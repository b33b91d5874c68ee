package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"shelfarr/internal/api"
	"shelfarr/internal/config"
	"shelfarr/internal/logging"
	"shelfarr/internal/queue"
)

const apiShutdownTimeout = 5 * time.Second

// apiServer is the optional read-only HTTP surface bound to paths.api_bind.
type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	jobs   *api.JobService
	server *http.Server
	addr   string
}

// newAPIServer returns nil when no bind address is configured.
func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	s := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		jobs:   api.NewJobService(d.store),
	}
	s.server = &http.Server{
		Handler:           s.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, authMiddleware(token, h))
	}
	handle("GET /api/status", s.handleStatus)
	handle("GET /api/jobs", s.handleJobs)
	handle("GET /api/jobs/{id}", s.handleJob)
	if m := s.daemon.metrics; m != nil {
		handle("GET /metrics", m.Handler().ServeHTTP)
	}
	return mux
}

// start binds the listener synchronously so address errors surface to the
// caller; serving stops when ctx is done.
func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	context.AfterFunc(ctx, s.stop)

	s.addr = listener.Addr().String()
	s.logger.Info("api server listening", logging.String("address", s.addr))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.reply(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		SocketPath:   status.SocketPath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Dependencies: api.FromDependencies(status.Dependencies),
		Preflight:    api.FromCheckResults(status.Preflight),
	})
}

// handleJobs accepts ?status=a,b and repeated status parameters.
func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatusFilter(r.URL.Query()["status"])
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	jobs, err := s.jobs.List(r.Context(), statuses...)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if jobs == nil {
		jobs = []api.Job{}
	}
	s.reply(w, http.StatusOK, api.JobListResponse{Items: jobs})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Describe(r.Context(), r.PathValue("id"))
	switch {
	case err != nil:
		s.fail(w, http.StatusInternalServerError, err.Error())
	case job == nil:
		s.fail(w, http.StatusNotFound, "job not found")
	default:
		s.reply(w, http.StatusOK, api.JobResponse{Item: *job})
	}
}

func parseStatusFilter(values []string) ([]queue.Status, error) {
	var statuses []queue.Status
	for _, value := range values {
		for part := range strings.SplitSeq(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				return nil, fmt.Errorf("unknown status %q", part)
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

func (s *apiServer) reply(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) fail(w http.ResponseWriter, code int, message string) {
	s.reply(w, code, map[string]string{"error": message})
}
