// Package app holds the process-wide collaborators built once at startup.
package app

import (
	"log/slog"
	"sync"
	"time"

	"shelfarr/internal/config"
	"shelfarr/internal/indexer"
	"shelfarr/internal/library"
	"shelfarr/internal/logging"
	"shelfarr/internal/metrics"
	"shelfarr/internal/notifications"
	"shelfarr/internal/postprocess"
	"shelfarr/internal/queue"
	"shelfarr/internal/torrent"
	"shelfarr/internal/workflow"
)

// Builder constructs the workflow manager for a Context.
type Builder func(c *Context) (*workflow.Manager, error)

// Context is created once per process and passed by pointer. The workflow
// manager inside it is built lazily on first use.
type Context struct {
	Config  *config.Config
	Store   *queue.Store
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	build Builder

	once    sync.Once
	manager *workflow.Manager
	err     error

	closeMu sync.Mutex
	closers []func()
}

// Option customizes a Context.
type Option func(*Context)

// WithBuilder replaces the default workflow construction.
func WithBuilder(build Builder) Option {
	return func(c *Context) {
		if build != nil {
			c.build = build
		}
	}
}

// WithMetrics shares an existing metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Context) {
		if m != nil {
			c.Metrics = m
		}
	}
}

// New returns a Context for cfg and store.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) *Context {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Context{
		Config: cfg,
		Store:  store,
		Logger: logger,
		build:  DefaultBuilder,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}
	return c
}

// Workflow returns the single workflow manager, constructing it on the first
// call. Concurrent first callers block until construction finishes and all
// receive the same manager. The guard is not taken again afterwards.
func (c *Context) Workflow() (*workflow.Manager, error) {
	c.once.Do(func() {
		c.manager, c.err = c.build(c)
	})
	return c.manager, c.err
}

// OnClose registers cleanup run by Close in reverse order.
func (c *Context) OnClose(fn func()) {
	if fn == nil {
		return
	}
	c.closeMu.Lock()
	c.closers = append(c.closers, fn)
	c.closeMu.Unlock()
}

// Close releases caches and sessions created by the builder.
func (c *Context) Close() {
	c.closeMu.Lock()
	closers := c.closers
	c.closers = nil
	c.closeMu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// DefaultBuilder wires the production adapters: MAM indexer, qBittorrent
// session pool, ffmpeg post-processing and Audiobookshelf publishing.
func DefaultBuilder(c *Context) (*workflow.Manager, error) {
	cfg := c.Config
	logger := c.Logger

	idx := indexer.New(cfg, nil, logger)
	c.OnClose(idx.Close)

	ttl := time.Duration(cfg.QBittorrent.SessionTTLMinutes) * time.Minute
	pool := torrent.NewSessionPool(ttl, torrent.LoginDialer, logger)
	c.OnClose(pool.Close)

	return workflow.NewManager(cfg, c.Store, workflow.Deps{
		Indexer:   idx,
		Transfer:  torrent.New(cfg, pool, logger),
		Processor: postprocess.New(cfg, logger),
		Publisher: library.NewConfiguredPublisher(cfg, logger),
		Notifier:  notifications.NewService(cfg),
		Metrics:   c.Metrics,
	}, logger), nil
}
