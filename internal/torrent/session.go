package torrent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/cespare/xxhash/v2"

	"shelfarr/internal/config"
	"shelfarr/internal/logging"
	"shelfarr/internal/services"
)

// API is the subset of the qBittorrent Web API the adapter uses.
// *qbt.Client satisfies it.
type API interface {
	LoginCtx(ctx context.Context) error
	AddTorrentFromMemoryCtx(ctx context.Context, buf []byte, options map[string]string) error
	GetTorrentsCtx(ctx context.Context, o qbt.TorrentFilterOptions) ([]qbt.Torrent, error)
	ResumeCtx(ctx context.Context, hashes []string) error
	SetTorrentShareLimitCtx(ctx context.Context, hashes []string, ratioLimit float64, seedingTimeLimit int64, inactiveSeedingTimeLimit int64) error
}

// Credentials describe how to reach and authenticate against one backend.
type Credentials struct {
	Host          string
	Username      string
	Password      string
	TLSSkipVerify bool
	Timeout       time.Duration
}

// CredentialsFromConfig reads the backend credentials from configuration.
func CredentialsFromConfig(cfg *config.Config) Credentials {
	return Credentials{
		Host:          cfg.QBittorrent.URL,
		Username:      cfg.QBittorrent.Username,
		Password:      cfg.QBittorrent.Password,
		TLSSkipVerify: cfg.QBittorrent.TLSSkipVerify,
		Timeout:       time.Duration(cfg.QBittorrent.RequestTimeout) * time.Second,
	}
}

// Scope keys a cached session. Two scopes with the same host but different
// credentials never share a session.
type Scope struct {
	Host           string
	CredentialHash uint64
}

// Scope returns the cache key for these credentials.
func (c Credentials) Scope() Scope {
	return Scope{
		Host:           strings.TrimRight(strings.ToLower(strings.TrimSpace(c.Host)), "/"),
		CredentialHash: xxhash.Sum64String(c.Username + "\x00" + c.Password),
	}
}

// Dialer creates an authenticated API session.
type Dialer func(ctx context.Context, creds Credentials) (API, error)

// LoginDialer creates a qBittorrent client and logs in.
func LoginDialer(ctx context.Context, creds Credentials) (API, error) {
	timeout := creds.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := qbt.NewClient(qbt.Config{
		Host:          creds.Host,
		Username:      creds.Username,
		Password:      creds.Password,
		Timeout:       int(timeout.Seconds()),
		TLSSkipVerify: creds.TLSSkipVerify,
	})
	if err := client.LoginCtx(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

type session struct {
	api     API
	revoked atomic.Bool
}

// SessionPool caches authenticated sessions per Scope for a bounded time.
type SessionPool struct {
	dial   Dialer
	cache  *ttlcache.Cache[Scope, *session]
	logger *slog.Logger

	mu    sync.Mutex
	locks map[Scope]*sync.Mutex
}

// NewSessionPool builds a pool whose entries expire after ttl. A nil dial
// uses LoginDialer.
func NewSessionPool(ttl time.Duration, dial Dialer, logger *slog.Logger) *SessionPool {
	if dial == nil {
		dial = LoginDialer
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SessionPool{
		dial:   dial,
		cache:  ttlcache.New(ttlcache.Options[Scope, *session]{}.SetDefaultTTL(ttl)),
		logger: logging.NewComponentLogger(logger, "torrent-sessions"),
		locks:  make(map[Scope]*sync.Mutex),
	}
}

// Get returns the cached session for creds, logging in when none is live.
// Concurrent callers for the same scope share a single login.
func (p *SessionPool) Get(ctx context.Context, creds Credentials) (API, error) {
	scope := creds.Scope()
	if s, ok := p.cache.Get(scope); ok && !s.revoked.Load() {
		return s.api, nil
	}

	lock := p.scopeLock(scope)
	lock.Lock()
	defer lock.Unlock()

	if s, ok := p.cache.Get(scope); ok && !s.revoked.Load() {
		return s.api, nil
	}

	api, err := p.dial(ctx, creds)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if isAuthError(err) {
			return nil, services.Wrap(services.ErrConfiguration, "torrent", "login",
				fmt.Sprintf("qBittorrent rejected credentials for %s", scope.Host), err)
		}
		return nil, services.Wrap(services.ErrTransient, "torrent", "login",
			fmt.Sprintf("connect to %s", scope.Host), err)
	}
	p.cache.Set(scope, &session{api: api}, ttlcache.DefaultTTL)
	p.logger.Debug("qBittorrent session established", logging.String("host", scope.Host))
	return api, nil
}

// Invalidate marks the cached session for scope unusable; the next Get logs
// in again.
func (p *SessionPool) Invalidate(scope Scope) {
	if s, ok := p.cache.Get(scope); ok {
		s.revoked.Store(true)
	}
}

// Close releases the cache.
func (p *SessionPool) Close() {
	p.cache.Close()
}

func (p *SessionPool) scopeLock(scope Scope) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[scope]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[scope] = lock
	}
	return lock
}

// isAuthError reports whether err looks like a rejected login or an expired
// session. The client library reports these as plain strings.
func isAuthError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "403") ||
		strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "bad credentials") ||
		strings.Contains(msg, "login failed")
}
