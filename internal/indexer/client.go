package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/avast/retry-go"
	"golang.org/x/sync/singleflight"

	"shelfarr/internal/config"
	"shelfarr/internal/logging"
	"shelfarr/internal/payload"
	"shelfarr/internal/queue"
	"shelfarr/internal/services"
)

const (
	searchEndpoint  = "/tor/js/loadSearchJSONbasic.php"
	userAgent       = "Mozilla/5.0"
	maxSearchBytes  = 8 << 20
	maxTorrentBytes = 16 << 20
)

// HTTPDoer describes the HTTP client used by the indexer.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client searches MyAnonamouse and downloads torrent files.
type Client struct {
	baseURL    string
	session    string
	categories map[queue.MediaKind]int
	limit      int
	attempts   uint
	delay      time.Duration
	budget     time.Duration
	httpClient HTTPDoer
	logger     *slog.Logger

	cache     *ttlcache.Cache[string, []Result]
	cacheTTL  time.Duration
	cacheMax  int
	cacheMu   sync.Mutex
	cacheKeys map[string]time.Time
	flights   singleflight.Group
}

// NewHTTPClient builds the pooled HTTP client shared by the process: total is
// the whole-request budget and connect bounds dialing.
func NewHTTPClient(total, connect time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connect,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Timeout: total, Transport: transport}
}

// New constructs a Client from configuration. A nil httpClient uses
// NewHTTPClient with the configured timeouts.
func New(cfg *config.Config, httpClient HTTPDoer, logger *slog.Logger) *Client {
	ic := cfg.Indexer
	if httpClient == nil {
		httpClient = NewHTTPClient(
			time.Duration(ic.RequestTimeout)*time.Second,
			time.Duration(ic.ConnectTimeout)*time.Second,
		)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	attempts := ic.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	ttl := time.Duration(ic.SearchCacheMinutes) * time.Minute
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(ic.BaseURL), "/"),
		session: strings.TrimSpace(ic.SessionID),
		categories: map[queue.MediaKind]int{
			queue.MediaAudio: ic.AudioCategory,
			queue.MediaEbook: ic.EbookCategory,
		},
		limit:      ic.ResultLimit,
		attempts:   uint(attempts),
		delay:      time.Duration(ic.RetryDelaySeconds) * time.Second,
		budget:     searchBudget(attempts, ic.RequestTimeout, ic.RetryDelaySeconds),
		httpClient: httpClient,
		logger:     logging.NewComponentLogger(logger, "indexer"),
		cache:      ttlcache.New(ttlcache.Options[string, []Result]{}.SetDefaultTTL(ttl)),
		cacheTTL:   ttl,
		cacheMax:   ic.SearchCacheMaxEntries,
		cacheKeys:  make(map[string]time.Time),
	}
}

// searchBudget bounds one shared search: every attempt at the full request
// timeout plus the delays between them. Zero means unbounded.
func searchBudget(attempts, requestSeconds, delaySeconds int) time.Duration {
	if requestSeconds <= 0 {
		return 0
	}
	per := time.Duration(requestSeconds) * time.Second
	return time.Duration(attempts)*per + time.Duration(attempts-1)*time.Duration(delaySeconds)*time.Second
}

// Close releases the search cache.
func (c *Client) Close() {
	if c != nil && c.cache != nil {
		c.cache.Close()
	}
}

var querySanitizer = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// SanitizeQuery replaces punctuation runs with single spaces.
func SanitizeQuery(raw string) string {
	return strings.TrimSpace(querySanitizer.ReplaceAllString(raw, " "))
}

// Search returns normalized results for terms in the category of kind. An
// empty tracker response is an empty slice, not an error.
func (c *Client) Search(ctx context.Context, kind queue.MediaKind, terms []string) ([]Result, error) {
	raw := strings.TrimSpace(strings.Join(terms, " "))
	if raw == "" {
		return nil, services.Wrap(services.ErrValidation, "indexer", "search", "no search terms", nil)
	}
	query := SanitizeQuery(raw)
	if query == "" {
		c.logger.Debug("search term empty after sanitization", logging.String("query", raw))
		return nil, nil
	}

	key := string(kind) + "|" + strings.ToLower(query)
	if cached, ok := c.cache.Get(key); ok {
		return cloneResults(cached), nil
	}

	// The shared request belongs to no single caller; each caller still
	// stops waiting when its own context ends.
	flight := c.flights.DoChan(key, func() (any, error) {
		flightCtx, cancel := c.flightContext(ctx)
		defer cancel()
		results, err := c.searchWithRetry(flightCtx, kind, query)
		if err != nil {
			return nil, err
		}
		if results != nil {
			c.remember(key, results)
		}
		return results, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug("search collapsed with in-flight request", logging.String("query", query))
		}
		return cloneResults(res.Val.([]Result)), nil
	}
}

func (c *Client) flightContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if c.budget <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, c.budget)
}

// Fetch downloads and validates the torrent file for ref.
func (c *Client) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	if strings.TrimSpace(ref.ID) == "" {
		return nil, services.Wrap(services.ErrValidation, "indexer", "fetch", "torrent id is required", nil)
	}
	if err := c.requireSession("fetch"); err != nil {
		return nil, err
	}

	var lastErr error
	for _, endpoint := range downloadEndpoints(ref) {
		var data []byte
		err := c.withRetry(ctx, "fetch", func() error {
			var reqErr error
			data, reqErr = c.download(ctx, endpoint)
			return reqErr
		})
		switch {
		case err == nil:
			if verr := payload.Validate(data); verr != nil {
				c.logger.Debug("download endpoint returned invalid payload",
					logging.String("endpoint", endpoint), logging.Error(verr))
				lastErr = verr
				continue
			}
			return data, nil
		case errors.Is(err, services.ErrNotFound):
			if lastErr == nil || errors.Is(lastErr, services.ErrNotFound) {
				lastErr = err
			}
			continue
		default:
			return nil, err
		}
	}
	if lastErr == nil {
		lastErr = services.Wrap(services.ErrNotFound, "indexer", "fetch", "no download endpoint available", nil)
	}
	return nil, lastErr
}

func downloadEndpoints(ref Ref) []string {
	id := url.QueryEscape(ref.ID)
	var endpoints []string
	if ref.DownloadHash != "" {
		endpoints = append(endpoints, "/tor/download.php/"+url.PathEscape(ref.DownloadHash))
	}
	return append(endpoints,
		"/tor/download.php?tid="+id,
		"/tor/download.php?id="+id,
	)
}

func (c *Client) searchWithRetry(ctx context.Context, kind queue.MediaKind, query string) ([]Result, error) {
	var results []Result
	err := c.withRetry(ctx, "search", func() error {
		var searchErr error
		results, searchErr = c.search(ctx, kind, query)
		return searchErr
	})
	return results, err
}

func (c *Client) withRetry(ctx context.Context, operation string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, services.ErrTransient) || errors.Is(err, services.ErrTimeout)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("indexer request failed; retrying",
				logging.String("operation", operation),
				logging.Int("attempt", int(n)+1),
				logging.Error(err))
		}),
	)
}

func (c *Client) search(ctx context.Context, kind queue.MediaKind, query string) ([]Result, error) {
	if err := c.requireSession("search"); err != nil {
		return nil, err
	}
	category := c.categories[kind]
	if category <= 0 {
		category = 13
	}
	limit := c.limit
	if limit <= 0 {
		limit = 100
	}
	body := map[string]any{
		"tor": map[string]any{
			"text":        query,
			"searchType":  "all",
			"srchIn":      []string{"title", "author", "narrator", "series"},
			"searchIn":    "torrents",
			"sortType":    "default",
			"startNumber": "0",
			"main_cat":    []string{fmt.Sprint(category)},
		},
		"perpage": fmt.Sprint(limit),
		"dlLink":  "1",
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode search body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchEndpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "indexer", "search", "build request", err)
	}
	c.decorate(req, "application/json, */*")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, "search", err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBytes))
	if err != nil {
		return nil, transportError(ctx, "search", err)
	}
	if err := statusError("search", resp.StatusCode); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(text)
	if bytes.HasPrefix(trimmed, []byte("Error")) {
		return nil, services.Wrap(services.ErrExternalTool, "indexer", "search", string(truncate(trimmed, 200)), nil)
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var envelope struct {
		Error any              `json:"error"`
		Data  []map[string]any `json:"data"`
	}
	if err := decoder.Decode(&envelope); err != nil {
		c.logger.Warn("unable to decode search response",
			logging.String(logging.FieldEventType, "indexer_decode_failed"),
			logging.String(logging.FieldErrorHint, "check the session cookie; the tracker may have served a login page"),
			logging.String("body_preview", string(truncate(trimmed, 200))))
		return nil, nil
	}
	if envelope.Error != nil {
		message := strings.TrimSpace(fmt.Sprint(envelope.Error))
		if strings.HasPrefix(strings.ToLower(message), "nothing returned") {
			return []Result{}, nil
		}
		return nil, services.Wrap(services.ErrExternalTool, "indexer", "search", message, nil)
	}
	results := normalizeResults(envelope.Data, query)
	c.logger.Debug("search complete", logging.String("query", query), logging.Int("results", len(results)))
	return results, nil
}

func (c *Client) download(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "indexer", "fetch", "build request", err)
	}
	c.decorate(req, "application/x-bittorrent, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, "fetch", err)
	}
	defer resp.Body.Close()

	if err := statusError("fetch", resp.StatusCode); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentBytes))
	if err != nil {
		return nil, transportError(ctx, "fetch", err)
	}
	return data, nil
}

func (c *Client) decorate(req *http.Request, accept string) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+"/")
	if strings.ContainsAny(c.session, "=;") {
		req.Header.Set("Cookie", c.session)
		return
	}
	req.AddCookie(&http.Cookie{Name: "mam_id", Value: c.session})
}

func (c *Client) requireSession(operation string) error {
	if c.session == "" {
		return services.Wrap(services.ErrConfiguration, "indexer", operation, "session id not configured", nil)
	}
	return nil
}

func (c *Client) remember(key string, results []Result) {
	if c.cacheTTL <= 0 {
		return
	}
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	now := time.Now()
	for k, inserted := range c.cacheKeys {
		if now.Sub(inserted) >= c.cacheTTL {
			delete(c.cacheKeys, k)
		}
	}
	if _, exists := c.cacheKeys[key]; !exists && c.cacheMax > 0 && len(c.cacheKeys) >= c.cacheMax {
		return
	}
	c.cacheKeys[key] = now
	c.cache.Set(key, cloneResults(results), ttlcache.DefaultTTL)
}

func statusError(operation string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "indexer", operation,
			fmt.Sprintf("tracker rejected session (HTTP %d)", status), nil)
	case status == http.StatusNotFound || status == http.StatusGone:
		return services.Wrap(services.ErrNotFound, "indexer", operation, fmt.Sprintf("HTTP %d", status), nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return services.Wrap(services.ErrTransient, "indexer", operation, fmt.Sprintf("HTTP %d", status), nil)
	default:
		return services.Wrap(services.ErrExternalTool, "indexer", operation, fmt.Sprintf("HTTP %d", status), nil)
	}
}

func transportError(ctx context.Context, operation string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "indexer", operation, "request timed out", err)
	}
	return services.Wrap(services.ErrTransient, "indexer", operation, "request failed", err)
}

func cloneResults(results []Result) []Result {
	if results == nil {
		return nil
	}
	out := make([]Result, len(results))
	copy(out, results)
	return out
}

func truncate(data []byte, limit int) []byte {
	if len(data) > limit {
		return data[:limit]
	}
	return data
}
