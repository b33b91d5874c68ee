package indexer_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfarr/internal/indexer"
	"shelfarr/internal/queue"
	"shelfarr/internal/services"
	"shelfarr/internal/testsupport"
)

func newClient(t *testing.T, handler http.Handler) *indexer.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithIndexerURL(server.URL))
	client := indexer.New(cfg, server.Client(), nil)
	t.Cleanup(client.Close)
	return client
}

func TestSearchSendsSessionAndNormalizes(t *testing.T) {
	var hits atomic.Int32
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tor/js/loadSearchJSONbasic.php", r.URL.Path)
		cookie, err := r.Cookie("mam_id")
		if assert.NoError(t, err) {
			assert.Equal(t, "test-session", cookie.Value)
		}

		var body struct {
			Tor struct {
				Text    string   `json:"text"`
				MainCat []string `json:"main_cat"`
			} `json:"tor"`
		}
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "The Hobbit Tolkien", body.Tor.Text)
		assert.Equal(t, []string{"13"}, body.Tor.MainCat)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":[{"id":7,"title":"The Hobbit","seeders":"4","size":"100","dl":"xyz"}]}`)
	}))

	results, err := client.Search(context.Background(), queue.MediaAudio, []string{"The Hobbit:", "Tolkien!"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "7", results[0].ID)
	assert.Equal(t, 4, results[0].Seeders)
	assert.Equal(t, "7:xyz", results[0].Ref().String())

	again, err := client.Search(context.Background(), queue.MediaAudio, []string{"the hobbit", "tolkien"})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.EqualValues(t, 1, hits.Load(), "second search should be served from cache")
}

func TestSearchNothingReturnedIsEmpty(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":"Nothing returned, out of 0"}`)
	}))
	results, err := client.Search(context.Background(), queue.MediaEbook, []string{"obscure"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchNonJSONIsEmpty(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>login</html>`)
	}))
	results, err := client.Search(context.Background(), queue.MediaAudio, []string{"book"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRejectedSessionIsConfigurationError(t *testing.T) {
	var hits atomic.Int32
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	_, err := client.Search(context.Background(), queue.MediaAudio, []string{"book"})
	require.ErrorIs(t, err, services.ErrConfiguration)
	assert.EqualValues(t, 1, hits.Load(), "auth failures are not retried")
}

func TestSearchRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"data":[{"id":"1","title":"Book"}]}`)
	}))
	results, err := client.Search(context.Background(), queue.MediaAudio, []string{"book"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.EqualValues(t, 3, hits.Load())
}

func TestSearchExhaustedRetriesAreTransient(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, err := client.Search(context.Background(), queue.MediaAudio, []string{"book"})
	require.ErrorIs(t, err, services.ErrTransient)
}

func TestSearchSurvivesCancelledPeer(t *testing.T) {
	var hits atomic.Int32
	arrived := make(chan struct{})
	release := make(chan struct{})
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			close(arrived)
		}
		<-release
		_, _ = io.WriteString(w, `{"data":[{"id":"9","title":"Dune"}]}`)
	}))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := client.Search(ctxA, queue.MediaAudio, []string{"Dune"})
		errA <- err
	}()
	<-arrived

	type outcome struct {
		results []indexer.Result
		err     error
	}
	doneB := make(chan outcome, 1)
	go func() {
		results, err := client.Search(context.Background(), queue.MediaAudio, []string{"Dune"})
		doneB <- outcome{results, err}
	}()

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)
	close(release)

	b := <-doneB
	require.NoError(t, b.err)
	require.Len(t, b.results, 1)
	assert.Equal(t, "9", b.results[0].ID)
	assert.EqualValues(t, 1, hits.Load(), "both callers share one request")
}

func TestSearchEmptyAfterSanitizingSkipsRequest(t *testing.T) {
	var hits atomic.Int32
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	results, err := client.Search(context.Background(), queue.MediaAudio, []string{"!!!", "??"})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, hits.Load())

	_, err = client.Search(context.Background(), queue.MediaAudio, nil)
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestFetchFallsBackAcrossEndpoints(t *testing.T) {
	torrent := testsupport.TorrentPayload(t, "The Hobbit")
	var paths []string
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		if r.URL.Query().Get("tid") == "7" {
			w.Header().Set("Content-Type", "application/x-bittorrent")
			_, _ = w.Write(torrent)
			return
		}
		http.NotFound(w, r)
	}))

	data, err := client.Fetch(context.Background(), indexer.Ref{ID: "7", DownloadHash: "xyz"})
	require.NoError(t, err)
	assert.Equal(t, torrent, data)
	assert.Equal(t, []string{"/tor/download.php/xyz", "/tor/download.php?tid=7"}, paths)
}

func TestFetchMissingEverywhereIsNotFound(t *testing.T) {
	client := newClient(t, http.HandlerFunc(http.NotFound))
	_, err := client.Fetch(context.Background(), indexer.Ref{ID: "7"})
	require.ErrorIs(t, err, services.ErrNotFound)
}

func TestFetchRejectsInvalidPayload(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<!DOCTYPE html><html><body>Please log in to continue downloading</body></html>")
	}))
	_, err := client.Fetch(context.Background(), indexer.Ref{ID: "7"})
	require.ErrorIs(t, err, services.ErrInvalidPayload)
	assert.False(t, services.IsRetryable(err))
}

func TestFetchWithoutSessionFailsFast(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithIndexerURL(server.URL))
	cfg.Indexer.SessionID = ""
	client := indexer.New(cfg, server.Client(), nil)
	t.Cleanup(client.Close)

	_, err := client.Fetch(context.Background(), indexer.Ref{ID: "7"})
	require.ErrorIs(t, err, services.ErrConfiguration)
}
