package torrent_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfarr/internal/services"
	"shelfarr/internal/torrent"
)

func TestSessionPoolIsolatesCredentials(t *testing.T) {
	var dials atomic.Int32
	pool := torrent.NewSessionPool(time.Minute, func(context.Context, torrent.Credentials) (torrent.API, error) {
		dials.Add(1)
		return newFakeAPI(), nil
	}, nil)
	t.Cleanup(pool.Close)

	credsA := torrent.Credentials{Host: "http://qbit:8080", Username: "admin", Password: "A"}
	credsB := torrent.Credentials{Host: "http://qbit:8080", Username: "admin", Password: "B"}
	require.NotEqual(t, credsA.Scope(), credsB.Scope())

	a1, err := pool.Get(context.Background(), credsA)
	require.NoError(t, err)
	b1, err := pool.Get(context.Background(), credsB)
	require.NoError(t, err)
	a2, err := pool.Get(context.Background(), credsA)
	require.NoError(t, err)

	assert.NotSame(t, a1, b1, "different credentials must not share a session")
	assert.Same(t, a1, a2, "same credentials reuse the cached session")
	assert.EqualValues(t, 2, dials.Load())
}

func TestSessionPoolScopeNormalizesHost(t *testing.T) {
	a := torrent.Credentials{Host: "HTTP://qbit:8080/", Username: "u", Password: "p"}
	b := torrent.Credentials{Host: "http://qbit:8080", Username: "u", Password: "p"}
	assert.Equal(t, a.Scope(), b.Scope())
}

func TestSessionPoolConcurrentFirstUseLogsInOnce(t *testing.T) {
	var dials atomic.Int32
	pool := torrent.NewSessionPool(time.Minute, func(context.Context, torrent.Credentials) (torrent.API, error) {
		dials.Add(1)
		time.Sleep(10 * time.Millisecond)
		return newFakeAPI(), nil
	}, nil)
	t.Cleanup(pool.Close)

	creds := torrent.Credentials{Host: "http://qbit", Username: "u", Password: "p"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Get(context.Background(), creds)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, dials.Load())
}

func TestSessionPoolInvalidateForcesLogin(t *testing.T) {
	var dials atomic.Int32
	pool := torrent.NewSessionPool(time.Minute, func(context.Context, torrent.Credentials) (torrent.API, error) {
		dials.Add(1)
		return newFakeAPI(), nil
	}, nil)
	t.Cleanup(pool.Close)

	creds := torrent.Credentials{Host: "http://qbit", Username: "u", Password: "p"}
	first, err := pool.Get(context.Background(), creds)
	require.NoError(t, err)
	pool.Invalidate(creds.Scope())
	second, err := pool.Get(context.Background(), creds)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.EqualValues(t, 2, dials.Load())
}

func TestSessionPoolClassifiesLoginFailures(t *testing.T) {
	pool := torrent.NewSessionPool(time.Minute, func(context.Context, torrent.Credentials) (torrent.API, error) {
		return nil, errors.New("login failed: 403 forbidden")
	}, nil)
	t.Cleanup(pool.Close)
	_, err := pool.Get(context.Background(), torrent.Credentials{Host: "http://qbit"})
	require.ErrorIs(t, err, services.ErrConfiguration)

	pool2 := torrent.NewSessionPool(time.Minute, func(context.Context, torrent.Credentials) (torrent.API, error) {
		return nil, errors.New("dial tcp: connection refused")
	}, nil)
	t.Cleanup(pool2.Close)
	_, err = pool2.Get(context.Background(), torrent.Credentials{Host: "http://qbit"})
	require.ErrorIs(t, err, services.ErrTransient)
}
