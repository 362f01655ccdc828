package vcontrold

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingDiscover returns a discover function that builds an empty catalog
// per call and counts the calls.
func countingDiscover(calls *atomic.Int32, delay time.Duration) func(context.Context, Endpoint) (*Catalog, error) {
	return func(_ context.Context, ep Endpoint) (*Catalog, error) {
		calls.Add(1)
		time.Sleep(delay)
		return NewCatalog(ep, nil), nil
	}
}

func newTestCache(t *testing.T, opts ...ClientOption) *CatalogCache {
	t.Helper()
	cache, err := NewCatalogCache(opts...)
	require.NoError(t, err)
	return cache
}

func TestCatalogCache_ConcurrentFirstAccess(t *testing.T) {
	var calls atomic.Int32
	cache := newTestCache(t)
	cache.discover = countingDiscover(&calls, 50*time.Millisecond)

	ep := Endpoint{Host: "boiler", Port: DefaultPort}
	const n = 20
	results := make([]*Catalog, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := cache.Get(context.Background(), ep)
			assert.NoError(t, err)
			results[i] = c
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	require.NotNil(t, results[0])
	for _, c := range results {
		assert.Same(t, results[0], c)
	}
}

func TestCatalogCache_EqualEndpointValuesShareCatalog(t *testing.T) {
	var calls atomic.Int32
	cache := newTestCache(t)
	cache.discover = countingDiscover(&calls, 0)

	a := Endpoint{Host: "boiler", Port: DefaultPort}
	b := Endpoint{Host: string([]byte("boiler")), Port: DefaultPort}

	first, err := cache.Get(context.Background(), a)
	require.NoError(t, err)
	second, err := cache.Get(context.Background(), b)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCatalogCache_EndpointChangeRebuilds(t *testing.T) {
	var calls atomic.Int32
	cache := newTestCache(t)
	cache.discover = countingDiscover(&calls, 0)

	a := Endpoint{Host: "boiler-a", Port: DefaultPort}
	b := Endpoint{Host: "boiler-b", Port: DefaultPort}

	catA, err := cache.Get(context.Background(), a)
	require.NoError(t, err)
	catB, err := cache.Get(context.Background(), b)
	require.NoError(t, err)

	assert.NotSame(t, catA, catB)
	assert.Equal(t, a, catA.Endpoint())
	assert.Equal(t, b, catB.Endpoint())
	assert.Equal(t, int32(2), calls.Load())
	assert.Same(t, catB, cache.Current())

	// A port change is an endpoint change too.
	_, err = cache.Get(context.Background(), Endpoint{Host: "boiler-b", Port: 3003})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCatalogCache_MissingCommandDoesNotRefresh(t *testing.T) {
	var calls atomic.Int32
	cache := newTestCache(t)
	cache.discover = countingDiscover(&calls, 0)

	ep := Endpoint{Host: "boiler", Port: DefaultPort}
	catalog, err := cache.Get(context.Background(), ep)
	require.NoError(t, err)

	_, ok := catalog.Lookup("doesNotExist")
	assert.False(t, ok)

	again, err := cache.Get(context.Background(), ep)
	require.NoError(t, err)
	assert.Same(t, catalog, again)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCatalogCache_BoundedRetry(t *testing.T) {
	var calls atomic.Int32
	cache := newTestCache(t, WithRetryPolicy(RetryPolicy{
		MaxAttempts: 3,
		InitialWait: time.Millisecond,
		MaxWait:     2 * time.Millisecond,
	}))
	cache.discover = func(context.Context, Endpoint) (*Catalog, error) {
		calls.Add(1)
		return nil, errors.Join(ErrConnection, errors.New("connection refused"))
	}

	_, err := cache.Get(context.Background(), Endpoint{Host: "boiler", Port: DefaultPort})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, int32(3), calls.Load())
	assert.Nil(t, cache.Current())
}

func TestCatalogCache_RecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	cache := newTestCache(t, WithRetryPolicy(RetryPolicy{
		MaxAttempts: 3,
		InitialWait: time.Millisecond,
		MaxWait:     time.Millisecond,
	}))
	cache.discover = func(_ context.Context, ep Endpoint) (*Catalog, error) {
		if calls.Add(1) == 1 {
			return nil, ErrConnection
		}
		return NewCatalog(ep, nil), nil
	}

	catalog, err := cache.Get(context.Background(), Endpoint{Host: "boiler", Port: DefaultPort})
	require.NoError(t, err)
	assert.NotNil(t, catalog)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCatalogCache_DiscoversOverTCP(t *testing.T) {
	d := newFakeDaemon(t, boilerReplies())
	cache := newTestCache(t)

	catalog, err := cache.Get(context.Background(), d.endpoint())
	require.NoError(t, err)
	assert.Equal(t, 6, catalog.Len())
}

func TestCatalogCache_WaiterHonoursItsDeadline(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	cache := newTestCache(t)
	cache.discover = func(_ context.Context, ep Endpoint) (*Catalog, error) {
		close(started)
		<-release
		return NewCatalog(ep, nil), nil
	}

	ep := Endpoint{Host: "boiler", Port: DefaultPort}
	first := make(chan error, 1)
	go func() {
		_, err := cache.Get(context.Background(), ep)
		first <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := cache.Get(ctx, ep)
	assert.ErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Nil(t, cache.Current())

	close(release)
	require.NoError(t, <-first)
	assert.NotNil(t, cache.Current())
}
