package vcontrold

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// CatalogCache holds the catalog of one endpoint at a time.
//
// The first Get for an endpoint runs discovery while holding a one-slot
// semaphore, so concurrent first access performs one discovery and every
// caller receives the same *Catalog. Callers waiting for the slot give up
// when their own context ends. The catalog is replaced only when Get is called with a
// different endpoint value; a command missing from it never triggers a
// refresh.
type CatalogCache struct {
	sem chan struct{}

	mu      sync.Mutex
	catalog *Catalog

	retry    RetryPolicy
	logger   *slog.Logger
	discover func(ctx context.Context, ep Endpoint) (*Catalog, error)
}

// NewCatalogCache returns an empty cache. Discovery uses the connection
// settings and retry policy from opts.
func NewCatalogCache(opts ...ClientOption) (*CatalogCache, error) {
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("invalid option: %w", err)
	}
	return newCatalogCache(cfg), nil
}

func newCatalogCache(cfg *clientConfig) *CatalogCache {
	return &CatalogCache{
		sem:    make(chan struct{}, 1),
		retry:  cfg.retry,
		logger: cfg.logger,
		discover: func(ctx context.Context, ep Endpoint) (*Catalog, error) {
			return discoverCatalog(ctx, ep, cfg)
		},
	}
}

// Get returns the catalog for ep, discovering it if the cache is empty or
// holds another endpoint. Discovery is retried per the retry policy; when
// it fails the cache is left empty.
func (c *CatalogCache) Get(ctx context.Context, ep Endpoint) (*Catalog, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for catalog: %w", ErrConnection, ctx.Err())
	}
	defer func() { <-c.sem }()

	current := c.Current()
	if current != nil && current.Endpoint() == ep {
		return current, nil
	}

	if current != nil && c.logger != nil {
		c.logger.Info("endpoint changed, rebuilding catalog",
			"old", current.Endpoint().String(), "new", ep.String())
	}
	c.store(nil)

	attempt := 0
	var catalog *Catalog
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		attempt++
		var err error
		catalog, err = c.discover(ctx, ep)
		if err != nil && c.logger != nil {
			c.logger.Warn("catalog discovery failed", "endpoint", ep.String(), "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	c.store(catalog)
	return catalog, nil
}

func (c *CatalogCache) store(catalog *Catalog) {
	c.mu.Lock()
	c.catalog = catalog
	c.mu.Unlock()
}

// Current returns the cached catalog, or nil if none has been built.
func (c *CatalogCache) Current() *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog
}
