package catalog

import (
	"context"
	"strconv"
	"sync"

	"github.com/ermrest-eu/ermrestd/internal/apierr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// cacheMetrics is the subset of observability.Metrics the cache reports to,
// kept as an interface so this package doesn't import observability
// directly.
type cacheMetrics interface {
	RecordCatalogCacheHit(catalogID string)
	RecordCatalogCacheMiss(catalogID string)
	UpdateCatalogCacheSize(count int)
}

// Cache keeps one Model per catalog id, reintrospecting only when the
// catalog's data_version row in _ermrest_meta.catalogs has advanced past the
// cached snapshot. It holds models in process memory only and caches only the
// immutable model, never query results; there is no shared cache layer in
// front of it.
type Cache struct {
	pool    *pgxpool.Pool
	intro   *Introspector
	mu      sync.RWMutex
	models  map[int64]*Model
	metrics cacheMetrics
}

// NewCache wraps pool with a version-checked model cache.
func NewCache(pool *pgxpool.Pool) *Cache {
	return &Cache{
		pool:   pool,
		intro:  NewIntrospector(pool),
		models: map[int64]*Model{},
	}
}

// SetMetrics attaches a metrics sink that Get reports cache hits/misses and
// size to. Optional; a nil sink (the default) disables reporting.
func (c *Cache) SetMetrics(m cacheMetrics) {
	c.metrics = m
}

// Get returns the current Model for catalogID, reintrospecting the schema
// when the database's recorded data_version is newer than what's cached.
func (c *Cache) Get(ctx context.Context, catalogID int64) (*Model, error) {
	version, err := c.currentVersion(ctx, catalogID)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	cached, ok := c.models[catalogID]
	c.mu.RUnlock()
	if ok && cached.Version == version {
		if c.metrics != nil {
			c.metrics.RecordCatalogCacheHit(strconv.FormatInt(catalogID, 10))
		}
		return cached, nil
	}

	if c.metrics != nil {
		c.metrics.RecordCatalogCacheMiss(strconv.FormatInt(catalogID, 10))
	}

	model, err := c.intro.Load(ctx, catalogID, version)
	if err != nil {
		return nil, apierr.Wrap(apierr.ServiceUnavailable, err, "failed to introspect catalog %d", catalogID)
	}

	c.mu.Lock()
	c.models[catalogID] = model
	size := len(c.models)
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.UpdateCatalogCacheSize(size)
	}
	return model, nil
}

// Invalidate drops the cached model for catalogID, forcing the next Get to
// reintrospect regardless of the recorded version (called by the entity write
// and delete handlers after their transaction commits).
func (c *Cache) Invalidate(catalogID int64) {
	c.mu.Lock()
	delete(c.models, catalogID)
	c.mu.Unlock()
}

func (c *Cache) currentVersion(ctx context.Context, catalogID int64) (int64, error) {
	var version int64
	err := c.pool.QueryRow(ctx, `SELECT data_version FROM _ermrest_meta.catalogs WHERE id = $1`, catalogID).Scan(&version)
	if err == pgx.ErrNoRows {
		return 0, apierr.New(apierr.NotFound, "no such catalog %d", catalogID)
	}
	if err != nil {
		return 0, apierr.Wrap(apierr.ServiceUnavailable, err, "failed to read catalog data version")
	}
	return version, nil
}
