package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/okian/milepost/pkg/logger"
	"github.com/okian/milepost/pkg/metrics"
)

// Loader computes the results for a cache miss.
type Loader func(ctx context.Context) (map[string]json.RawMessage, error)

// Cache is a TTL cache over a Backend. Entries expire a fixed time after
// they are written and are removed lazily when a read finds them expired.
type Cache struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	logger  logger.Logger
}

// NewCache creates a cache. The default backend is in-memory.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		backend: NewMemoryBackend(),
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  logger.Get().Named("request_cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the cached results for params. With a non-empty subKey only
// that sub-entry is returned and a missing sub-entry is a miss.
func (c *Cache) Get(ctx context.Context, params any, subKey string) (map[string]json.RawMessage, bool, error) {
	key, err := Key(params)
	if err != nil {
		return nil, false, err
	}

	start := time.Now()
	e, ok, err := c.backend.Load(ctx, key)
	c.observe("load", start)
	if err != nil {
		metrics.RecordErrorByComponent("request_cache", "load")
		return nil, false, errors.Mark(errors.Wrapf(err, "load %s", key), ErrBackend)
	}
	if !ok {
		metrics.RecordCacheRequest(metrics.CacheMiss)
		return nil, false, nil
	}

	if e.Expired(c.now(), c.ttl) {
		metrics.RecordCacheRequest(metrics.CacheExpired)
		if err := c.backend.Delete(ctx, key); err != nil {
			c.logger.Warn(ctx, "failed to delete expired entry", logger.String("key", key), logger.Error(err))
		}
		return nil, false, nil
	}

	if subKey == "" {
		metrics.RecordCacheRequest(metrics.CacheHit)
		return cloneResults(e.Results), true, nil
	}
	sub, ok := e.Results[subKey]
	if !ok {
		metrics.RecordCacheRequest(metrics.CacheMiss)
		return nil, false, nil
	}
	metrics.RecordCacheRequest(metrics.CacheHit)
	return map[string]json.RawMessage{subKey: append(json.RawMessage(nil), sub...)}, true, nil
}

// Set stores results for params with a fresh timestamp, replacing any
// existing entry.
func (c *Cache) Set(ctx context.Context, params any, results map[string]json.RawMessage) error {
	key, err := Key(params)
	if err != nil {
		return err
	}
	now := c.now()
	if results == nil {
		results = map[string]json.RawMessage{}
	}
	start := time.Now()
	err = c.backend.Save(ctx, Entry{Key: key, CreatedAt: now, ExpiresAt: now.Add(c.ttl), Results: results})
	c.observe("save", start)
	if err != nil {
		metrics.RecordErrorByComponent("request_cache", "save")
		return errors.Mark(errors.Wrapf(err, "save %s", key), ErrBackend)
	}
	return nil
}

// Delete removes the entry for params.
func (c *Cache) Delete(ctx context.Context, params any) error {
	key, err := Key(params)
	if err != nil {
		return err
	}
	if err := c.backend.Delete(ctx, key); err != nil {
		return errors.Mark(errors.Wrapf(err, "delete %s", key), ErrBackend)
	}
	return nil
}

// GetOrLoad reads through the cache. On a miss the loader runs and its
// results are stored before the requested view is returned. A backend write
// failure is logged and the loaded results are still returned.
func (c *Cache) GetOrLoad(ctx context.Context, params any, subKey string, load Loader) (map[string]json.RawMessage, error) {
	if res, ok, err := c.Get(ctx, params, subKey); err != nil {
		c.logger.Warn(ctx, "cache read failed, loading", logger.Error(err))
	} else if ok {
		return res, nil
	}

	results, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, params, results); err != nil {
		c.logger.Warn(ctx, "cache write failed", logger.Error(err))
	}
	if subKey == "" {
		return results, nil
	}
	if sub, ok := results[subKey]; ok {
		return map[string]json.RawMessage{subKey: sub}, nil
	}
	return map[string]json.RawMessage{}, nil
}

func (c *Cache) observe(op string, start time.Time) {
	metrics.RecordCacheLatency(c.backend.Name(), op, float64(time.Since(start).Microseconds())/1000)
}
