package repository

import (
	"time"

	"github.com/okian/milepost/pkg/logger"
)

// DefaultTTL is how long a cached result set stays valid.
const DefaultTTL = 30 * time.Minute

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithTTL sets the entry lifetime measured from write.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithBackend sets the storage backend.
func WithBackend(b Backend) Option {
	return func(c *Cache) {
		if b != nil {
			c.backend = b
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}
