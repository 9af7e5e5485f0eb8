package service

import (
	"time"

	"github.com/okian/milepost/internal/adapters/mq/worker"
	"github.com/okian/milepost/internal/adapters/repository"
	"github.com/okian/milepost/internal/config"
	"github.com/okian/milepost/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration. Defaults to config.New().
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFetcher replaces the award client used by the scheduler.
func WithFetcher(f worker.Fetcher) Option {
	return func(s *Service) {
		if f != nil {
			s.fetcher = f
		}
	}
}

// WithAlternatesSource replaces the cash-fare client.
func WithAlternatesSource(src AlternatesSource) Option {
	return func(s *Service) {
		if src != nil {
			s.alternates = src
		}
	}
}

// WithCacheBackend uses b instead of opening the configured backend.
func WithCacheBackend(b repository.Backend) Option {
	return func(s *Service) {
		if b != nil {
			s.cacheBackend = b
		}
	}
}

// WithClock sets the clock used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
