// Package worker schedules batched award enrichment of itineraries.
package worker

import (
	"time"

	"github.com/okian/milepost/internal/adapters/mq/queue"
	"github.com/okian/milepost/pkg/logger"
)

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithBatchSize sets how many items one fetch covers.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithBatchDelay sets the pause between batches while work remains.
func WithBatchDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.batchDelay = d
		}
	}
}

// WithRetry retries a failed batch up to maxRetries times with exponential
// backoff starting at initial. Zero disables retries.
func WithRetry(maxRetries int, initial time.Duration) Option {
	return func(s *Scheduler) {
		if maxRetries >= 0 {
			s.maxRetries = maxRetries
		}
		if initial > 0 {
			s.retryInitial = initial
		}
	}
}

// WithOnOffers sets the publish callback for decoded offers.
func WithOnOffers(fn OffersFunc) Option {
	return func(s *Scheduler) {
		s.onOffers = fn
	}
}

// WithOnProgress sets the callback invoked whenever progress changes.
func WithOnProgress(fn ProgressFunc) Option {
	return func(s *Scheduler) {
		s.onProgress = fn
	}
}

// WithOnReset sets the hook run whenever a new session begins. It runs
// while deliveries are held off and must not call back into the scheduler.
func WithOnReset(fn ResetFunc) Option {
	return func(s *Scheduler) {
		s.onReset = fn
	}
}

// WithQueue replaces the work queue.
func WithQueue(q queue.Queue) Option {
	return func(s *Scheduler) {
		if q != nil {
			s.queue = q
		}
	}
}

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}
