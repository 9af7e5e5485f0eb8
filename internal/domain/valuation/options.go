package valuation

import (
	"time"

	"github.com/okian/milepost/internal/domain/currency"
	"github.com/okian/milepost/pkg/logger"
)

// Default valuation parameters.
const (
	DefaultPerCentValue       = 0.015
	DefaultCopayWeight        = 100
	DefaultStrikeThroughRatio = 0.90
	DefaultSaveBadgeRatio     = 0.85
	DefaultTimeWindow         = 300 * time.Minute
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithPerCentValue sets the cash value of one mile.
func WithPerCentValue(v float64) Option {
	return func(e *Engine) {
		if v > 0 {
			e.perCentValue = v
		}
	}
}

// WithCopayWeight sets the multiplier applied to co-pay when comparing offers
// by mileage.
func WithCopayWeight(w float64) Option {
	return func(e *Engine) {
		if w > 0 {
			e.copayWeight = w
		}
	}
}

// WithThresholds sets the strike-through and save-badge ratios of the cash
// price. Ratios outside (0, 1] are ignored.
func WithThresholds(strikeThrough, saveBadge float64) Option {
	return func(e *Engine) {
		if strikeThrough > 0 && strikeThrough <= 1 {
			e.strikeThrough = strikeThrough
		}
		if saveBadge > 0 && saveBadge <= 1 {
			e.saveBadge = saveBadge
		}
	}
}

// WithTimeWindow sets the best-match departure window.
func WithTimeWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithConverter sets the currency converter used for co-pays and cash prices.
func WithConverter(c currency.Converter) Option {
	return func(e *Engine) {
		if c != nil {
			e.converter = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
