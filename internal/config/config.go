// Package config defines service configuration structures and loading hooks.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	Scheduler SchedulerConfig `koanf:"scheduler"`
	Award     AwardConfig     `koanf:"award"`
	Fares     FaresConfig     `koanf:"fares"`
	Cache     CacheConfig     `koanf:"cache"`
	Valuation ValuationConfig `koanf:"valuation"`
	Currency  CurrencyConfig  `koanf:"currency"`
}

// SchedulerConfig tunes batch dispatch.
type SchedulerConfig struct {
	BatchSize      int `koanf:"batch_size"`
	BatchDelayMS   int `koanf:"batch_delay_ms"`
	MaxRetries     int `koanf:"max_retries"`
	RetryInitialMS int `koanf:"retry_initial_ms"`
}

// AwardConfig points at the streaming award provider.
type AwardConfig struct {
	Endpoint      string  `koanf:"endpoint"`
	TimeoutMS     int     `koanf:"timeout_ms"`
	RatePerSecond float64 `koanf:"rate_per_second"`
	MaxLineBytes  int     `koanf:"max_line_bytes"`
}

// FaresConfig points at the cash-fare provider. An empty endpoint disables
// alternate-airport lookups.
type FaresConfig struct {
	Endpoint  string `koanf:"endpoint"`
	TimeoutMS int    `koanf:"timeout_ms"`
}

// CacheConfig selects the request cache backend.
type CacheConfig struct {
	// Backend is one of memory, sqlite, postgres, mongo.
	Backend       string `koanf:"backend"`
	DSN           string `koanf:"dsn"`
	MongoDatabase string `koanf:"mongo_database"`
	TTLMinutes    int    `koanf:"ttl_minutes"`
}

// ValuationConfig holds the mileage valuation knobs.
type ValuationConfig struct {
	PerCentValue       float64 `koanf:"per_cent_value"`
	CopayWeight        float64 `koanf:"copay_weight"`
	StrikeThroughRatio float64 `koanf:"strike_through_ratio"`
	SaveBadgeRatio     float64 `koanf:"save_badge_ratio"`
	TimeWindowMinutes  int     `koanf:"time_window_minutes"`
}

// CurrencyConfig is the static conversion table. Rates convert one unit of
// the keyed currency into Base.
type CurrencyConfig struct {
	Base  string             `koanf:"base"`
	Rates map[string]float64 `koanf:"rates"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Addr:      ":9080",
		Scheduler: SchedulerConfig{
			BatchSize:      2,
			BatchDelayMS:   500,
			MaxRetries:     0,
			RetryInitialMS: 250,
		},
		Award: AwardConfig{
			Endpoint:      "http://localhost:9090/awards/search",
			TimeoutMS:     30_000,
			RatePerSecond: 4,
			MaxLineBytes:  1 << 20,
		},
		Fares: FaresConfig{
			TimeoutMS: 20_000,
		},
		Cache: CacheConfig{
			Backend:       "memory",
			MongoDatabase: "milepost",
			TTLMinutes:    30,
		},
		Valuation: ValuationConfig{
			PerCentValue:       0.015,
			CopayWeight:        100,
			StrikeThroughRatio: 0.90,
			SaveBadgeRatio:     0.85,
			TimeWindowMinutes:  300,
		},
		Currency: CurrencyConfig{
			Base:  "USD",
			Rates: map[string]float64{"AUD": 0.65},
		},
	}
}

// Validate checks ranges and normalizes codes in place.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if c.Scheduler.BatchSize < 1 {
		errs = append(errs, errors.Newf("scheduler.batch_size must be positive, got %d", c.Scheduler.BatchSize))
	}
	if c.Scheduler.BatchDelayMS < 0 || c.Scheduler.MaxRetries < 0 || c.Scheduler.RetryInitialMS < 0 {
		errs = append(errs, errors.New("scheduler durations and retries must not be negative"))
	}
	if strings.TrimSpace(c.Award.Endpoint) == "" {
		errs = append(errs, errors.New("award.endpoint must not be empty"))
	}
	if c.Cache.TTLMinutes < 1 {
		errs = append(errs, errors.Newf("cache.ttl_minutes must be positive, got %d", c.Cache.TTLMinutes))
	}
	switch c.Cache.Backend {
	case "memory":
	case "sqlite", "postgres", "mongo":
		if c.Cache.DSN == "" {
			errs = append(errs, errors.Newf("cache.dsn is required for the %s backend", c.Cache.Backend))
		}
	default:
		errs = append(errs, errors.Newf("unknown cache.backend %q", c.Cache.Backend))
	}
	if !validRatio(c.Valuation.StrikeThroughRatio) || !validRatio(c.Valuation.SaveBadgeRatio) {
		errs = append(errs, errors.New("valuation ratios must be in (0, 1]"))
	}
	if c.Valuation.PerCentValue <= 0 || c.Valuation.CopayWeight < 0 || c.Valuation.TimeWindowMinutes < 0 {
		errs = append(errs, errors.New("valuation weights must be positive"))
	}

	c.Currency.Base = strings.ToUpper(strings.TrimSpace(c.Currency.Base))
	rates := make(map[string]float64, len(c.Currency.Rates))
	for code, r := range c.Currency.Rates {
		if r <= 0 {
			errs = append(errs, errors.Newf("currency rate for %s must be positive", code))
			continue
		}
		rates[strings.ToUpper(code)] = r
	}
	c.Currency.Rates = rates

	if len(errs) > 0 {
		return errors.Mark(errors.Join(errs...), ErrInvalidConfig)
	}
	return nil
}

func validRatio(r float64) bool { return r > 0 && r <= 1 }

// BatchDelay is the pause between batches.
func (s SchedulerConfig) BatchDelay() time.Duration {
	return time.Duration(s.BatchDelayMS) * time.Millisecond
}

// RetryInitial is the first retry backoff interval.
func (s SchedulerConfig) RetryInitial() time.Duration {
	return time.Duration(s.RetryInitialMS) * time.Millisecond
}

// Timeout bounds one award stream.
func (a AwardConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMS) * time.Millisecond
}

// Timeout bounds one cash-fare call.
func (f FaresConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutMS) * time.Millisecond
}

// TTL is the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// TimeWindow is the best-match departure window.
func (v ValuationConfig) TimeWindow() time.Duration {
	return time.Duration(v.TimeWindowMinutes) * time.Minute
}
