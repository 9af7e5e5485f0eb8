package award

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/milepost/pkg/logger"
)

// Default client configuration constants.
const (
	defaultTimeout      = 30 * time.Second
	defaultRatePerSec   = 4
	defaultMaxLineBytes = 1 << 20
	defaultPassengers   = 1
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The client is never modified; a
// timeout set with WithTimeout applies to a copy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds a whole stream, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit limits how often streams are opened. A non-positive rate
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMaxLineBytes caps the size of one record.
func WithMaxLineBytes(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxLineBytes = n
		}
	}
}

// WithPassengers sets the passenger count sent with every request.
func WithPassengers(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.passengers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
