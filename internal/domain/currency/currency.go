// Package currency converts co-pay amounts into a single base currency so
// award totals can be compared.
package currency

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultBase is the base currency when none is configured.
const DefaultBase = "USD"

// Converter turns an amount in some currency into the base currency.
type Converter interface {
	ToBase(amount float64, currency string) (float64, error)
	Base() string
}

// StaticConverter converts with a fixed rate table. Rates are expressed as
// base units per one unit of the foreign currency (AUD: 0.65).
type StaticConverter struct {
	mu    sync.RWMutex
	base  string
	rates map[string]float64
}

// NewStaticConverter builds a converter. Codes are upper-cased; the base
// currency always converts at 1.
func NewStaticConverter(base string, rates map[string]float64) (*StaticConverter, error) {
	base = normalize(base)
	if base == "" {
		base = DefaultBase
	}
	c := &StaticConverter{base: base, rates: make(map[string]float64, len(rates)+1)}
	for code, rate := range rates {
		if err := c.SetRate(code, rate); err != nil {
			return nil, err
		}
	}
	c.rates[base] = 1
	return c, nil
}

// SetRate installs or replaces the rate for a currency.
func (c *StaticConverter) SetRate(code string, rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("%w: %s=%v", ErrInvalidRate, code, rate)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates[normalize(code)] = rate
	return nil
}

// Base returns the base currency code.
func (c *StaticConverter) Base() string { return c.base }

// ToBase converts amount. An empty currency is treated as the base.
func (c *StaticConverter) ToBase(amount float64, code string) (float64, error) {
	code = normalize(code)
	if code == "" {
		return amount, nil
	}
	c.mu.RLock()
	rate, ok := c.rates[code]
	c.mu.RUnlock()
	if !ok {
		return amount, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
	}
	return amount * rate, nil
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
