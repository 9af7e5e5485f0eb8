// Package dedupe collapses duplicate award offers.
package dedupe

// Option applies a configuration option to a Set.
type Option func(*Set)

// WithMaxSize caps the number of offers kept per carrier.
// If maxSize > 0: bounded, the oldest key is evicted first.
// If maxSize <= 0: unbounded.
func WithMaxSize(maxSize int) Option {
	return func(s *Set) {
		s.maxSize = maxSize
	}
}
