// Package repository caches expensive derived search results keyed on
// normalized request parameters.
package repository

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one cached result set. Results are keyed by sub-query, for
// example a return airport code.
type Entry struct {
	Key       string
	CreatedAt time.Time
	ExpiresAt time.Time
	Results   map[string]json.RawMessage
}

// Expired reports whether the entry is older than ttl at now.
func (e Entry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) > ttl
}

// cloneResults copies results so callers never share bytes with a backend.
func cloneResults(results map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(results))
	for k, v := range results {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Backend persists entries by key. ExpiresAt is informational; expiry is
// always decided by the cache from CreatedAt.
type Backend interface {
	// Load returns the entry for key and whether it exists.
	Load(ctx context.Context, key string) (Entry, bool, error)
	// Save stores e, replacing any entry with the same key.
	Save(ctx context.Context, e Entry) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Name identifies the backend in logs and metrics.
	Name() string
}
