package repository

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// Backend kinds accepted by OpenBackend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// BackendConfig selects and locates a backend.
type BackendConfig struct {
	Kind          string
	DSN           string
	MongoDatabase string
}

// OpenBackend builds the configured backend. The returned close function
// releases its connections.
func OpenBackend(ctx context.Context, cfg BackendConfig) (Backend, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", BackendMemory:
		return NewMemoryBackend(), noop, nil
	case BackendSQLite, BackendPostgres:
		db, err := OpenSQL(cfg.Kind, cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		b, err := NewSQLBackend(ctx, db)
		if err != nil {
			return nil, noop, err
		}
		return b, func(context.Context) error { return b.Close() }, nil
	case BackendMongo:
		client, err := NewMongoClient(ctx, cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		name := cfg.MongoDatabase
		if name == "" {
			name = "milepost"
		}
		b, err := NewMongoBackend(ctx, client.Database(name))
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, noop, err
		}
		return b, client.Disconnect, nil
	default:
		return nil, noop, errors.Mark(errors.Newf("cache backend %q", cfg.Kind), ErrUnknownBackend)
	}
}
