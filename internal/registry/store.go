// Package registry implements the model discovery registry: a TTL'd
// key-value store of model-presence records, the discovery service that
// filters them by freshness, and the heartbeat publisher that keeps them
// alive from backend processes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"modelgate/internal/core"
	"modelgate/internal/storage"
)

// ErrNotFound indicates a requested model record was not found.
var ErrNotFound = errors.New("model record not found")

// Store defines persistence operations for model-presence records.
// Put is idempotent last-writer-wins keyed by model id. Backings may evict
// records after ttl (embedded cache, redis) or retain them indefinitely and
// leave freshness filtering to the discovery service (relational).
// Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, rec core.Model, ttl time.Duration) error
	Get(ctx context.Context, id string) (*core.Model, error)
	Scan(ctx context.Context) ([]core.Model, error)
	Close() error
}

// Open selects and constructs a store backing from the registry URL scheme:
//
//	diskcache://, local://, file://, fs://  embedded TTL cache, path optional
//	redis://                                shared cache with native TTL
//	sqlite://, mysql://                     relational via database/sql
//	postgres://, postgresql://              relational via pgx
//
// An unrecognized scheme fails fast at construction.
func Open(ctx context.Context, rawURL string) (Store, error) {
	scheme, rest, err := storage.SplitScheme(rawURL)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case "diskcache", "local", "file", "fs":
		return NewMemoryStore(rest), nil
	case "redis", "rediss":
		return NewRedisStore(rawURL)
	case "sqlite", "mysql":
		st, err := storage.Open(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		sqlStore, err := NewSQLStore(st.SQLDB(), st.Type())
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		sqlStore.storage = st
		return sqlStore, nil
	case "postgres", "postgresql":
		st, err := storage.Open(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		pgStore, err := NewPostgresStore(ctx, st.PostgreSQLPool())
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		pgStore.storage = st
		return pgStore, nil
	default:
		return nil, fmt.Errorf("unknown registry scheme: %s (valid: diskcache, local, file, fs, redis, sqlite, mysql, postgres)", scheme)
	}
}
