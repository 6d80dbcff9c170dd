package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"modelgate/internal/core"
	"modelgate/internal/storage"
)

// PostgresStore stores model records in PostgreSQL. Like the other
// relational backing it never evicts; the discovery service filters by age.
type PostgresStore struct {
	pool *pgxpool.Pool

	storage storage.Storage
}

// NewPostgresStore creates the model_records table if needed.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS model_records (
			id TEXT PRIMARY KEY,
			object TEXT NOT NULL,
			owned_by TEXT NOT NULL,
			created BIGINT NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create model_records table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Put upserts a record by model id.
func (s *PostgresStore) Put(ctx context.Context, rec core.Model, _ time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO model_records (id, object, owned_by, created)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET object = $2, owned_by = $3, created = $4
	`, rec.ID, rec.Object, rec.OwnedBy, rec.Created)
	if err != nil {
		return fmt.Errorf("upsert model record: %w", err)
	}
	return nil
}

// Get returns a record by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*core.Model, error) {
	var rec core.Model
	err := s.pool.QueryRow(ctx,
		"SELECT id, object, owned_by, created FROM model_records WHERE id = $1", id,
	).Scan(&rec.ID, &rec.Object, &rec.OwnedBy, &rec.Created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query model record: %w", err)
	}
	return &rec, nil
}

// Scan returns every stored record.
func (s *PostgresStore) Scan(ctx context.Context) ([]core.Model, error) {
	rows, err := s.pool.Query(ctx, "SELECT id, object, owned_by, created FROM model_records")
	if err != nil {
		return nil, fmt.Errorf("scan model records: %w", err)
	}
	defer rows.Close()

	var out []core.Model
	for rows.Next() {
		var rec core.Model
		if err := rows.Scan(&rec.ID, &rec.Object, &rec.OwnedBy, &rec.Created); err != nil {
			return nil, fmt.Errorf("scan model record row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the underlying pool when this store owns it.
func (s *PostgresStore) Close() error {
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}
