package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modelgate/internal/core"
	"modelgate/internal/storage"
)

// SQLStore stores model records in SQLite or MySQL through database/sql.
// Relational backings never evict: staleness is inferred from the created
// timestamp by the discovery service, so the ttl argument is ignored.
type SQLStore struct {
	db      *sql.DB
	dialect string

	// storage is set when this store owns the underlying connection.
	storage storage.Storage
}

// NewSQLStore creates the model_records table if needed. dialect is
// storage.TypeSQLite or storage.TypeMySQL.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	ddl := `
		CREATE TABLE IF NOT EXISTS model_records (
			id VARCHAR(255) PRIMARY KEY,
			object VARCHAR(32) NOT NULL,
			owned_by TEXT NOT NULL,
			created BIGINT NOT NULL
		)
	`
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("failed to create model_records table: %w", err)
	}

	return &SQLStore{db: db, dialect: dialect}, nil
}

// Put upserts a record by model id.
func (s *SQLStore) Put(ctx context.Context, rec core.Model, _ time.Duration) error {
	var query string
	switch s.dialect {
	case storage.TypeMySQL:
		query = `
			INSERT INTO model_records (id, object, owned_by, created)
			VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE object = VALUES(object), owned_by = VALUES(owned_by), created = VALUES(created)
		`
	default:
		query = `
			INSERT INTO model_records (id, object, owned_by, created)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET object = excluded.object, owned_by = excluded.owned_by, created = excluded.created
		`
	}

	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.Object, rec.OwnedBy, rec.Created); err != nil {
		return fmt.Errorf("upsert model record: %w", err)
	}
	return nil
}

// Get returns a record by id.
func (s *SQLStore) Get(ctx context.Context, id string) (*core.Model, error) {
	var rec core.Model
	err := s.db.QueryRowContext(ctx,
		"SELECT id, object, owned_by, created FROM model_records WHERE id = ?", id,
	).Scan(&rec.ID, &rec.Object, &rec.OwnedBy, &rec.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query model record: %w", err)
	}
	return &rec, nil
}

// Scan returns every stored record.
func (s *SQLStore) Scan(ctx context.Context) ([]core.Model, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, object, owned_by, created FROM model_records")
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

// Close releases the underlying connection when this store owns it.
func (s *SQLStore) Close() error {
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}
