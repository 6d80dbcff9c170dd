package assistants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"modelgate/internal/storage"
)

// PostgresStore persists entities in PostgreSQL using the same table shape
// as the database/sql backing: indexed lookup columns plus a JSONB payload.
type PostgresStore struct {
	pool    *pgxpool.Pool
	storage storage.Storage
}

// NewPostgresStore creates the entity tables if needed.
func NewPostgresStore(ctx context.Context, st storage.Storage) (*PostgresStore, error) {
	pool := st.PostgreSQLPool()
	if pool == nil {
		return nil, fmt.Errorf("postgresql pool is required")
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS assistant_records (
			id TEXT PRIMARY KEY,
			created_at BIGINT NOT NULL,
			payload JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS thread_records (
			id TEXT PRIMARY KEY,
			created_at BIGINT NOT NULL,
			payload JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS message_records (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			payload JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_records (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			payload JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_records_thread ON message_records (thread_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_run_records_thread ON run_records (thread_id, created_at)`,
	}
	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create assistants tables: %w", err)
		}
	}

	return &PostgresStore{pool: pool, storage: st}, nil
}

func (s *PostgresStore) insert(ctx context.Context, table, id, threadID string, createdAt int64, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	if threadID != "" {
		_, err = s.pool.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s (id, thread_id, created_at, payload) VALUES ($1, $2, $3, $4)", table),
			id, threadID, createdAt, payload)
	} else {
		_, err = s.pool.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s (id, created_at, payload) VALUES ($1, $2, $3)", table),
			id, createdAt, payload)
	}
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func (s *PostgresStore) update(ctx context.Context, table, id, threadID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	query := fmt.Sprintf("UPDATE %s SET payload = $1 WHERE id = $2", table)
	args := []any{payload, id}
	if threadID != "" {
		query += " AND thread_id = $3"
		args = append(args, threadID)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) get(ctx context.Context, table, id, threadID string, out any) error {
	query := fmt.Sprintf("SELECT payload FROM %s WHERE id = $1", table)
	args := []any{id}
	if threadID != "" {
		query += " AND thread_id = $2"
		args = append(args, threadID)
	}

	var payload []byte
	err := s.pool.QueryRow(ctx, query, args...).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("query %s: %w", table, err)
	}
	return json.Unmarshal(payload, out)
}

func (s *PostgresStore) anchor(ctx context.Context, table, id string) (int64, error) {
	var createdAt int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT created_at FROM %s WHERE id = $1", table), id,
	).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("resolve cursor: %w", err)
	}
	return createdAt, nil
}

func (s *PostgresStore) list(ctx context.Context, table, threadID string, page Page) ([][]byte, bool, error) {
	page = page.normalized()

	query := fmt.Sprintf("SELECT payload FROM %s WHERE true", table)
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if threadID != "" {
		query += " AND thread_id = " + arg(threadID)
	}

	gt, lt := ">", "<"
	if page.Order == "desc" {
		gt, lt = "<", ">"
	}

	if page.After != "" {
		at, err := s.anchor(ctx, table, page.After)
		if err != nil {
			return nil, false, err
		}
		p1, p2, p3 := arg(at), arg(at), arg(page.After)
		query += fmt.Sprintf(" AND (created_at %s %s OR (created_at = %s AND id %s %s))", gt, p1, p2, gt, p3)
	}
	if page.Before != "" {
		at, err := s.anchor(ctx, table, page.Before)
		if err != nil {
			return nil, false, err
		}
		p1, p2, p3 := arg(at), arg(at), arg(page.Before)
		query += fmt.Sprintf(" AND (created_at %s %s OR (created_at = %s AND id %s %s))", lt, p1, p2, lt, p3)
	}

	dir := "ASC"
	if page.Order == "desc" {
		dir = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY created_at %s, id %s LIMIT %s", dir, dir, arg(page.Limit+1))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var payloads [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, false, fmt.Errorf("scan %s row: %w", table, err)
		}
		payloads = append(payloads, payload)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(payloads) > page.Limit
	if hasMore {
		payloads = payloads[:page.Limit]
	}
	return payloads, hasMore, nil
}

func (s *PostgresStore) delete(ctx context.Context, table, id string) error {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateAssistant(ctx context.Context, a Assistant) error {
	return s.insert(ctx, "assistant_records", a.ID, "", a.CreatedAt, a)
}

func (s *PostgresStore) GetAssistant(ctx context.Context, id string) (*Assistant, error) {
	var a Assistant
	if err := s.get(ctx, "assistant_records", id, "", &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) ListAssistants(ctx context.Context, page Page) ([]Assistant, bool, error) {
	payloads, hasMore, err := s.list(ctx, "assistant_records", "", page)
	if err != nil {
		return nil, false, err
	}
	out := make([]Assistant, 0, len(payloads))
	for _, p := range payloads {
		var a Assistant
		if err := json.Unmarshal(p, &a); err != nil {
			return nil, false, err
		}
		out = append(out, a)
	}
	return out, hasMore, nil
}

func (s *PostgresStore) UpdateAssistant(ctx context.Context, a Assistant) error {
	return s.update(ctx, "assistant_records", a.ID, "", a)
}

func (s *PostgresStore) DeleteAssistant(ctx context.Context, id string) error {
	return s.delete(ctx, "assistant_records", id)
}

func (s *PostgresStore) CreateThread(ctx context.Context, th Thread) error {
	return s.insert(ctx, "thread_records", th.ID, "", th.CreatedAt, th)
}

func (s *PostgresStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	var th Thread
	if err := s.get(ctx, "thread_records", id, "", &th); err != nil {
		return nil, err
	}
	return &th, nil
}

func (s *PostgresStore) ListThreads(ctx context.Context, page Page) ([]Thread, bool, error) {
	payloads, hasMore, err := s.list(ctx, "thread_records", "", page)
	if err != nil {
		return nil, false, err
	}
	out := make([]Thread, 0, len(payloads))
	for _, p := range payloads {
		var th Thread
		if err := json.Unmarshal(p, &th); err != nil {
			return nil, false, err
		}
		out = append(out, th)
	}
	return out, hasMore, nil
}

func (s *PostgresStore) UpdateThread(ctx context.Context, th Thread) error {
	return s.update(ctx, "thread_records", th.ID, "", th)
}

func (s *PostgresStore) DeleteThread(ctx context.Context, id string) error {
	if err := s.delete(ctx, "thread_records", id); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM message_records WHERE thread_id = $1", id); err != nil {
		return fmt.Errorf("cascade delete messages: %w", err)
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM run_records WHERE thread_id = $1", id); err != nil {
		return fmt.Errorf("cascade delete runs: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateMessage(ctx context.Context, m Message) error {
	return s.insert(ctx, "message_records", m.ID, m.ThreadID, m.CreatedAt, m)
}

func (s *PostgresStore) GetMessage(ctx context.Context, threadID, id string) (*Message, error) {
	var m Message
	if err := s.get(ctx, "message_records", id, threadID, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, threadID string, page Page) ([]Message, bool, error) {
	payloads, hasMore, err := s.list(ctx, "message_records", threadID, page)
	if err != nil {
		return nil, false, err
	}
	out := make([]Message, 0, len(payloads))
	for _, p := range payloads {
		var m Message
		if err := json.Unmarshal(p, &m); err != nil {
			return nil, false, err
		}
		out = append(out, m)
	}
	return out, hasMore, nil
}

func (s *PostgresStore) UpdateMessage(ctx context.Context, m Message) error {
	return s.update(ctx, "message_records", m.ID, m.ThreadID, m)
}

func (s *PostgresStore) CreateRun(ctx context.Context, r Run) error {
	return s.insert(ctx, "run_records", r.ID, r.ThreadID, r.CreatedAt, r)
}

func (s *PostgresStore) GetRun(ctx context.Context, threadID, id string) (*Run, error) {
	var r Run
	if err := s.get(ctx, "run_records", id, threadID, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, threadID string, page Page) ([]Run, bool, error) {
	payloads, hasMore, err := s.list(ctx, "run_records", threadID, page)
	if err != nil {
		return nil, false, err
	}
	out := make([]Run, 0, len(payloads))
	for _, p := range payloads {
		var r Run
		if err := json.Unmarshal(p, &r); err != nil {
			return nil, false, err
		}
		out = append(out, r)
	}
	return out, hasMore, nil
}

func (s *PostgresStore) UpdateRun(ctx context.Context, r Run) error {
	return s.update(ctx, "run_records", r.ID, r.ThreadID, r)
}

// Close releases the underlying storage connection.
func (s *PostgresStore) Close() error {
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}
