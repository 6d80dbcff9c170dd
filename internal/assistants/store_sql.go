package assistants

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"modelgate/internal/storage"
)

// SQLStore persists entities in SQLite or MySQL. Each entity lives in its
// own table as a JSON payload column next to the indexed columns used for
// lookup and cursor pagination (id, thread_id, created_at).
type SQLStore struct {
	db      *sql.DB
	storage storage.Storage
}

// NewSQLStore creates the entity tables if needed.
func NewSQLStore(ctx context.Context, st storage.Storage) (*SQLStore, error) {
	db := st.SQLDB()
	if db == nil {
		return nil, fmt.Errorf("sql connection is required")
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS assistant_records (
			id VARCHAR(64) PRIMARY KEY,
			created_at BIGINT NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS thread_records (
			id VARCHAR(64) PRIMARY KEY,
			created_at BIGINT NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS message_records (
			id VARCHAR(64) PRIMARY KEY,
			thread_id VARCHAR(64) NOT NULL,
			created_at BIGINT NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_records (
			id VARCHAR(64) PRIMARY KEY,
			thread_id VARCHAR(64) NOT NULL,
			created_at BIGINT NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_records_thread ON message_records (thread_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_run_records_thread ON run_records (thread_id, created_at)`,
	}
	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create assistants tables: %w", err)
		}
	}

	return &SQLStore{db: db, storage: st}, nil
}

func (s *SQLStore) upsert(ctx context.Context, table, id, threadID string, createdAt int64, v any, mustExist bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	if mustExist {
		var query string
		if threadID != "" {
			query = fmt.Sprintf("UPDATE %s SET payload = ? WHERE id = ? AND thread_id = ?", table)
		} else {
			query = fmt.Sprintf("UPDATE %s SET payload = ? WHERE id = ?", table)
		}
		args := []any{string(payload), id}
		if threadID != "" {
			args = append(args, threadID)
		}
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	}

	if threadID != "" {
		_, err = s.db.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (id, thread_id, created_at, payload) VALUES (?, ?, ?, ?)", table),
			id, threadID, createdAt, string(payload))
	} else {
		_, err = s.db.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (id, created_at, payload) VALUES (?, ?, ?)", table),
			id, createdAt, string(payload))
	}
	if err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func (s *SQLStore) get(ctx context.Context, table, id, threadID string, out any) error {
	query := fmt.Sprintf("SELECT payload FROM %s WHERE id = ?", table)
	args := []any{id}
	if threadID != "" {
		query += " AND thread_id = ?"
		args = append(args, threadID)
	}

	var payload string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("query %s: %w", table, err)
	}
	return json.Unmarshal([]byte(payload), out)
}

// anchor resolves a cursor id to its row's created_at.
func (s *SQLStore) anchor(ctx context.Context, table, id string) (int64, error) {
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT created_at FROM %s WHERE id = ?", table), id,
	).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("resolve cursor: %w", err)
	}
	return createdAt, nil
}

// list pages through a table ordered by (created_at, id). The query fetches
// limit+1 rows; the extra row only signals has_more.
func (s *SQLStore) list(ctx context.Context, table, threadID string, page Page) ([]string, bool, error) {
	page = page.normalized()

	query := fmt.Sprintf("SELECT payload FROM %s WHERE 1=1", table)
	var args []any
	if threadID != "" {
		query += " AND thread_id = ?"
		args = append(args, threadID)
	}

	// Comparison direction follows the sort order: "after" moves down the
	// sorted sequence, "before" moves up.
	gt, lt := ">", "<"
	if page.Order == "desc" {
		gt, lt = "<", ">"
	}

	if page.After != "" {
		at, err := s.anchor(ctx, table, page.After)
		if err != nil {
			return nil, false, err
		}
		query += fmt.Sprintf(" AND (created_at %s ? OR (created_at = ? AND id %s ?))", gt, gt)
		args = append(args, at, at, page.After)
	}
	if page.Before != "" {
		at, err := s.anchor(ctx, table, page.Before)
		if err != nil {
			return nil, false, err
		}
		query += fmt.Sprintf(" AND (created_at %s ? OR (created_at = ? AND id %s ?))", lt, lt)
		args = append(args, at, at, page.Before)
	}

	dir := "ASC"
	if page.Order == "desc" {
		dir = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY created_at %s, id %s LIMIT ?", dir, dir)
	args = append(args, page.Limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var payloads []string
	for rows.Next() {
		var payload string
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

func (s *SQLStore) delete(ctx context.Context, table, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) CreateAssistant(ctx context.Context, a Assistant) error {
	return s.upsert(ctx, "assistant_records", a.ID, "", a.CreatedAt, a, false)
}

func (s *SQLStore) GetAssistant(ctx context.Context, id string) (*Assistant, error) {
	var a Assistant
	if err := s.get(ctx, "assistant_records", id, "", &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *SQLStore) ListAssistants(ctx context.Context, page Page) ([]Assistant, bool, error) {
	payloads, hasMore, err := s.list(ctx, "assistant_records", "", page)
	if err != nil {
		return nil, false, err
	}
	out := make([]Assistant, 0, len(payloads))
	for _, p := range payloads {
		var a Assistant
		if err := json.Unmarshal([]byte(p), &a); err != nil {
			return nil, false, err
		}
		out = append(out, a)
	}
	return out, hasMore, nil
}

func (s *SQLStore) UpdateAssistant(ctx context.Context, a Assistant) error {
	return s.upsert(ctx, "assistant_records", a.ID, "", a.CreatedAt, a, true)
}

func (s *SQLStore) DeleteAssistant(ctx context.Context, id string) error {
	return s.delete(ctx, "assistant_records", id)
}

func (s *SQLStore) CreateThread(ctx context.Context, th Thread) error {
	return s.upsert(ctx, "thread_records", th.ID, "", th.CreatedAt, th, false)
}

func (s *SQLStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	var th Thread
	if err := s.get(ctx, "thread_records", id, "", &th); err != nil {
		return nil, err
	}
	return &th, nil
}

func (s *SQLStore) ListThreads(ctx context.Context, page Page) ([]Thread, bool, error) {
	payloads, hasMore, err := s.list(ctx, "thread_records", "", page)
	if err != nil {
		return nil, false, err
	}
	out := make([]Thread, 0, len(payloads))
	for _, p := range payloads {
		var th Thread
		if err := json.Unmarshal([]byte(p), &th); err != nil {
			return nil, false, err
		}
		out = append(out, th)
	}
	return out, hasMore, nil
}

func (s *SQLStore) UpdateThread(ctx context.Context, th Thread) error {
	return s.upsert(ctx, "thread_records", th.ID, "", th.CreatedAt, th, true)
}

func (s *SQLStore) DeleteThread(ctx context.Context, id string) error {
	if err := s.delete(ctx, "thread_records", id); err != nil {
		return err
	}
	// Cascade. Orphan rows are unreachable through the API anyway, this
	// keeps the tables from growing unbounded.
	if _, err := s.db.ExecContext(ctx, "DELETE FROM message_records WHERE thread_id = ?", id); err != nil {
		return fmt.Errorf("cascade delete messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM run_records WHERE thread_id = ?", id); err != nil {
		return fmt.Errorf("cascade delete runs: %w", err)
	}
	return nil
}

func (s *SQLStore) CreateMessage(ctx context.Context, m Message) error {
	return s.upsert(ctx, "message_records", m.ID, m.ThreadID, m.CreatedAt, m, false)
}

func (s *SQLStore) GetMessage(ctx context.Context, threadID, id string) (*Message, error) {
	var m Message
	if err := s.get(ctx, "message_records", id, threadID, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLStore) ListMessages(ctx context.Context, threadID string, page Page) ([]Message, bool, error) {
	payloads, hasMore, err := s.list(ctx, "message_records", threadID, page)
	if err != nil {
		return nil, false, err
	}
	out := make([]Message, 0, len(payloads))
	for _, p := range payloads {
		var m Message
		if err := json.Unmarshal([]byte(p), &m); err != nil {
			return nil, false, err
		}
		out = append(out, m)
	}
	return out, hasMore, nil
}

func (s *SQLStore) UpdateMessage(ctx context.Context, m Message) error {
	return s.upsert(ctx, "message_records", m.ID, m.ThreadID, m.CreatedAt, m, true)
}

func (s *SQLStore) CreateRun(ctx context.Context, r Run) error {
	return s.upsert(ctx, "run_records", r.ID, r.ThreadID, r.CreatedAt, r, false)
}

func (s *SQLStore) GetRun(ctx context.Context, threadID, id string) (*Run, error) {
	var r Run
	if err := s.get(ctx, "run_records", id, threadID, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLStore) ListRuns(ctx context.Context, threadID string, page Page) ([]Run, bool, error) {
	payloads, hasMore, err := s.list(ctx, "run_records", threadID, page)
	if err != nil {
		return nil, false, err
	}
	out := make([]Run, 0, len(payloads))
	for _, p := range payloads {
		var r Run
		if err := json.Unmarshal([]byte(p), &r); err != nil {
			return nil, false, err
		}
		out = append(out, r)
	}
	return out, hasMore, nil
}

func (s *SQLStore) UpdateRun(ctx context.Context, r Run) error {
	return s.upsert(ctx, "run_records", r.ID, r.ThreadID, r.CreatedAt, r, true)
}

// Close releases the underlying storage connection.
func (s *SQLStore) Close() error {
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}
