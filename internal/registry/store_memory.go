package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"modelgate/internal/core"
)

// memoryRecord pairs a model record with its eviction deadline.
// A zero deadline never expires.
type memoryRecord struct {
	Model     core.Model `json:"model"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// MemoryStore keeps model records in process memory with lazy TTL eviction.
// When constructed with a snapshot path, records survive restarts via a
// best-effort JSON file written after each Put.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]memoryRecord
	snapshot string
	now      func() time.Time
}

// NewMemoryStore creates an embedded cache store. snapshotPath may be empty
// for a purely in-memory store.
func NewMemoryStore(snapshotPath string) *MemoryStore {
	s := &MemoryStore{
		items:    make(map[string]memoryRecord),
		snapshot: snapshotPath,
		now:      time.Now,
	}
	s.load()
	return s
}

// Put upserts a record. Last writer wins per model id.
func (s *MemoryStore) Put(_ context.Context, rec core.Model, ttl time.Duration) error {
	var deadline time.Time
	if ttl > 0 {
		deadline = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.items[rec.ID] = memoryRecord{Model: rec, ExpiresAt: deadline}
	s.mu.Unlock()

	s.save()
	return nil
}

// Get retrieves a live record by id, evicting it if expired.
func (s *MemoryStore) Get(_ context.Context, id string) (*core.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.expired(item) {
		delete(s.items, id)
		return nil, ErrNotFound
	}
	rec := item.Model
	return &rec, nil
}

// Scan returns all live records, evicting expired ones as it goes.
func (s *MemoryStore) Scan(_ context.Context) ([]core.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Model, 0, len(s.items))
	for id, item := range s.items {
		if s.expired(item) {
			delete(s.items, id)
			continue
		}
		out = append(out, item.Model)
	}
	return out, nil
}

// Close is a no-op for the embedded store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) expired(item memoryRecord) bool {
	return !item.ExpiresAt.IsZero() && s.now().After(item.ExpiresAt)
}

// load restores records from the snapshot file if one exists.
func (s *MemoryStore) load() {
	if s.snapshot == "" {
		return
	}
	data, err := os.ReadFile(s.snapshot)
	if err != nil {
		return
	}
	var items map[string]memoryRecord
	if err := json.Unmarshal(data, &items); err != nil {
		return
	}
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}

// save writes the snapshot atomically via temp file + rename. Failures are
// ignored: the snapshot is an optimization, not the source of truth.
func (s *MemoryStore) save() {
	if s.snapshot == "" {
		return
	}

	s.mu.RLock()
	data, err := json.MarshalIndent(s.items, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return
	}

	if dir := filepath.Dir(s.snapshot); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return
		}
	}
	tmp := s.snapshot + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	if err := os.Rename(tmp, s.snapshot); err != nil {
		os.Remove(tmp)
	}
}
