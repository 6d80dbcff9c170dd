package assistants

import (
	"context"
	"maps"
	"sort"
	"sync"
)

// MemoryStore keeps all entities in process memory. Used by tests and by
// memory:// deployments where persistence across restarts is not needed.
type MemoryStore struct {
	mu         sync.RWMutex
	assistants map[string]Assistant
	threads    map[string]Thread
	messages   map[string]Message
	runs       map[string]Run
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assistants: make(map[string]Assistant),
		threads:    make(map[string]Thread),
		messages:   make(map[string]Message),
		runs:       make(map[string]Run),
	}
}

// paginate sorts items by (created_at, id), applies the cursor window and
// returns one page plus whether more rows remain. An unknown cursor id maps
// to ErrNotFound.
func paginate[T any](items []T, page Page, createdAt func(T) int64, id func(T) string) ([]T, bool, error) {
	page = page.normalized()

	sort.Slice(items, func(i, j int) bool {
		ci, cj := createdAt(items[i]), createdAt(items[j])
		if ci != cj {
			if page.Order == "asc" {
				return ci < cj
			}
			return ci > cj
		}
		if page.Order == "asc" {
			return id(items[i]) < id(items[j])
		}
		return id(items[i]) > id(items[j])
	})

	indexOf := func(cursor string) (int, error) {
		for i := range items {
			if id(items[i]) == cursor {
				return i, nil
			}
		}
		return 0, ErrNotFound
	}

	if page.After != "" {
		idx, err := indexOf(page.After)
		if err != nil {
			return nil, false, err
		}
		items = items[idx+1:]
	}
	if page.Before != "" {
		idx, err := indexOf(page.Before)
		if err != nil {
			return nil, false, err
		}
		items = items[:idx]
	}

	hasMore := len(items) > page.Limit
	if hasMore {
		items = items[:page.Limit]
	}
	return items, hasMore, nil
}

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

func cloneAssistant(a Assistant) Assistant {
	a.Metadata = cloneMeta(a.Metadata)
	a.Tools = append([]Tool(nil), a.Tools...)
	return a
}

func cloneThread(th Thread) Thread {
	th.Metadata = cloneMeta(th.Metadata)
	return th
}

func cloneMessage(m Message) Message {
	m.Metadata = cloneMeta(m.Metadata)
	m.Attachments = append([]map[string]any(nil), m.Attachments...)
	return m
}

func cloneRun(r Run) Run {
	r.Metadata = cloneMeta(r.Metadata)
	if r.LastError != nil {
		e := *r.LastError
		r.LastError = &e
	}
	if r.Usage != nil {
		u := *r.Usage
		r.Usage = &u
	}
	return r
}

func (s *MemoryStore) CreateAssistant(_ context.Context, a Assistant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assistants[a.ID] = cloneAssistant(a)
	return nil
}

func (s *MemoryStore) GetAssistant(_ context.Context, id string) (*Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assistants[id]
	if !ok {
		return nil, ErrNotFound
	}
	a = cloneAssistant(a)
	return &a, nil
}

func (s *MemoryStore) ListAssistants(_ context.Context, page Page) ([]Assistant, bool, error) {
	s.mu.RLock()
	items := make([]Assistant, 0, len(s.assistants))
	for _, a := range s.assistants {
		items = append(items, cloneAssistant(a))
	}
	s.mu.RUnlock()

	return paginate(items, page,
		func(a Assistant) int64 { return a.CreatedAt },
		func(a Assistant) string { return a.ID })
}

func (s *MemoryStore) UpdateAssistant(_ context.Context, a Assistant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assistants[a.ID]; !ok {
		return ErrNotFound
	}
	s.assistants[a.ID] = cloneAssistant(a)
	return nil
}

func (s *MemoryStore) DeleteAssistant(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assistants[id]; !ok {
		return ErrNotFound
	}
	delete(s.assistants, id)
	return nil
}

func (s *MemoryStore) CreateThread(_ context.Context, th Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[th.ID] = cloneThread(th)
	return nil
}

func (s *MemoryStore) GetThread(_ context.Context, id string) (*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, ok := s.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	th = cloneThread(th)
	return &th, nil
}

func (s *MemoryStore) ListThreads(_ context.Context, page Page) ([]Thread, bool, error) {
	s.mu.RLock()
	items := make([]Thread, 0, len(s.threads))
	for _, th := range s.threads {
		items = append(items, cloneThread(th))
	}
	s.mu.RUnlock()

	return paginate(items, page,
		func(th Thread) int64 { return th.CreatedAt },
		func(th Thread) string { return th.ID })
}

func (s *MemoryStore) UpdateThread(_ context.Context, th Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[th.ID]; !ok {
		return ErrNotFound
	}
	s.threads[th.ID] = cloneThread(th)
	return nil
}

func (s *MemoryStore) DeleteThread(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[id]; !ok {
		return ErrNotFound
	}
	delete(s.threads, id)
	for mid, m := range s.messages {
		if m.ThreadID == id {
			delete(s.messages, mid)
		}
	}
	for rid, r := range s.runs {
		if r.ThreadID == id {
			delete(s.runs, rid)
		}
	}
	return nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ID] = cloneMessage(m)
	return nil
}

func (s *MemoryStore) GetMessage(_ context.Context, threadID, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok || m.ThreadID != threadID {
		return nil, ErrNotFound
	}
	m = cloneMessage(m)
	return &m, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, threadID string, page Page) ([]Message, bool, error) {
	s.mu.RLock()
	var items []Message
	for _, m := range s.messages {
		if m.ThreadID == threadID {
			items = append(items, cloneMessage(m))
		}
	}
	s.mu.RUnlock()

	return paginate(items, page,
		func(m Message) int64 { return m.CreatedAt },
		func(m Message) string { return m.ID })
}

func (s *MemoryStore) UpdateMessage(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; !ok {
		return ErrNotFound
	}
	s.messages[m.ID] = cloneMessage(m)
	return nil
}

func (s *MemoryStore) CreateRun(_ context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = cloneRun(r)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, threadID, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok || r.ThreadID != threadID {
		return nil, ErrNotFound
	}
	r = cloneRun(r)
	return &r, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, threadID string, page Page) ([]Run, bool, error) {
	s.mu.RLock()
	var items []Run
	for _, r := range s.runs {
		if r.ThreadID == threadID {
			items = append(items, cloneRun(r))
		}
	}
	s.mu.RUnlock()

	return paginate(items, page,
		func(r Run) int64 { return r.CreatedAt },
		func(r Run) string { return r.ID })
}

func (s *MemoryStore) UpdateRun(_ context.Context, r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.ID]; !ok {
		return ErrNotFound
	}
	s.runs[r.ID] = cloneRun(r)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
