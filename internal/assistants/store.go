package assistants

import (
	"context"
	"errors"
	"fmt"

	"modelgate/internal/storage"
)

// ErrNotFound indicates the requested entity does not exist, or does not
// belong to the thread named in the request.
var ErrNotFound = errors.New("record not found")

// Pagination limits.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page is a cursor pagination request. After/Before are public entity ids
// resolved to their row's (created_at, id) anchor. Order is "asc" or "desc",
// defaulting to descending creation time.
type Page struct {
	Limit  int
	After  string
	Before string
	Order  string
}

// normalized clamps the limit into [1, MaxPageLimit] and defaults the order.
func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Order != "asc" {
		p.Order = "desc"
	}
	return p
}

// Store persists the Assistants API entities. Update methods are full-row
// writes; partial-update and metadata-merge semantics live in the callers.
// List methods return one page plus a has_more flag.
// Implementations must be safe for concurrent use.
type Store interface {
	CreateAssistant(ctx context.Context, a Assistant) error
	GetAssistant(ctx context.Context, id string) (*Assistant, error)
	ListAssistants(ctx context.Context, page Page) ([]Assistant, bool, error)
	UpdateAssistant(ctx context.Context, a Assistant) error
	DeleteAssistant(ctx context.Context, id string) error

	CreateThread(ctx context.Context, th Thread) error
	GetThread(ctx context.Context, id string) (*Thread, error)
	ListThreads(ctx context.Context, page Page) ([]Thread, bool, error)
	UpdateThread(ctx context.Context, th Thread) error
	// DeleteThread removes the thread and cascades to its messages and runs.
	DeleteThread(ctx context.Context, id string) error

	CreateMessage(ctx context.Context, m Message) error
	GetMessage(ctx context.Context, threadID, id string) (*Message, error)
	ListMessages(ctx context.Context, threadID string, page Page) ([]Message, bool, error)
	UpdateMessage(ctx context.Context, m Message) error

	CreateRun(ctx context.Context, r Run) error
	GetRun(ctx context.Context, threadID, id string) (*Run, error)
	ListRuns(ctx context.Context, threadID string, page Page) ([]Run, bool, error)
	UpdateRun(ctx context.Context, r Run) error

	Close() error
}

// Open selects a store backing from the storage URL scheme. memory:// gives
// an embedded store for tests and single-process deployments; everything
// else goes through the shared storage layer.
func Open(ctx context.Context, rawURL string) (Store, error) {
	scheme, _, err := storage.SplitScheme(rawURL)
	if err != nil {
		return nil, err
	}
	if scheme == "memory" {
		return NewMemoryStore(), nil
	}

	st, err := storage.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var store Store
	switch st.Type() {
	case storage.TypeSQLite, storage.TypeMySQL:
		store, err = NewSQLStore(ctx, st)
	case storage.TypePostgreSQL:
		store, err = NewPostgresStore(ctx, st)
	case storage.TypeMongoDB:
		store, err = NewMongoStore(ctx, st)
	default:
		err = fmt.Errorf("storage type %s cannot back the assistants store", st.Type())
	}
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return store, nil
}
