package registry

import (
	"context"
	"time"

	"modelgate/internal/core"
)

// DefaultListLimit bounds List results when no limit is supplied.
const DefaultListLimit = 20

// Service exposes register/retrieve/list over a Store and owns the TTL
// handed to cache backings on registration.
type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewService creates a discovery service. ttl is the eviction window handed
// to cache backings; freshness filtering in List is independent of it.
func NewService(store Store, ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl, now: time.Now}
}

// Register upserts a model record by id. A zero Created is stamped with the
// current time; re-registration refreshes the timestamp, which is the only
// mutation a record ever sees. Fails with a validation error on empty id.
func (s *Service) Register(ctx context.Context, rec core.Model) (*core.Model, error) {
	if rec.ID == "" {
		return nil, core.NewValidationError("model id is required")
	}
	if rec.Object == "" {
		rec.Object = "model"
	}
	if rec.Created == 0 {
		rec.Created = s.now().Unix()
	}

	if err := s.store.Put(ctx, rec, s.ttl); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Retrieve returns the record for a model id, or ErrNotFound.
func (s *Service) Retrieve(ctx context.Context, id string) (*core.Model, error) {
	return s.store.Get(ctx, id)
}

// ListFilter holds the conjunctive filters for List. Zero values mean
// "no constraint". CreatedFrom/CreatedTo are inclusive unix-second bounds
// implementing the freshness window.
type ListFilter struct {
	ID          string
	OwnedBy     string
	CreatedFrom int64
	CreatedTo   int64
	Limit       int
}

// List scans the store and applies all filters conjunctively. Results are
// not sorted; callers needing determinism must sort client-side.
func (s *Service) List(ctx context.Context, f ListFilter) ([]core.Model, error) {
	records, err := s.store.Scan(ctx)
	if err != nil {
		return nil, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	out := make([]core.Model, 0, limit)
	for _, rec := range records {
		if f.ID != "" && rec.ID != f.ID {
			continue
		}
		if f.OwnedBy != "" && rec.OwnedBy != f.OwnedBy {
			continue
		}
		if f.CreatedFrom != 0 && rec.Created < f.CreatedFrom {
			continue
		}
		if f.CreatedTo != 0 && rec.Created > f.CreatedTo {
			continue
		}
		out = append(out, rec)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Fresh returns the records announcing the given model id within the
// freshness window ending now. This is the candidate set for agent-mode
// routing.
func (s *Service) Fresh(ctx context.Context, modelID string, window time.Duration) ([]core.Model, error) {
	return s.List(ctx, ListFilter{
		ID:          modelID,
		CreatedFrom: s.now().Add(-window).Unix(),
	})
}
