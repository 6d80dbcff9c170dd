package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelgate/internal/core"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore("")
	return NewService(store, 10*time.Minute), store
}

func TestRegisterAndRetrieve(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Register(ctx, core.Model{
		ID:      "gpt-4o-mini",
		OwnedBy: "http://host-a/v1",
		Created: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, "model", rec.Object)

	got, err := svc.Retrieve(ctx, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", got.ID)
	assert.Equal(t, "http://host-a/v1", got.OwnedBy)
	assert.Equal(t, int64(1000), got.Created)
}

func TestRegisterEmptyID(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), core.Model{OwnedBy: "http://host-a/v1"})
	require.Error(t, err)

	var gwErr *core.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, 422, gwErr.HTTPStatusCode())
}

func TestRegisterStampsCreated(t *testing.T) {
	svc, _ := newTestService(t)
	svc.now = func() time.Time { return time.Unix(5000, 0) }

	rec, err := svc.Register(context.Background(), core.Model{ID: "llama-3-8b", OwnedBy: "http://host-b/v1"})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), rec.Created)
}

func TestRegisterIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, created := range []int64{1000, 2000, 3000} {
		_, err := svc.Register(ctx, core.Model{
			ID:      "gpt-4o-mini",
			OwnedBy: "http://host-a/v1",
			Created: created,
		})
		require.NoError(t, err)
	}

	// Re-registration overwrites in place: one record, latest timestamp.
	all, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(3000), all[0].Created)
}

func TestRetrieveNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Retrieve(context.Background(), "nonexistent")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListFiltersAreConjunctive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	records := []core.Model{
		{ID: "gpt-4o-mini", OwnedBy: "http://host-a/v1", Created: 2000},
		{ID: "llama-3-8b", OwnedBy: "http://host-b/v1", Created: 2000},
	}
	for _, rec := range records {
		_, err := svc.Register(ctx, rec)
		require.NoError(t, err)
	}

	got, err := svc.List(ctx, ListFilter{ID: "gpt-4o-mini", OwnedBy: "http://host-a/v1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "gpt-4o-mini", got[0].ID)

	got, err = svc.List(ctx, ListFilter{ID: "gpt-4o-mini", OwnedBy: "http://host-b/v1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListFreshnessBoundary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, core.Model{ID: "gpt-4o-mini", OwnedBy: "http://host-a/v1", Created: 1000})
	require.NoError(t, err)

	// created_from is inclusive: a record registered exactly at the window
	// edge is still a candidate.
	got, err := svc.List(ctx, ListFilter{CreatedFrom: 1000})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = svc.List(ctx, ListFilter{CreatedFrom: 1001})
	require.NoError(t, err)
	assert.Empty(t, got)

	// Symmetric for created_to.
	got, err = svc.List(ctx, ListFilter{CreatedTo: 1000})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = svc.List(ctx, ListFilter{CreatedTo: 999})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListLimit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"model-a", "model-b", "model-c"} {
		_, err := svc.Register(ctx, core.Model{ID: id, OwnedBy: "http://host-a/v1"})
		require.NoError(t, err)
	}

	got, err := svc.List(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFreshWindow(t *testing.T) {
	svc, _ := newTestService(t)
	svc.now = func() time.Time { return time.Unix(2000, 0) }
	ctx := context.Background()

	_, err := svc.Register(ctx, core.Model{ID: "gpt-4o-mini", OwnedBy: "http://host-a/v1", Created: 1500})
	require.NoError(t, err)

	got, err := svc.Fresh(ctx, "gpt-4o-mini", 10*time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = svc.Fresh(ctx, "gpt-4o-mini", 100*time.Second)
	require.NoError(t, err)
	assert.Empty(t, got)
}
