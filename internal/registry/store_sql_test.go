package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelgate/internal/core"
	"modelgate/internal/storage"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()

	st, err := storage.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	store, err := NewSQLStore(st.SQLDB(), st.Type())
	require.NoError(t, err)
	return store
}

func TestSQLStorePutGet(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	rec := core.Model{ID: "gpt-4o-mini", Object: "model", OwnedBy: "http://host-a/v1", Created: 1000}
	require.NoError(t, store.Put(ctx, rec, time.Minute))

	got, err := store.Get(ctx, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, rec, *got)
}

func TestSQLStoreUpsert(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, core.Model{ID: "gpt-4o-mini", Object: "model", OwnedBy: "http://host-a/v1", Created: 1000}, 0))
	require.NoError(t, store.Put(ctx, core.Model{ID: "gpt-4o-mini", Object: "model", OwnedBy: "http://host-b/v1", Created: 2000}, 0))

	all, err := store.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "http://host-b/v1", all[0].OwnedBy)
	assert.Equal(t, int64(2000), all[0].Created)
}

func TestSQLStoreGetNotFound(t *testing.T) {
	store := newSQLiteStore(t)

	_, err := store.Get(context.Background(), "nonexistent")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLStoreIgnoresTTL(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	// Relational backings retain records regardless of TTL; staleness is the
	// discovery service's concern.
	require.NoError(t, store.Put(ctx, core.Model{ID: "gpt-4o-mini", Object: "model", Created: 1}, time.Nanosecond))
	time.Sleep(5 * time.Millisecond)

	got, err := store.Get(ctx, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", got.ID)
}
