//go:build integration

package integration

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelgate/internal/assistants"
	"modelgate/internal/core"
	"modelgate/internal/registry"
)

func TestRegistryStorePostgres(t *testing.T) {
	store, err := registry.Open(testCtx, pgURL)
	require.NoError(t, err)
	defer store.Close()

	rec := core.Model{ID: "gpt-4o-mini", Object: "model", OwnedBy: "http://host-a/v1", Created: 1000}
	require.NoError(t, store.Put(testCtx, rec, time.Minute))

	got, err := store.Get(testCtx, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, rec, *got)

	// Upsert replaces in place.
	rec.Created = 2000
	require.NoError(t, store.Put(testCtx, rec, time.Minute))
	all, err := store.Scan(testCtx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(2000), all[0].Created)

	_, err = store.Get(testCtx, "nonexistent")
	assert.True(t, errors.Is(err, registry.ErrNotFound))
}

func TestAssistantsStorePostgres(t *testing.T) {
	store, err := assistants.Open(testCtx, pgURL)
	require.NoError(t, err)
	defer store.Close()

	a := assistants.NewAssistant("gpt-4o-mini")
	require.NoError(t, store.CreateAssistant(testCtx, a))

	th := assistants.NewThread()
	require.NoError(t, store.CreateThread(testCtx, th))

	var ids []string
	for i, text := range []string{"one", "two", "three"} {
		m := assistants.NewMessage(th.ID, assistants.RoleUser, text)
		m.CreatedAt = int64(1000 + i)
		require.NoError(t, store.CreateMessage(testCtx, m))
		ids = append(ids, m.ID)
	}

	// Cursor pagination against real SQL.
	page1, hasMore, err := store.ListMessages(testCtx, th.ID, assistants.Page{Limit: 2, Order: "asc"})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.True(t, hasMore)
	assert.Equal(t, "one", page1[0].Content)

	page2, hasMore, err := store.ListMessages(testCtx, th.ID, assistants.Page{Limit: 2, Order: "asc", After: page1[1].ID})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.False(t, hasMore)
	assert.Equal(t, "three", page2[0].Content)

	// Runs and cascade.
	run := assistants.NewRun(th.ID, a.ID, a.Model, "")
	require.NoError(t, store.CreateRun(testCtx, run))

	run.Status = assistants.RunStatusCompleted
	now := time.Now().Unix()
	run.CompletedAt = &now
	run.Usage = &core.Usage{TotalTokens: 7}
	require.NoError(t, store.UpdateRun(testCtx, run))

	got, err := store.GetRun(testCtx, th.ID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, assistants.RunStatusCompleted, got.Status)
	require.NotNil(t, got.Usage)
	assert.Equal(t, 7, got.Usage.TotalTokens)

	require.NoError(t, store.DeleteThread(testCtx, th.ID))
	_, err = store.GetMessage(testCtx, th.ID, ids[0])
	assert.True(t, errors.Is(err, assistants.ErrNotFound))
	_, err = store.GetRun(testCtx, th.ID, run.ID)
	assert.True(t, errors.Is(err, assistants.ErrNotFound))
}
