package assistants

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelgate/internal/storage"
)

// storeUnderTest builds each backing that can run without external services.
func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	st, err := storage.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	sqlStore, err := NewSQLStore(context.Background(), st)
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlStore,
	}
}

func TestAssistantCRUD(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			a := NewAssistant("gpt-4o-mini")
			a.Metadata["team"] = "platform"
			require.NoError(t, store.CreateAssistant(ctx, a))

			got, err := store.GetAssistant(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, "gpt-4o-mini", got.Model)
			assert.Equal(t, "platform", got.Metadata["team"])

			display := "helper"
			got.Name = &display
			require.NoError(t, store.UpdateAssistant(ctx, *got))

			updated, err := store.GetAssistant(ctx, a.ID)
			require.NoError(t, err)
			require.NotNil(t, updated.Name)
			assert.Equal(t, "helper", *updated.Name)

			require.NoError(t, store.DeleteAssistant(ctx, a.ID))
			_, err = store.GetAssistant(ctx, a.ID)
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestUpdateMissingAssistant(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			err := store.UpdateAssistant(context.Background(), NewAssistant("gpt-4o-mini"))
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestMessageScopedToThread(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			th1, th2 := NewThread(), NewThread()
			require.NoError(t, store.CreateThread(ctx, th1))
			require.NoError(t, store.CreateThread(ctx, th2))

			m := NewMessage(th1.ID, RoleUser, "hello")
			require.NoError(t, store.CreateMessage(ctx, m))

			// Lookups through the wrong thread must miss.
			_, err := store.GetMessage(ctx, th2.ID, m.ID)
			assert.True(t, errors.Is(err, ErrNotFound))

			got, err := store.GetMessage(ctx, th1.ID, m.ID)
			require.NoError(t, err)
			assert.Equal(t, "hello", got.Content)
		})
	}
}

func TestThreadDeleteCascades(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			th := NewThread()
			require.NoError(t, store.CreateThread(ctx, th))
			m := NewMessage(th.ID, RoleUser, "hello")
			require.NoError(t, store.CreateMessage(ctx, m))
			r := NewRun(th.ID, "asst_x", "gpt-4o-mini", "")
			require.NoError(t, store.CreateRun(ctx, r))

			require.NoError(t, store.DeleteThread(ctx, th.ID))

			_, err := store.GetThread(ctx, th.ID)
			assert.True(t, errors.Is(err, ErrNotFound))
			_, err = store.GetMessage(ctx, th.ID, m.ID)
			assert.True(t, errors.Is(err, ErrNotFound))
			_, err = store.GetRun(ctx, th.ID, r.ID)
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestListAssistantsPagination(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var created []Assistant
			for i := 0; i < 3; i++ {
				a := NewAssistant("gpt-4o-mini")
				a.CreatedAt = int64(1000 + i)
				require.NoError(t, store.CreateAssistant(ctx, a))
				created = append(created, a)
			}

			// Two limit=1 pages chained by after must equal one limit=2 page.
			page1, hasMore, err := store.ListAssistants(ctx, Page{Limit: 1, Order: "asc"})
			require.NoError(t, err)
			require.Len(t, page1, 1)
			assert.True(t, hasMore)

			page2, _, err := store.ListAssistants(ctx, Page{Limit: 1, Order: "asc", After: page1[0].ID})
			require.NoError(t, err)
			require.Len(t, page2, 1)

			both, _, err := store.ListAssistants(ctx, Page{Limit: 2, Order: "asc"})
			require.NoError(t, err)
			require.Len(t, both, 2)
			assert.Equal(t, page1[0].ID, both[0].ID)
			assert.Equal(t, page2[0].ID, both[1].ID)

			// Last page reports no more rows.
			last, hasMore, err := store.ListAssistants(ctx, Page{Limit: 1, Order: "asc", After: page2[0].ID})
			require.NoError(t, err)
			require.Len(t, last, 1)
			assert.False(t, hasMore)
			assert.Equal(t, created[2].ID, last[0].ID)
		})
	}
}

func TestListThreads(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				th := NewThread()
				th.CreatedAt = int64(3000 + i)
				require.NoError(t, store.CreateThread(ctx, th))
			}

			page, hasMore, err := store.ListThreads(ctx, Page{Limit: 2, Order: "asc"})
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.True(t, hasMore)
			assert.Equal(t, int64(3000), page[0].CreatedAt)

			rest, hasMore, err := store.ListThreads(ctx, Page{Limit: 2, Order: "asc", After: page[1].ID})
			require.NoError(t, err)
			require.Len(t, rest, 1)
			assert.False(t, hasMore)
		})
	}
}

func TestListOrderAndBefore(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			th := NewThread()
			require.NoError(t, store.CreateThread(ctx, th))

			var ids []string
			for i, text := range []string{"first", "second", "third"} {
				m := NewMessage(th.ID, RoleUser, text)
				m.CreatedAt = int64(2000 + i)
				require.NoError(t, store.CreateMessage(ctx, m))
				ids = append(ids, m.ID)
			}

			// Default order is newest first.
			desc, _, err := store.ListMessages(ctx, th.ID, Page{})
			require.NoError(t, err)
			require.Len(t, desc, 3)
			assert.Equal(t, "third", desc[0].Content)

			// before in ascending order excludes the anchor and later rows.
			before, _, err := store.ListMessages(ctx, th.ID, Page{Order: "asc", Before: ids[2]})
			require.NoError(t, err)
			require.Len(t, before, 2)
			assert.Equal(t, "first", before[0].Content)
			assert.Equal(t, "second", before[1].Content)
		})
	}
}

func TestListUnknownCursor(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := store.ListAssistants(context.Background(), Page{After: "asst_missing"})
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestPageLimitClamping(t *testing.T) {
	p := Page{}.normalized()
	assert.Equal(t, DefaultPageLimit, p.Limit)
	assert.Equal(t, "desc", p.Order)

	p = Page{Limit: 500, Order: "asc"}.normalized()
	assert.Equal(t, MaxPageLimit, p.Limit)
	assert.Equal(t, "asc", p.Order)
}

func TestOpenMemoryScheme(t *testing.T) {
	store, err := Open(context.Background(), "memory://")
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*MemoryStore)
	assert.True(t, ok)
}
