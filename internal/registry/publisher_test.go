package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelgate/internal/core"
)

func TestPublisherAnnounces(t *testing.T) {
	var (
		mu       sync.Mutex
		received []core.Model
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec core.Model
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		mu.Lock()
		received = append(received, rec)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := &Publisher{
		RegisterURL: srv.URL,
		BaseURL:     "http://host-a/v1",
		Period:      20 * time.Millisecond,
		FailPeriod:  20 * time.Millisecond,
	}
	pub.Start(ctx, []string{"gpt-4o-mini", "llama-3-8b"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		seen := map[string]bool{}
		for _, rec := range received {
			seen[rec.ID] = true
		}
		return seen["gpt-4o-mini"] && seen["llama-3-8b"]
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, rec := range received {
		assert.Equal(t, "http://host-a/v1", rec.OwnedBy)
		assert.Equal(t, "model", rec.Object)
		assert.NotZero(t, rec.Created)
	}
}

func TestPublisherRetriesAfterFailure(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		// First attempt fails; the loop must keep going.
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := &Publisher{
		RegisterURL: srv.URL,
		BaseURL:     "http://host-a/v1",
		Period:      10 * time.Millisecond,
		FailPeriod:  10 * time.Millisecond,
	}
	pub.Start(ctx, []string{"gpt-4o-mini"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPublisherStopsOnCancel(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())

	pub := &Publisher{
		RegisterURL: srv.URL,
		BaseURL:     "http://host-a/v1",
		Period:      10 * time.Millisecond,
		FailPeriod:  10 * time.Millisecond,
	}
	pub.Start(ctx, []string{"gpt-4o-mini"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	after := calls
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, calls, after+1)
}
