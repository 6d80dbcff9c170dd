package assistants

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelgate/internal/core"
)

type fakeChatClient struct {
	reply    string
	usage    *core.Usage
	err      error
	requests []*core.ChatRequest
}

func (f *fakeChatClient) ChatCompletion(_ context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &core.ChatResponse{
		ID:      "chatcmpl-test",
		Object:  "chat.completion",
		Model:   req.Model,
		Choices: []core.Choice{{Message: core.Message{Role: RoleAssistant, Content: f.reply}}},
		Usage:   f.usage,
	}, nil
}

func resolverFor(client core.ChatClient) ChatResolver {
	return func(model string) (core.ChatClient, string, error) {
		return client, model, nil
	}
}

func seedRun(t *testing.T, store Store, instructions string) Run {
	t.Helper()
	ctx := context.Background()

	th := NewThread()
	require.NoError(t, store.CreateThread(ctx, th))
	require.NoError(t, store.CreateMessage(ctx, NewMessage(th.ID, RoleUser, "What is 2+2?")))

	a := NewAssistant("gpt-4o-mini")
	require.NoError(t, store.CreateAssistant(ctx, a))

	run := NewRun(th.ID, a.ID, a.Model, instructions)
	require.NoError(t, store.CreateRun(ctx, run))
	return run
}

func TestExecuteCompletesRun(t *testing.T) {
	store := NewMemoryStore()
	client := &fakeChatClient{reply: "4", usage: &core.Usage{PromptTokens: 12, CompletionTokens: 1, TotalTokens: 13}}
	engine := NewEngine(store, resolverFor(client))
	ctx := context.Background()

	run := seedRun(t, store, "Respond concisely.")
	engine.Execute(ctx, run.ThreadID, run.ID)

	got, err := store.GetRun(ctx, run.ThreadID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Usage)
	assert.Equal(t, 13, got.Usage.TotalTokens)
	assert.Nil(t, got.LastError)

	// Thread now holds the user turn and the assistant reply.
	msgs, _, err := store.ListMessages(ctx, run.ThreadID, Page{Order: "asc"})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "4", msgs[1].Content)
	require.NotNil(t, msgs[1].RunID)
	assert.Equal(t, run.ID, *msgs[1].RunID)

	// Instructions became the system turn ahead of the thread history.
	require.Len(t, client.requests, 1)
	turns := client.requests[0].Messages
	require.Len(t, turns, 2)
	assert.Equal(t, "system", turns[0].Role)
	assert.Equal(t, "Respond concisely.", turns[0].Content)
	assert.Equal(t, "What is 2+2?", turns[1].Content)
}

func TestExecuteAbsorbsUpstreamFailure(t *testing.T) {
	store := NewMemoryStore()
	client := &fakeChatClient{err: errors.New("upstream exploded")}
	engine := NewEngine(store, resolverFor(client))
	ctx := context.Background()

	run := seedRun(t, store, "")
	engine.Execute(ctx, run.ThreadID, run.ID)

	got, err := store.GetRun(ctx, run.ThreadID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	require.NotNil(t, got.FailedAt)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "server_error", got.LastError.Code)
	assert.Contains(t, got.LastError.Message, "upstream exploded")

	// No assistant message on failure.
	msgs, _, err := store.ListMessages(ctx, run.ThreadID, Page{})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestExecuteAbsorbsResolveFailure(t *testing.T) {
	store := NewMemoryStore()
	engine := NewEngine(store, func(string) (core.ChatClient, string, error) {
		return nil, "", core.NewModelNotFoundError("gpt-4o-mini")
	})
	ctx := context.Background()

	run := seedRun(t, store, "")
	engine.Execute(ctx, run.ThreadID, run.ID)

	got, err := store.GetRun(ctx, run.ThreadID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Contains(t, got.LastError.Message, "gpt-4o-mini")
}

func TestCancelFromCancelling(t *testing.T) {
	store := NewMemoryStore()
	engine := NewEngine(store, resolverFor(&fakeChatClient{reply: "ignored"}))
	ctx := context.Background()

	run := seedRun(t, store, "")
	run.Status = RunStatusCancelling
	require.NoError(t, store.UpdateRun(ctx, run))

	got, err := engine.Cancel(ctx, run.ThreadID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)

	// Cancellation never appends a message.
	msgs, _, err := store.ListMessages(ctx, run.ThreadID, Page{})
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestCancelQueuedRun(t *testing.T) {
	store := NewMemoryStore()
	engine := NewEngine(store, resolverFor(&fakeChatClient{reply: "ignored"}))
	ctx := context.Background()

	run := seedRun(t, store, "")
	got, err := engine.Cancel(ctx, run.ThreadID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCancelled, got.Status)

	// The engine must not resurrect a cancelled run.
	engine.Execute(ctx, run.ThreadID, run.ID)
	after, err := store.GetRun(ctx, run.ThreadID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCancelled, after.Status)
}

func TestCancelInProgressIsCooperative(t *testing.T) {
	store := NewMemoryStore()
	engine := NewEngine(store, resolverFor(&fakeChatClient{reply: "ignored"}))
	ctx := context.Background()

	run := seedRun(t, store, "")
	run.Status = RunStatusInProgress
	require.NoError(t, store.UpdateRun(ctx, run))

	got, err := engine.Cancel(ctx, run.ThreadID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCancelling, got.Status)
	assert.Nil(t, got.CancelledAt)
}

func TestCancelTerminalRunIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	engine := NewEngine(store, resolverFor(&fakeChatClient{reply: "4"}))
	ctx := context.Background()

	run := seedRun(t, store, "")
	engine.Execute(ctx, run.ThreadID, run.ID)

	got, err := engine.Cancel(ctx, run.ThreadID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
}

func TestDispatchRunsAsynchronously(t *testing.T) {
	store := NewMemoryStore()
	engine := NewEngine(store, resolverFor(&fakeChatClient{reply: "4", usage: &core.Usage{TotalTokens: 3}}))
	ctx := context.Background()

	run := seedRun(t, store, "")
	engine.Dispatch(run)
	engine.Wait()

	got, err := store.GetRun(ctx, run.ThreadID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, got.Status)
}
