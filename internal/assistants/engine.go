package assistants

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"modelgate/internal/core"
	"modelgate/internal/observability"
)

// ChatResolver yields a chat client for a model name, plus the model id the
// upstream expects. It is the engine's only dependency on the routing layer.
type ChatResolver func(model string) (core.ChatClient, string, error)

// Engine drives Runs through their state machine. Execution is asynchronous:
// Dispatch launches one goroutine per Run-create and returns immediately.
// Every failure along the way is absorbed into the Run's last_error field,
// never propagated. A failed Run is not retried; the caller creates a new one.
type Engine struct {
	store   Store
	resolve ChatResolver
	wg      sync.WaitGroup
}

// NewEngine creates a run execution engine over the given store.
func NewEngine(store Store, resolve ChatResolver) *Engine {
	return &Engine{store: store, resolve: resolve}
}

// Dispatch starts asynchronous execution of a freshly created Run. The
// background context detaches execution from the HTTP request lifetime:
// the Run record, not the response, is the result channel.
func (e *Engine) Dispatch(r Run) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.Execute(context.Background(), r.ThreadID, r.ID)
	}()
}

// Wait blocks until all dispatched runs have finished. Used during shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Execute drives one Run from queued to a terminal state.
func (e *Engine) Execute(ctx context.Context, threadID, runID string) {
	run, err := e.store.GetRun(ctx, threadID, runID)
	if err != nil {
		slog.Error("run vanished before execution", "run_id", runID, "error", err)
		return
	}

	switch run.Status {
	case RunStatusQueued:
		// Proceed.
	case RunStatusCancelling:
		e.markCancelled(ctx, run)
		return
	default:
		// Already picked up or terminal. Only one execution exists per
		// Run-create, so this means a cancel won the race.
		return
	}

	now := time.Now().Unix()
	run.Status = RunStatusInProgress
	run.StartedAt = &now
	if err := e.store.UpdateRun(ctx, *run); err != nil {
		slog.Error("failed to mark run in_progress", "run_id", run.ID, "error", err)
		return
	}

	resp, err := e.invoke(ctx, run)
	if err != nil {
		e.markFailed(ctx, run, err)
		return
	}

	reply := NewMessage(run.ThreadID, RoleAssistant, replyContent(resp))
	reply.AssistantID = &run.AssistantID
	reply.RunID = &run.ID
	if err := e.store.CreateMessage(ctx, reply); err != nil {
		e.markFailed(ctx, run, err)
		return
	}

	done := time.Now().Unix()
	run.Status = RunStatusCompleted
	run.CompletedAt = &done
	run.Usage = resp.Usage
	if err := e.store.UpdateRun(ctx, *run); err != nil {
		slog.Error("failed to mark run completed", "run_id", run.ID, "error", err)
		return
	}
	observability.ObserveRun(string(RunStatusCompleted))
	slog.Info("run completed", "run_id", run.ID, "thread_id", run.ThreadID, "model", run.Model)
}

// invoke builds the chat request from the Run's instructions and the
// Thread's messages and calls the resolved client synchronously.
func (e *Engine) invoke(ctx context.Context, run *Run) (*core.ChatResponse, error) {
	history, err := e.threadHistory(ctx, run.ThreadID)
	if err != nil {
		return nil, err
	}

	var turns []core.Message
	if run.Instructions != "" {
		turns = append(turns, core.Message{Role: "system", Content: run.Instructions})
	}
	turns = append(turns, history...)

	client, modelID, err := e.resolve(run.Model)
	if err != nil {
		return nil, err
	}

	return client.ChatCompletion(ctx, &core.ChatRequest{
		Model:       modelID,
		Messages:    turns,
		Temperature: run.Temperature,
	})
}

// threadHistory collects every message of the thread in creation order.
func (e *Engine) threadHistory(ctx context.Context, threadID string) ([]core.Message, error) {
	var out []core.Message
	page := Page{Limit: MaxPageLimit, Order: "asc"}
	for {
		msgs, hasMore, err := e.store.ListMessages(ctx, threadID, page)
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			out = append(out, core.Message{Role: m.Role, Content: m.Content})
		}
		if !hasMore || len(msgs) == 0 {
			return out, nil
		}
		page.After = msgs[len(msgs)-1].ID
	}
}

// Cancel requests cancellation of a Run. Terminal runs are returned as-is.
// A run still waiting (queued or already cancelling) resolves to cancelled;
// one in flight moves to cancelling and is not interrupted mid-call.
func (e *Engine) Cancel(ctx context.Context, threadID, runID string) (*Run, error) {
	run, err := e.store.GetRun(ctx, threadID, runID)
	if err != nil {
		return nil, err
	}

	switch {
	case run.Status.Terminal():
		return run, nil
	case run.Status == RunStatusQueued || run.Status == RunStatusCancelling:
		now := time.Now().Unix()
		run.Status = RunStatusCancelled
		run.CancelledAt = &now
	default:
		run.Status = RunStatusCancelling
	}

	if err := e.store.UpdateRun(ctx, *run); err != nil {
		return nil, err
	}
	return run, nil
}

func (e *Engine) markCancelled(ctx context.Context, run *Run) {
	now := time.Now().Unix()
	run.Status = RunStatusCancelled
	run.CancelledAt = &now
	if err := e.store.UpdateRun(ctx, *run); err != nil {
		slog.Error("failed to mark run cancelled", "run_id", run.ID, "error", err)
	}
}

func (e *Engine) markFailed(ctx context.Context, run *Run, cause error) {
	now := time.Now().Unix()
	run.Status = RunStatusFailed
	run.FailedAt = &now
	run.LastError = &RunError{Code: "server_error", Message: cause.Error()}
	if err := e.store.UpdateRun(ctx, *run); err != nil {
		slog.Error("failed to mark run failed", "run_id", run.ID, "error", err)
		return
	}
	observability.ObserveRun(string(RunStatusFailed))
	slog.Warn("run failed", "run_id", run.ID, "thread_id", run.ThreadID, "error", cause)
}

func replyContent(resp *core.ChatResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}
