// Package assistants implements the Assistants API surface: persistence of
// Assistant, Thread, Message and Run entities, and the execution engine that
// drives Runs through their state machine.
package assistants

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"modelgate/internal/core"
)

// Run lifecycle states. Transitions are monotonic and one-directional
// except for cancelling, which resolves to cancelled.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelling RunStatus = "cancelling"
	RunStatusCancelled  RunStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Message lifecycle states.
const (
	MessageStatusInProgress = "in_progress"
	MessageStatusIncomplete = "incomplete"
	MessageStatusCompleted  = "completed"
)

// Message author roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Tool is an assistant tool declaration. Only the type discriminator is
// interpreted; tool payloads pass through opaquely.
type Tool struct {
	Type string `json:"type"`
}

// Assistant is a named model configuration. Identity is immutable; every
// other field is mutable via partial update.
type Assistant struct {
	ID           string            `json:"id"`
	Object       string            `json:"object"`
	CreatedAt    int64             `json:"created_at"`
	Model        string            `json:"model"`
	Name         *string           `json:"name"`
	Description  *string           `json:"description"`
	Instructions *string           `json:"instructions"`
	Tools        []Tool            `json:"tools"`
	Metadata     map[string]string `json:"metadata"`
	Temperature  *float64          `json:"temperature,omitempty"`
	TopP         *float64          `json:"top_p,omitempty"`
	// ResponseFormat passes through opaquely, like tool payloads.
	ResponseFormat any            `json:"response_format,omitempty"`
	ToolResources  map[string]any `json:"tool_resources,omitempty"`
}

// Thread owns an ordered list of Messages.
type Thread struct {
	ID            string            `json:"id"`
	Object        string            `json:"object"`
	CreatedAt     int64             `json:"created_at"`
	Metadata      map[string]string `json:"metadata"`
	ToolResources map[string]any    `json:"tool_resources,omitempty"`
}

// IncompleteDetails explains why a message stopped short.
type IncompleteDetails struct {
	Reason string `json:"reason"`
}

// Message is a single conversational turn inside a Thread, authored either
// by a caller or by the run engine. Completed messages are immutable except
// for metadata.
type Message struct {
	ID                string             `json:"id"`
	Object            string             `json:"object"`
	CreatedAt         int64              `json:"created_at"`
	ThreadID          string             `json:"thread_id"`
	AssistantID       *string            `json:"assistant_id"`
	RunID             *string            `json:"run_id"`
	Role              string             `json:"role"`
	Content           string             `json:"content"`
	Attachments       []map[string]any   `json:"attachments"`
	Metadata          map[string]string  `json:"metadata"`
	Status            string             `json:"status"`
	CompletedAt       *int64             `json:"completed_at"`
	IncompleteAt      *int64             `json:"incomplete_at"`
	IncompleteDetails *IncompleteDetails `json:"incomplete_details"`
}

// RunError is the absorbed failure channel of a Run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Run is one attempt to produce an assistant reply for a Thread.
type Run struct {
	ID           string            `json:"id"`
	Object       string            `json:"object"`
	CreatedAt    int64             `json:"created_at"`
	ThreadID     string            `json:"thread_id"`
	AssistantID  string            `json:"assistant_id"`
	Model        string            `json:"model"`
	Instructions string            `json:"instructions"`
	Temperature  *float64          `json:"temperature,omitempty"`
	Status       RunStatus         `json:"status"`
	StartedAt    *int64            `json:"started_at"`
	CompletedAt  *int64            `json:"completed_at"`
	CancelledAt  *int64            `json:"cancelled_at"`
	FailedAt     *int64            `json:"failed_at"`
	LastError    *RunError         `json:"last_error"`
	Usage        *core.Usage       `json:"usage"`
	Metadata     map[string]string `json:"metadata"`
}

// DeletionStatus confirms a delete request.
type DeletionStatus struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewAssistant constructs an assistant with generated identity and defaults.
func NewAssistant(model string) Assistant {
	return Assistant{
		ID:        newID("asst"),
		Object:    "assistant",
		CreatedAt: time.Now().Unix(),
		Model:     model,
		Tools:     []Tool{},
		Metadata:  map[string]string{},
	}
}

// NewThread constructs an empty thread with generated identity.
func NewThread() Thread {
	return Thread{
		ID:        newID("thread"),
		Object:    "thread",
		CreatedAt: time.Now().Unix(),
		Metadata:  map[string]string{},
	}
}

// NewMessage constructs a completed message for the given thread and role.
func NewMessage(threadID, role, content string) Message {
	now := time.Now().Unix()
	return Message{
		ID:          newID("msg"),
		Object:      "thread.message",
		CreatedAt:   now,
		ThreadID:    threadID,
		Role:        role,
		Content:     content,
		Attachments: []map[string]any{},
		Metadata:    map[string]string{},
		Status:      MessageStatusCompleted,
		CompletedAt: &now,
	}
}

// NewRun constructs a queued run for the given thread and assistant.
func NewRun(threadID, assistantID, model, instructions string) Run {
	return Run{
		ID:           newID("run"),
		Object:       "thread.run",
		CreatedAt:    time.Now().Unix(),
		ThreadID:     threadID,
		AssistantID:  assistantID,
		Model:        model,
		Instructions: instructions,
		Status:       RunStatusQueued,
		Metadata:     map[string]string{},
	}
}
