// Package assistant defines how the orchestrator talks to the remote
// conversational-AI service: durable threads, messages, runs, and the
// streaming event source a run emits while executing.
package assistant

import (
	"context"
	"errors"

	"github.com/skillsynx/chatrelay/internal/models"
)

// ErrThreadNotFound is returned by RetrieveThread when the service no longer
// knows the thread id, meaning the stored id is stale and must be replaced.
var ErrThreadNotFound = errors.New("thread not found")

// Run is the orchestrator's view of one model execution on a thread.
// PendingToolCalls is populated only while Status is requires_action.
type Run struct {
	ID               string
	ThreadID         string
	Status           models.RunStatus
	PendingToolCalls []models.ToolCall
}

// EventType enumerates the stream events the orchestrator reacts to.
type EventType int

const (
	// EventTextDelta carries one incremental chunk of assistant text.
	EventTextDelta EventType = iota
	// EventRequiresAction signals the run paused for tool outputs.
	EventRequiresAction
	// EventRunCompleted signals the run reached the completed status.
	EventRunCompleted
	// EventRunFailed signals the run ended failed, cancelled or expired.
	EventRunFailed
	// EventDone is the stream's final event.
	EventDone
)

// StreamEvent is one typed event from a run's streaming source.
type StreamEvent struct {
	Type EventType
	Text string // EventTextDelta
	Run  *Run   // EventRequiresAction, EventRunCompleted, EventRunFailed
}

// Stream is an ordered sequence of run events, consumed by a single
// goroutine. Next returns io.EOF after EventDone; any other error means the
// stream broke mid-run.
type Stream interface {
	Next(ctx context.Context) (StreamEvent, error)
	Close() error
}

// Client is the full capability set the orchestrator requires from the AI
// service. Implementations must be safe for concurrent use.
type Client interface {
	CreateThread(ctx context.Context) (string, error)
	RetrieveThread(ctx context.Context, threadID string) error
	CreateMessage(ctx context.Context, threadID, role, content string) error
	ListRuns(ctx context.Context, threadID string, limit int) ([]Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error

	// StreamRun starts a new run on the thread and returns its event stream.
	StreamRun(ctx context.Context, threadID string) (Stream, error)
	// SubmitToolOutputsStream resumes a paused run with the given outputs and
	// returns the continuation event stream.
	SubmitToolOutputsStream(ctx context.Context, threadID, runID string, outputs []models.ToolOutput) (Stream, error)
}
