// Package orchestrator coordinates one conversation turn end to end:
// resolve the user's AI thread, clear any in-flight run, post the turn,
// relay the streamed reply to the client, and persist both sides.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skillsynx/chatrelay/internal/assistant"
	"github.com/skillsynx/chatrelay/internal/models"
	"github.com/skillsynx/chatrelay/internal/storage"
	"go.uber.org/zap"
)

// Client-facing notification texts. Busy is deliberately distinct so the
// frontend can offer a retry instead of a generic failure.
const (
	msgResolutionFailed = "Could not start your conversation. Please try again."
	msgBusy             = "The assistant is still finishing a previous reply. Please try again shortly."
	msgTurnFailed       = "Server error processing your message"
	msgStreamFailed     = "An error occurred with the AI response"
)

// Notifier delivers events to the client connection that originated the
// turn. Implementations belong to that connection only; nothing here is
// shared across connections.
type Notifier interface {
	ChatDelta(content string) error
	StreamComplete(content string) error
	NotifyError(message string) error
}

type Config struct {
	PollInterval    time.Duration
	MaxPollAttempts int
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 1500 * time.Millisecond
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = 10
	}
}

type Orchestrator struct {
	ai          assistant.Client
	users       storage.UserDirectory
	transcripts storage.TranscriptStore
	tools       *ToolRegistry
	logger      *zap.Logger

	pollInterval    time.Duration
	maxPollAttempts int

	mu          sync.Mutex
	threadLocks map[string]*threadLock
}

// threadLock is one per-thread mutex plus the number of turns holding or
// waiting on it, so entries can be dropped once uncontended.
type threadLock struct {
	mu   sync.Mutex
	refs int
}

func New(ai assistant.Client, users storage.UserDirectory, transcripts storage.TranscriptStore, tools *ToolRegistry, cfg Config, logger *zap.Logger) *Orchestrator {
	cfg.applyDefaults()
	if tools == nil {
		tools = NewToolRegistry()
	}

	return &Orchestrator{
		ai:              ai,
		users:           users,
		transcripts:     transcripts,
		tools:           tools,
		logger:          logger,
		pollInterval:    cfg.PollInterval,
		maxPollAttempts: cfg.MaxPollAttempts,
		threadLocks:     make(map[string]*threadLock),
	}
}

// HandleTurn processes one inbound chat message. All failures are reported
// through the client notifier; the returned error is for the caller's log
// only and never closes the connection.
func (o *Orchestrator) HandleTurn(ctx context.Context, externalID, message string, client Notifier) error {
	user, err := o.ResolveThread(ctx, externalID)
	if err != nil {
		o.logger.Error("Failed to resolve thread",
			zap.Error(err),
			zap.String("external_id", externalID))
		o.notifyError(client, msgResolutionFailed)
		return err
	}

	stream, err := o.admitAndStart(ctx, user, message, client)
	if err != nil {
		return err
	}

	acc := &responseAccumulator{}
	return o.relay(ctx, user, stream, client, acc)
}

// admitAndStart clears the thread of any prior run and starts the new one.
// The per-thread lock covers admission through run creation only: relaying
// happens outside it, so a later turn on the same thread observes the live
// run and goes through the bounded cancel-and-poll path instead of waiting
// on the lock for the whole generation.
func (o *Orchestrator) admitAndStart(ctx context.Context, user *ResolvedUser, message string, client Notifier) (assistant.Stream, error) {
	unlock := o.lockThread(user.ThreadID)
	defer unlock()

	if err := o.admit(ctx, user.ThreadID); err != nil {
		if errors.Is(err, ErrThreadBusy) {
			o.logger.Warn("Thread busy, turn rejected",
				zap.String("thread_id", user.ThreadID),
				zap.Int64("user_id", user.InternalID))
			o.notifyError(client, msgBusy)
		} else {
			o.logger.Error("Run admission failed",
				zap.Error(err),
				zap.String("thread_id", user.ThreadID))
			o.notifyError(client, msgTurnFailed)
		}
		return nil, err
	}

	// The priming message keeps the assistant addressing the user by name,
	// the same shape the frontend expects from the first reply onward.
	if err := o.ai.CreateMessage(ctx, user.ThreadID, models.RoleAssistant, primingMessage(user.Name)); err != nil {
		o.logger.Error("Failed to post priming message",
			zap.Error(err),
			zap.String("thread_id", user.ThreadID))
		o.notifyError(client, msgTurnFailed)
		return nil, err
	}

	if err := o.ai.CreateMessage(ctx, user.ThreadID, models.RoleUser, message); err != nil {
		o.logger.Error("Failed to post user message",
			zap.Error(err),
			zap.String("thread_id", user.ThreadID))
		o.notifyError(client, msgTurnFailed)
		return nil, err
	}

	o.persist(ctx, user.InternalID, models.RoleUser, message)

	stream, err := o.ai.StreamRun(ctx, user.ThreadID)
	if err != nil {
		o.logger.Error("Failed to start run",
			zap.Error(err),
			zap.String("thread_id", user.ThreadID))
		o.notifyError(client, msgTurnFailed)
		return nil, err
	}

	return stream, nil
}

// persist appends one transcript entry, best effort: the streamed response
// already reached the client, so store failures are logged and swallowed.
func (o *Orchestrator) persist(ctx context.Context, userID int64, role, content string) {
	err := o.transcripts.AppendMessage(ctx, userID, models.ChatMessage{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	if err != nil {
		o.logger.Error("Failed to append transcript message",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("role", role))
	}
}

func (o *Orchestrator) notifyError(client Notifier, message string) {
	if err := client.NotifyError(message); err != nil {
		o.logger.Error("Failed to deliver error notification", zap.Error(err))
	}
}

// lockThread serializes turn handling per thread id within this process.
// The remote service's run status stays the source of truth; this only
// closes the window where two connections of the same user race admission.
func (o *Orchestrator) lockThread(threadID string) func() {
	o.mu.Lock()
	lock, exists := o.threadLocks[threadID]
	if !exists {
		lock = &threadLock{}
		o.threadLocks[threadID] = lock
	}
	lock.refs++
	o.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		o.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(o.threadLocks, threadID)
		}
		o.mu.Unlock()
	}
}

func primingMessage(name string) string {
	prompt := `You are a helpful AI assistant for user queries.
- Do not generate code.
- Mention the user's name in the initial first message.
- Mention the user's name no more than twice.`
	if name != "" {
		prompt = fmt.Sprintf("%s\n- The current user is %s.", prompt, name)
	}
	return prompt
}
