package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/skillsynx/chatrelay/internal/assistant"
	"go.uber.org/zap"
)

// ResolvedUser is the per-connection conversation context. It is returned
// to the caller and passed explicitly; it must never be cached in shared
// process-wide state.
type ResolvedUser struct {
	InternalID int64
	Name       string
	ThreadID   string
}

// ResolveThread maps an external identity to a live AI-service thread,
// creating and persisting a fresh thread when none exists or the stored id
// turned stale. At most one directory write happens per resolution, and a
// repeated resolution with a live thread writes nothing.
func (o *Orchestrator) ResolveThread(ctx context.Context, externalID string) (*ResolvedUser, error) {
	user, err := o.users.GetUserByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %q: %w", externalID, err)
	}

	if user.ThreadID != "" {
		err := o.ai.RetrieveThread(ctx, user.ThreadID)
		if err == nil {
			return &ResolvedUser{InternalID: user.ID, Name: user.Name, ThreadID: user.ThreadID}, nil
		}
		if !errors.Is(err, assistant.ErrThreadNotFound) {
			return nil, fmt.Errorf("failed to probe thread %s: %w", user.ThreadID, err)
		}
		o.logger.Info("Stored thread no longer exists, creating a new one",
			zap.String("thread_id", user.ThreadID),
			zap.Int64("user_id", user.ID))
	}

	threadID, err := o.ai.CreateThread(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}

	if err := o.users.SetUserThread(ctx, user.ID, threadID); err != nil {
		return nil, fmt.Errorf("failed to persist thread %s: %w", threadID, err)
	}

	return &ResolvedUser{InternalID: user.ID, Name: user.Name, ThreadID: threadID}, nil
}
