package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/skillsynx/chatrelay/internal/assistant"
	"github.com/skillsynx/chatrelay/internal/models"
	"go.uber.org/zap"
)

// responseAccumulator collects the full assistant reply across stream
// segments. A tool-call round re-enters the relay with the same accumulator
// because the resumed run continues the same client-visible response.
type responseAccumulator struct {
	builder strings.Builder
}

func (a *responseAccumulator) Append(text string) { a.builder.WriteString(text) }
func (a *responseAccumulator) String() string     { return a.builder.String() }

// relay forwards stream events to the client in arrival order. Text deltas
// go out as partial chat responses; completion emits the terminal event
// exactly once, always last, then persists the assistant turn. A stream
// error aborts without persisting the partial reply.
func (o *Orchestrator) relay(ctx context.Context, user *ResolvedUser, stream assistant.Stream, client Notifier, acc *responseAccumulator) error {
	defer stream.Close()

	for {
		event, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return o.completeResponse(ctx, user, client, acc)
			}
			o.logger.Error("Stream error",
				zap.Error(err),
				zap.String("thread_id", user.ThreadID))
			o.notifyError(client, msgStreamFailed)
			return err
		}

		switch event.Type {
		case assistant.EventTextDelta:
			acc.Append(event.Text)
			if err := client.ChatDelta(event.Text); err != nil {
				o.logger.Error("Failed to deliver chat delta",
					zap.Error(err),
					zap.String("thread_id", user.ThreadID))
				return err
			}

		case assistant.EventRequiresAction:
			// The paused run owns the stream's tail; resolve its tool calls
			// and continue relaying from the resumed stream.
			stream.Close()
			return o.resolveToolCalls(ctx, user, event.Run, client, acc)

		case assistant.EventRunFailed:
			status := models.RunStatusFailed
			if event.Run != nil {
				status = event.Run.Status
			}
			o.logger.Error("Run ended without completing",
				zap.String("thread_id", user.ThreadID),
				zap.String("status", string(status)))
			o.notifyError(client, msgStreamFailed)
			return fmt.Errorf("run ended with status %s", status)

		case assistant.EventRunCompleted:
			// The done event follows and closes out the stream.

		case assistant.EventDone:
			return o.completeResponse(ctx, user, client, acc)
		}
	}
}

func (o *Orchestrator) completeResponse(ctx context.Context, user *ResolvedUser, client Notifier, acc *responseAccumulator) error {
	full := acc.String()
	if err := client.StreamComplete(full); err != nil {
		o.logger.Error("Failed to deliver terminal response",
			zap.Error(err),
			zap.String("thread_id", user.ThreadID))
		return err
	}

	o.persist(ctx, user.InternalID, models.RoleAssistant, full)
	return nil
}
