package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skillsynx/chatrelay/internal/assistant"
	"github.com/skillsynx/chatrelay/internal/models"
	"go.uber.org/zap"
)

// ErrThreadBusy means a prior run stayed non-terminal through the whole
// polling window. The turn was not posted; the client may simply retry.
var ErrThreadBusy = errors.New("thread busy with an active run")

// How many recent runs to scan for a live one. The service keeps at most
// one non-terminal run per thread, so a small page is enough.
const activeRunScanLimit = 10

// admit blocks until threadID has no non-terminal run, or fails with
// ErrThreadBusy. The service rejects new messages while a run is active and
// offers no wait primitive, so admission is cooperative cancellation plus
// bounded polling. admit never creates runs; HandleTurn is the only run
// creation path.
func (o *Orchestrator) admit(ctx context.Context, threadID string) error {
	runs, err := o.ai.ListRuns(ctx, threadID, activeRunScanLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	var active *assistant.Run
	for i := range runs {
		if !runs[i].Status.Terminal() {
			active = &runs[i]
			break
		}
	}
	if active == nil {
		return nil
	}

	o.logger.Info("Active run found on thread, cancelling before new turn",
		zap.String("thread_id", threadID),
		zap.String("run_id", active.ID),
		zap.String("status", string(active.Status)))

	if active.Status != models.RunStatusCancelling {
		// The polling loop below is authoritative; a failed cancel request
		// just means we wait for the run to finish on its own.
		if err := o.ai.CancelRun(ctx, threadID, active.ID); err != nil {
			o.logger.Warn("Cancel request failed",
				zap.Error(err),
				zap.String("run_id", active.ID))
		}
	}

	for attempt := 1; attempt <= o.maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.pollInterval):
		}

		run, err := o.ai.RetrieveRun(ctx, threadID, active.ID)
		if err != nil {
			// Conservative: without a readable status, reporting busy beats
			// risking a second concurrent run.
			o.logger.Warn("Run retrieval failed while awaiting quiescence",
				zap.Error(err),
				zap.String("run_id", active.ID),
				zap.Int("attempt", attempt))
			return ErrThreadBusy
		}

		if run.Status.Terminal() {
			o.logger.Info("Thread quiescent, turn admitted",
				zap.String("thread_id", threadID),
				zap.String("run_id", active.ID),
				zap.String("final_status", string(run.Status)),
				zap.Int("polls", attempt))
			return nil
		}
	}

	return ErrThreadBusy
}
