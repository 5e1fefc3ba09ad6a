package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skillsynx/chatrelay/internal/assistant"
	"github.com/skillsynx/chatrelay/internal/models"
	"go.uber.org/zap"
)

// KnowledgeToolName is the capability the assistant invokes to pull product
// information from the knowledge base.
const KnowledgeToolName = "get_file_data"

// ToolHandler resolves one tool call's raw JSON arguments into an output.
type ToolHandler func(ctx context.Context, arguments string) (string, error)

// ToolRegistry is the closed set of capabilities this orchestrator can
// answer. Calls naming anything else are dropped from the output batch.
type ToolRegistry struct {
	handlers map[string]ToolHandler
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{handlers: make(map[string]ToolHandler)}
}

func (r *ToolRegistry) Register(name string, handler ToolHandler) {
	r.handlers[name] = handler
}

func (r *ToolRegistry) handler(name string) (ToolHandler, bool) {
	handler, ok := r.handlers[name]
	return handler, ok
}

// KnowledgeLookup answers free-text queries grounded in a fixed document.
type KnowledgeLookup interface {
	Lookup(ctx context.Context, query string) (string, error)
}

// KnowledgeToolHandler adapts a KnowledgeLookup to the tool-call argument
// shape `{"input": "..."}` the assistant sends.
func KnowledgeToolHandler(kb KnowledgeLookup) ToolHandler {
	return func(ctx context.Context, arguments string) (string, error) {
		var args struct {
			Input string `json:"input"`
		}
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("failed to parse tool arguments: %w", err)
		}
		return kb.Lookup(ctx, args.Input)
	}
}

// resolveToolCalls answers a paused run's tool calls and resumes it. The
// output batch is always submitted, even when empty or partially resolved:
// an unanswered batch leaves the run stalled in requires_action forever.
func (o *Orchestrator) resolveToolCalls(ctx context.Context, user *ResolvedUser, run *assistant.Run, client Notifier, acc *responseAccumulator) error {
	if run == nil {
		return fmt.Errorf("requires_action event carried no run")
	}

	outputs := make([]models.ToolOutput, 0, len(run.PendingToolCalls))
	for _, call := range run.PendingToolCalls {
		handler, supported := o.tools.handler(call.Name)
		if !supported {
			o.logger.Warn("Dropping unsupported tool call",
				zap.String("run_id", run.ID),
				zap.String("tool", call.Name))
			continue
		}

		output, err := handler(ctx, call.Arguments)
		if err != nil {
			o.logger.Error("Tool call resolution failed",
				zap.Error(err),
				zap.String("run_id", run.ID),
				zap.String("tool", call.Name))
			continue
		}

		outputs = append(outputs, models.ToolOutput{ToolCallID: call.ID, Output: output})
	}

	stream, err := o.ai.SubmitToolOutputsStream(ctx, user.ThreadID, run.ID, outputs)
	if err != nil {
		o.logger.Error("Failed to submit tool outputs",
			zap.Error(err),
			zap.String("run_id", run.ID))
		o.notifyError(client, msgStreamFailed)
		return err
	}

	return o.relay(ctx, user, stream, client, acc)
}
