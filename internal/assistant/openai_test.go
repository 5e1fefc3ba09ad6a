package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/skillsynx/chatrelay/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAIClient("test-key", "asst_123", server.URL, zap.NewNop())
}

func drainStream(t *testing.T, stream Stream) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	for {
		ev, err := stream.Next(context.Background())
		if err == io.EOF {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestStreamRunDecodesDeltasAndCompletion(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/threads/thread-1/runs", r.URL.Path)
		assert.Equal(t, "assistants=v2", r.Header.Get("OpenAI-Beta"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "asst_123", body["assistant_id"])
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `event: thread.run.created
data: {"id":"run-1","object":"thread.run","thread_id":"thread-1","status":"queued"}

event: thread.message.delta
data: {"id":"msg-1","object":"thread.message.delta","delta":{"content":[{"index":0,"type":"text","text":{"value":"Hel"}}]}}

event: thread.message.delta
data: {"id":"msg-1","object":"thread.message.delta","delta":{"content":[{"index":0,"type":"text","text":{"value":"lo, "}}]}}

event: thread.message.delta
data: {"id":"msg-1","object":"thread.message.delta","delta":{"content":[{"index":0,"type":"text","text":{"value":"World"}}]}}

event: thread.run.completed
data: {"id":"run-1","object":"thread.run","thread_id":"thread-1","status":"completed"}

event: done
data: [DONE]

`)
	})

	stream, err := client.StreamRun(context.Background(), "thread-1")
	require.NoError(t, err)
	defer stream.Close()

	events := drainStream(t, stream)
	require.Len(t, events, 5)

	var text string
	for _, ev := range events[:3] {
		require.Equal(t, EventTextDelta, ev.Type)
		text += ev.Text
	}
	assert.Equal(t, "Hello, World", text)

	assert.Equal(t, EventRunCompleted, events[3].Type)
	require.NotNil(t, events[3].Run)
	assert.Equal(t, models.RunStatusCompleted, events[3].Run.Status)
	assert.Equal(t, EventDone, events[4].Type)
}

func TestStreamRunDecodesRequiresAction(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `event: thread.run.requires_action
data: {"id":"run-1","object":"thread.run","thread_id":"thread-1","status":"requires_action","required_action":{"type":"submit_tool_outputs","submit_tool_outputs":{"tool_calls":[{"id":"call-1","type":"function","function":{"name":"get_file_data","arguments":"{\"input\":\"What is this product?\"}"}}]}}}

event: done
data: [DONE]

`)
	})

	stream, err := client.StreamRun(context.Background(), "thread-1")
	require.NoError(t, err)
	defer stream.Close()

	events := drainStream(t, stream)
	require.Len(t, events, 2)

	require.Equal(t, EventRequiresAction, events[0].Type)
	require.NotNil(t, events[0].Run)
	assert.Equal(t, "run-1", events[0].Run.ID)
	require.Len(t, events[0].Run.PendingToolCalls, 1)
	call := events[0].Run.PendingToolCalls[0]
	assert.Equal(t, "call-1", call.ID)
	assert.Equal(t, "get_file_data", call.Name)
	assert.JSONEq(t, `{"input":"What is this product?"}`, call.Arguments)
}

func TestStreamRunReadsOversizedDataLines(t *testing.T) {
	big := strings.Repeat("x", 128*1024)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: thread.message.delta\n")
		io.WriteString(w, `data: {"id":"msg-1","object":"thread.message.delta","delta":{"content":[{"index":0,"type":"text","text":{"value":"`+big+`"}}]}}`)
		io.WriteString(w, "\n\nevent: done\ndata: [DONE]\n\n")
	})

	stream, err := client.StreamRun(context.Background(), "thread-1")
	require.NoError(t, err)
	defer stream.Close()

	events := drainStream(t, stream)
	require.Len(t, events, 2)
	require.Equal(t, EventTextDelta, events[0].Type)
	assert.Len(t, events[0].Text, 128*1024)
	assert.Equal(t, EventDone, events[1].Type)
}

func TestStreamRunSurfacesErrorEvents(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `event: error
data: {"error":{"message":"server overloaded"}}

`)
	})

	stream, err := client.StreamRun(context.Background(), "thread-1")
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server overloaded")
}

func TestSubmitToolOutputsStreamSendsBatch(t *testing.T) {
	var received struct {
		ToolOutputs []models.ToolOutput `json:"tool_outputs"`
		Stream      bool                `json:"stream"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/threads/thread-1/runs/run-1/submit_tool_outputs", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: done\ndata: [DONE]\n\n")
	})

	outputs := []models.ToolOutput{{ToolCallID: "call-1", Output: "an answer"}}
	stream, err := client.SubmitToolOutputsStream(context.Background(), "thread-1", "run-1", outputs)
	require.NoError(t, err)
	defer stream.Close()

	events := drainStream(t, stream)
	require.Len(t, events, 1)
	assert.Equal(t, EventDone, events[0].Type)

	assert.True(t, received.Stream)
	require.Len(t, received.ToolOutputs, 1)
	assert.Equal(t, "call-1", received.ToolOutputs[0].ToolCallID)
	assert.Equal(t, "an answer", received.ToolOutputs[0].Output)
}

func TestSubmitToolOutputsStreamSendsEmptyBatch(t *testing.T) {
	var body map[string]json.RawMessage
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: done\ndata: [DONE]\n\n")
	})

	stream, err := client.SubmitToolOutputsStream(context.Background(), "thread-1", "run-1", nil)
	require.NoError(t, err)
	defer stream.Close()
	drainStream(t, stream)

	// A nil batch still serializes as an empty array, never as null.
	assert.JSONEq(t, `[]`, string(body["tool_outputs"]))
}

func TestRetrieveThreadMapsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"message":"No thread found with id 'thread-gone'.","type":"invalid_request_error"}}`)
	})

	err := client.RetrieveThread(context.Background(), "thread-gone")
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestStreamRunRejectsNonOKResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"run already active"}}`)
	})

	_, err := client.StreamRun(context.Background(), "thread-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run already active")
}
