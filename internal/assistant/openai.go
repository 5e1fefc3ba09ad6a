package assistant

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/skillsynx/chatrelay/internal/models"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIClient implements Client against the OpenAI Assistants API.
//
// Thread, message and run management go through go-openai. The two streaming
// endpoints (start run, submit tool outputs) are not covered by go-openai,
// so they are raw SSE requests decoded into go-openai's run type.
type OpenAIClient struct {
	client      *openai.Client
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	assistantID string
	logger      *zap.Logger
}

func NewOpenAIClient(apiKey, assistantID, baseURL string, logger *zap.Logger) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	config.AssistantVersion = "v2"

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(config),
		httpClient:  &http.Client{}, // no overall timeout: runs may stream for minutes
		apiKey:      apiKey,
		baseURL:     baseURL,
		assistantID: assistantID,
		logger:      logger,
	}
}

func (c *OpenAIClient) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	return thread.ID, nil
}

func (c *OpenAIClient) RetrieveThread(ctx context.Context, threadID string) error {
	_, err := c.client.RetrieveThread(ctx, threadID)
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
		return ErrThreadNotFound
	}
	return fmt.Errorf("failed to retrieve thread %s: %w", threadID, err)
}

func (c *OpenAIClient) CreateMessage(ctx context.Context, threadID, role, content string) error {
	_, err := c.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    role,
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("failed to create message on thread %s: %w", threadID, err)
	}
	return nil
}

func (c *OpenAIClient) ListRuns(ctx context.Context, threadID string, limit int) ([]Run, error) {
	list, err := c.client.ListRuns(ctx, threadID, openai.Pagination{Limit: &limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs on thread %s: %w", threadID, err)
	}

	runs := make([]Run, 0, len(list.Runs))
	for _, run := range list.Runs {
		runs = append(runs, convertRun(run))
	}
	return runs, nil
}

func (c *OpenAIClient) RetrieveRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := c.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return Run{}, fmt.Errorf("failed to retrieve run %s: %w", runID, err)
	}
	return convertRun(run), nil
}

func (c *OpenAIClient) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := c.client.CancelRun(ctx, threadID, runID); err != nil {
		return fmt.Errorf("failed to cancel run %s: %w", runID, err)
	}
	return nil
}

func (c *OpenAIClient) StreamRun(ctx context.Context, threadID string) (Stream, error) {
	body := map[string]any{
		"assistant_id": c.assistantID,
		"stream":       true,
	}
	url := fmt.Sprintf("%s/threads/%s/runs", c.baseURL, threadID)
	return c.openStream(ctx, url, body)
}

func (c *OpenAIClient) SubmitToolOutputsStream(ctx context.Context, threadID, runID string, outputs []models.ToolOutput) (Stream, error) {
	if outputs == nil {
		outputs = []models.ToolOutput{}
	}
	body := map[string]any{
		"tool_outputs": outputs,
		"stream":       true,
	}
	url := fmt.Sprintf("%s/threads/%s/runs/%s/submit_tool_outputs", c.baseURL, threadID, runID)
	return c.openStream(ctx, url, body)
}

func (c *OpenAIClient) openStream(ctx context.Context, url string, body map[string]any) (Stream, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	// Full run objects arrive as single data lines and can exceed the
	// scanner's default 64KB token limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseStream{resp: resp, scanner: scanner, logger: c.logger}, nil
}

// sseStream reads the Assistants streaming wire format: SSE frames whose data
// payloads are JSON objects self-describing via their "object" field.
type sseStream struct {
	resp    *http.Response
	scanner *bufio.Scanner
	logger  *zap.Logger

	pending []StreamEvent
	done    bool
}

func (s *sseStream) Next(ctx context.Context) (StreamEvent, error) {
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			if ev.Type == EventDone {
				s.done = true
			}
			return ev, nil
		}
		if s.done {
			return StreamEvent{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return StreamEvent{}, err
		}

		eventName := ""
		for s.scanner.Scan() {
			line := s.scanner.Text()

			if strings.HasPrefix(line, "event: ") {
				eventName = strings.TrimPrefix(line, "event: ")
				continue
			}
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}

			jsonData := strings.TrimPrefix(line, "data: ")
			if jsonData == "[DONE]" {
				s.pending = append(s.pending, StreamEvent{Type: EventDone})
				break
			}
			if eventName == "error" {
				return StreamEvent{}, fmt.Errorf("stream error event: %s", jsonData)
			}

			if err := s.decodeData(jsonData); err != nil {
				return StreamEvent{}, err
			}
			if len(s.pending) > 0 {
				break
			}
			eventName = ""
		}

		if len(s.pending) > 0 {
			continue
		}
		if err := s.scanner.Err(); err != nil {
			return StreamEvent{}, fmt.Errorf("failed to read streaming response: %w", err)
		}
		// Body ended without a [DONE] frame; treat as end of stream.
		return StreamEvent{}, io.EOF
	}
}

func (s *sseStream) decodeData(jsonData string) error {
	var envelope struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal([]byte(jsonData), &envelope); err != nil {
		return fmt.Errorf("failed to decode streaming response: %w, data: %s", err, jsonData)
	}

	switch envelope.Object {
	case "thread.message.delta":
		var delta messageDelta
		if err := json.Unmarshal([]byte(jsonData), &delta); err != nil {
			return fmt.Errorf("failed to decode message delta: %w", err)
		}
		for _, part := range delta.Delta.Content {
			if part.Text.Value != "" {
				s.pending = append(s.pending, StreamEvent{Type: EventTextDelta, Text: part.Text.Value})
			}
		}
	case "thread.run":
		var run openai.Run
		if err := json.Unmarshal([]byte(jsonData), &run); err != nil {
			return fmt.Errorf("failed to decode run event: %w", err)
		}
		converted := convertRun(run)
		switch converted.Status {
		case models.RunStatusRequiresAction:
			s.pending = append(s.pending, StreamEvent{Type: EventRequiresAction, Run: &converted})
		case models.RunStatusCompleted:
			s.pending = append(s.pending, StreamEvent{Type: EventRunCompleted, Run: &converted})
		case models.RunStatusFailed, models.RunStatusCancelled, models.RunStatusExpired:
			s.pending = append(s.pending, StreamEvent{Type: EventRunFailed, Run: &converted})
		}
	default:
		// Run steps, message lifecycle and thread events are not relayed.
	}

	return nil
}

func (s *sseStream) Close() error {
	return s.resp.Body.Close()
}

type messageDelta struct {
	Object string `json:"object"`
	Delta  struct {
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"delta"`
}

func convertRun(run openai.Run) Run {
	converted := Run{
		ID:       run.ID,
		ThreadID: run.ThreadID,
		Status:   models.RunStatus(run.Status),
	}

	if run.RequiredAction != nil && run.RequiredAction.SubmitToolOutputs != nil {
		for _, call := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
			converted.PendingToolCalls = append(converted.PendingToolCalls, models.ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
	}

	return converted
}
