package models

import "time"

// Message roles as stored in transcripts and posted to the AI service.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User represents a SkillSynx user with their AI conversation thread.
// Users are created by the auth flow; this service only ever sets ThreadID.
type User struct {
	ID         int64     `json:"id"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email,omitempty"`
	Industry   string    `json:"industry,omitempty"`
	Skills     []string  `json:"skills,omitempty"`
	ThreadID   string    `json:"thread_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ChatMessage is a single turn in a user's transcript.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Transcript is the ordered chat history owned by one user.
type Transcript struct {
	UserID   int64         `json:"user_id"`
	Messages []ChatMessage `json:"messages"`
}

// RunStatus mirrors the AI service's run lifecycle states.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusExpired        RunStatus = "expired"
)

// Terminal reports whether a run in this status will never transition again.
// Anything outside the four live states counts as terminal so that unknown
// statuses from the service never wedge run admission.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusQueued, RunStatusInProgress, RunStatusRequiresAction, RunStatusCancelling:
		return false
	}
	return true
}

// ToolCall is a run's mid-execution request for external data.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolOutput answers one ToolCall when resuming a paused run.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}
