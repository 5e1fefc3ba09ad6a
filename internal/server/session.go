package server

import (
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skillsynx/chatrelay/internal/models"
	"go.uber.org/zap"
)

type inboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	User    string `json:"user"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Role    string `json:"role,omitempty"`
	Partial bool   `json:"partial,omitempty"`
	Message string `json:"message,omitempty"`
}

// session is the per-connection context: its id, its socket, and a single
// writer goroutine that serializes outbound frames. Conversation state
// resolved for this connection stays on this struct's call paths and is
// never shared across connections.
type session struct {
	id     string
	conn   *websocket.Conn
	send   chan outboundMessage
	done   chan struct{}
	logger *zap.Logger
}

func newSession(conn *websocket.Conn, logger *zap.Logger) *session {
	return &session{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan outboundMessage, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case msg := <-s.send:
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Warn("Failed to write to client",
					zap.Error(err),
					zap.String("connection_id", s.id))
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) close() {
	close(s.done)
	s.conn.Close()
}

func (s *session) enqueue(msg outboundMessage) error {
	select {
	case s.send <- msg:
		return nil
	case <-s.done:
		return websocket.ErrCloseSent
	}
}

// ChatDelta implements orchestrator.Notifier.
func (s *session) ChatDelta(content string) error {
	return s.enqueue(outboundMessage{
		Type:    "chat_response",
		Content: content,
		Role:    models.RoleAssistant,
		Partial: true,
	})
}

// StreamComplete implements orchestrator.Notifier.
func (s *session) StreamComplete(content string) error {
	return s.enqueue(outboundMessage{
		Type:    "stream_complete",
		Content: content,
		Role:    models.RoleAssistant,
	})
}

// NotifyError implements orchestrator.Notifier.
func (s *session) NotifyError(message string) error {
	return s.enqueue(outboundMessage{
		Type:    "error",
		Message: message,
	})
}
