// Package server exposes the orchestrator over a browser-facing websocket.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skillsynx/chatrelay/internal/orchestrator"
	"go.uber.org/zap"
)

type Server struct {
	orc           *orchestrator.Orchestrator
	logger        *zap.Logger
	allowedOrigin string
	httpServer    *http.Server
	upgrader      websocket.Upgrader
}

func New(orc *orchestrator.Orchestrator, port int, allowedOrigin string, logger *zap.Logger) *Server {
	s := &Server{
		orc:           orc,
		logger:        logger,
		allowedOrigin: allowedOrigin,
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("WebSocket server running", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// checkOrigin allows only the configured frontend origin. An empty
// configuration allows everything, matching a development setup.
func (s *Server) checkOrigin(r *http.Request) bool {
	if s.allowedOrigin == "" {
		return true
	}
	return r.Header.Get("Origin") == s.allowedOrigin
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "WebSocket server is running")
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	sess := newSession(conn, s.logger)
	s.logger.Info("Client connected", zap.String("connection_id", sess.id))

	go sess.writeLoop()
	s.readLoop(r.Context(), sess)

	sess.close()
	s.logger.Info("Client disconnected", zap.String("connection_id", sess.id))
}

// readLoop handles inbound frames sequentially: within one connection a
// turn fully completes before the next frame is read, which keeps the
// turn's operations strictly ordered.
func (s *Server) readLoop(ctx context.Context, sess *session) {
	for {
		var msg inboundMessage
		if err := sess.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Connection read error",
					zap.Error(err),
					zap.String("connection_id", sess.id))
			}
			return
		}

		switch msg.Type {
		case "chat_message":
			if msg.User == "" || msg.Message == "" {
				sess.NotifyError("Both message and user are required")
				continue
			}
			if err := s.orc.HandleTurn(ctx, msg.User, msg.Message, sess); err != nil {
				s.logger.Warn("Turn failed",
					zap.Error(err),
					zap.String("connection_id", sess.id),
					zap.String("user", msg.User))
			}
		default:
			sess.NotifyError("Unknown message type")
		}
	}
}
