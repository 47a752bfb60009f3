// Package ws serves the chat over WebSocket connections.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/config"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/domain"
	"github.com/Miguel0728/ChatBot-AI-V2/internal/service"
)

// Server handles WebSocket connections.
type Server struct {
	ctx      context.Context
	cfg      *config.Config
	hub      *Hub
	service  *service.Service
	upgrader websocket.Upgrader
	logger   *slog.Logger

	turns sync.WaitGroup
}

// NewServer creates a new WebSocket server. Chat turns started by clients
// run under ctx, so they finish even if the client goes away.
func NewServer(ctx context.Context, cfg *config.Config, h *Hub, svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ctx:     ctx,
		cfg:     cfg,
		hub:     h,
		service: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With("component", "ws"),
	}
}

// RegisterRoutes registers the websocket endpoint.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", s.HandleWebSocket)
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", "error", err)
		return nil
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.WSMaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)
	return nil
}

// Wait blocks until in-flight chat turns have finished.
func (s *Server) Wait() {
	s.turns.Wait()
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed", "connection_id", conn.ID, "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout))
		s.handleMessage(conn, message)
	}
}

// writePump writes queued messages and keeps the connection alive with pings.
func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.cfg.WSPingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("failed to write message", "connection_id", conn.ID, "error", err)
				return
			}

		case <-conn.Closed():
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *Connection, data []byte) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		s.sendError(conn, conn.SessionID, "", ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	switch base.Type {
	case TypeHello:
		s.handleHello(conn, data)
	case TypeChat:
		s.handleChat(conn, data)
	case TypeClear:
		s.handleClear(conn, base)
	case TypeHistory:
		s.handleHistory(conn, base)
	default:
		s.sendError(conn, conn.SessionID, base.RequestID, ErrorCodeInvalidMessage, "unknown message type: "+base.Type)
	}
}

// handleHello binds the connection to a session, starting a new one when
// none is given or the given one was wiped.
func (s *Server) handleHello(conn *Connection, data []byte) {
	var msg HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, conn.SessionID, "", ErrorCodeInvalidMessage, "invalid hello message")
		return
	}

	sessionID := msg.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	_, err := s.service.EnsureSession(s.ctx, sessionID)
	if domain.KindOf(err) == domain.KindRetired {
		sessionID = uuid.New().String()
		_, err = s.service.EnsureSession(s.ctx, sessionID)
	}
	if err != nil {
		s.sendServiceError(conn, conn.SessionID, msg.RequestID, err)
		return
	}

	s.hub.BindSession(conn, sessionID)
	s.hub.SendJSONToConnection(conn, BaseMessage{
		Type:      TypeHelloAck,
		Ts:        time.Now().UnixMilli(),
		RequestID: msg.RequestID,
		SessionID: sessionID,
	})
	s.logger.Info("hello handshake completed", "connection_id", conn.ID, "session_id", sessionID)
}

// handleChat runs a chat turn without blocking the read loop. The reply goes
// to every connection bound to the session.
func (s *Server) handleChat(conn *Connection, data []byte) {
	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, conn.SessionID, "", ErrorCodeInvalidMessage, "invalid chat message")
		return
	}
	if conn.SessionID == "" {
		s.sendError(conn, conn.SessionID, msg.RequestID, ErrorCodeSessionRequired, "must send hello first")
		return
	}

	sessionID := conn.SessionID
	s.turns.Add(1)
	go func() {
		defer s.turns.Done()

		result, err := s.service.Chat(s.ctx, sessionID, msg.Content)
		if err != nil {
			s.sendServiceError(conn, sessionID, msg.RequestID, err)
			return
		}
		s.hub.BroadcastJSON(sessionID, ReplyMessage{
			BaseMessage: BaseMessage{
				Type:      TypeReply,
				Ts:        time.Now().UnixMilli(),
				RequestID: msg.RequestID,
				SessionID: sessionID,
			},
			Content:    result.Reply,
			TokensUsed: result.TokensUsed,
		})
	}()
}

func (s *Server) handleClear(conn *Connection, msg BaseMessage) {
	if conn.SessionID == "" {
		s.sendError(conn, conn.SessionID, msg.RequestID, ErrorCodeSessionRequired, "must send hello first")
		return
	}
	if err := s.service.ClearConversation(s.ctx, conn.SessionID); err != nil {
		s.sendServiceError(conn, conn.SessionID, msg.RequestID, err)
		return
	}
	s.hub.BroadcastJSON(conn.SessionID, BaseMessage{
		Type:      TypeCleared,
		Ts:        time.Now().UnixMilli(),
		RequestID: msg.RequestID,
		SessionID: conn.SessionID,
	})
}

func (s *Server) handleHistory(conn *Connection, msg BaseMessage) {
	if conn.SessionID == "" {
		s.sendError(conn, conn.SessionID, msg.RequestID, ErrorCodeSessionRequired, "must send hello first")
		return
	}
	history, err := s.service.GetDisplayHistory(s.ctx, conn.SessionID, s.cfg.HistoryLimit)
	if err != nil {
		s.sendServiceError(conn, conn.SessionID, msg.RequestID, err)
		return
	}
	s.hub.SendJSONToConnection(conn, HistoryMessage{
		BaseMessage: BaseMessage{
			Type:      TypeHistory,
			Ts:        time.Now().UnixMilli(),
			RequestID: msg.RequestID,
			SessionID: conn.SessionID,
		},
		History: history,
	})
}

// sendServiceError reports a conversation error. Gateway and storage
// details are not sent to the client.
func (s *Server) sendServiceError(conn *Connection, sessionID, requestID string, err error) {
	kind := domain.KindOf(err)
	code := errorCode(kind)
	message := "internal error"
	if code != ErrorCodeInternal {
		var de *domain.Error
		message = err.Error()
		if errors.As(err, &de) && de.Err != nil {
			message = de.Err.Error()
		}
	}
	s.sendError(conn, sessionID, requestID, code, message)
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *Connection, sessionID, requestID, code, message string) {
	s.hub.SendJSONToConnection(conn, ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      TypeError,
			Ts:        time.Now().UnixMilli(),
			RequestID: requestID,
			SessionID: sessionID,
		},
		Code:    code,
		Message: message,
	})
}
