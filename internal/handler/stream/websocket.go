package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/cycore-edu/cycore/backend/internal/identity"
	"github.com/cycore-edu/cycore/backend/internal/logger"
	chatService "github.com/cycore-edu/cycore/backend/internal/service/chat"
	tutorService "github.com/cycore-edu/cycore/backend/internal/service/tutor"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	writeWait  = 10 * time.Second
)

// WebSocketHandler runs turns over a long-lived socket.
type WebSocketHandler struct {
	chatSvc  *chatService.Service
	tutorSvc *tutorService.Service
	log      *logger.Logger
	upgrader websocket.Upgrader
	pongWait time.Duration
}

// NewWebSocketHandler creates the socket handler. checkOrigin may be nil to
// accept any origin.
func NewWebSocketHandler(chatSvc *chatService.Service, tutorSvc *tutorService.Service, checkOrigin func(*http.Request) bool, log *logger.Logger) *WebSocketHandler {
	if log == nil {
		log = logger.Nop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WebSocketHandler{
		chatSvc:  chatSvc,
		tutorSvc: tutorSvc,
		log:      log.With("handler", "websocket"),
		pongWait: pongWait,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the socket route.
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

type outgoingMessage struct {
	Type           string                   `json:"type"`
	ConversationID string                   `json:"conversationId,omitempty"`
	Content        string                   `json:"content,omitempty"`
	Error          string                   `json:"error,omitempty"`
	Result         *tutorService.TurnResult `json:"result,omitempty"`
}

func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "unknown caller", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	go h.pingLoop(ctx, conn)

	h.log.Debug("websocket connected", "user_id", user.ID)
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read error", "error", err)
			}
			return
		}
		switch msg.Type {
		case "turn":
			h.handleTurn(ctx, conn, user, msg)
		default:
			h.send(conn, outgoingMessage{Type: "error", Error: "unsupported message type: " + msg.Type})
		}
		// Pongs are only processed inside reads, so a long turn must not eat
		// into the next read's deadline.
		_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	}
}

func (h *WebSocketHandler) handleTurn(ctx context.Context, conn *websocket.Conn, user identity.User, msg inboundMessage) {
	err := h.chatSvc.Do(ctx, user, func(sess *chatService.Session) error {
		id := msg.ConversationID
		if id == "" {
			id = h.chatSvc.Active(ctx, sess).ID
		}

		result, err := h.tutorSvc.HandleTurnIn(ctx, sess, id, msg.Message, func(delta string) {
			h.send(conn, outgoingMessage{Type: "delta", ConversationID: id, Content: delta})
		})
		if err != nil {
			return err
		}

		for _, reply := range result.Replies {
			h.send(conn, outgoingMessage{Type: "message", ConversationID: id, Content: reply})
		}
		h.send(conn, outgoingMessage{Type: "done", ConversationID: id, Result: &result})
		return nil
	})
	if err != nil {
		h.send(conn, outgoingMessage{Type: "error", ConversationID: msg.ConversationID, Error: describe(err)})
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, msg outgoingMessage) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.log.Debug("websocket write failed", "error", err)
	}
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
