package stream

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cycore-edu/cycore/backend/internal/identity"
	"github.com/cycore-edu/cycore/backend/internal/logger"
	chatService "github.com/cycore-edu/cycore/backend/internal/service/chat"
	tutorService "github.com/cycore-edu/cycore/backend/internal/service/tutor"
	"github.com/cycore-edu/cycore/backend/pkg/utils"
)

// Handler delivers turns over Server-Sent Events.
type Handler struct {
	chatSvc  *chatService.Service
	tutorSvc *tutorService.Service
	log      *logger.Logger
}

// New creates a stream handler.
func New(chatSvc *chatService.Service, tutorSvc *tutorService.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{chatSvc: chatSvc, tutorSvc: tutorSvc, log: log.With("handler", "stream")}
}

// RegisterRoutes registers the SSE route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{conversationID}", h.handleStream)
}

// StreamResponse represents a streaming response chunk.
type StreamResponse struct {
	Event          string                   `json:"event"`
	ConversationID string                   `json:"conversationId,omitempty"`
	Content        string                   `json:"content,omitempty"`
	Finished       bool                     `json:"finished,omitempty"`
	Error          string                   `json:"error,omitempty"`
	Result         *tutorService.TurnResult `json:"result,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	userMessage := r.URL.Query().Get("message")
	if userMessage == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	user, ok := identity.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unknown caller")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	utils.SetupSSEHeaders(w)

	send := func(resp StreamResponse) {
		if err := utils.SendSSEChunk(w, flusher, resp); err != nil {
			h.log.Debug("sse write failed", "conversation_id", conversationID, "error", err)
		}
	}

	send(StreamResponse{Event: "start", ConversationID: conversationID})

	err := h.chatSvc.Do(r.Context(), user, func(sess *chatService.Session) error {
		result, err := h.tutorSvc.HandleTurnIn(r.Context(), sess, conversationID, userMessage, func(delta string) {
			send(StreamResponse{Event: "delta", ConversationID: conversationID, Content: delta})
		})
		if err != nil {
			return err
		}

		for _, reply := range result.Replies {
			send(StreamResponse{Event: "message", ConversationID: conversationID, Content: reply})
		}
		send(StreamResponse{Event: "end", ConversationID: conversationID, Finished: true, Result: &result})
		return nil
	})
	if err != nil {
		h.log.Warn("stream turn failed", "conversation_id", conversationID, "error", err)
		send(StreamResponse{Event: "error", ConversationID: conversationID, Error: describe(err)})
		return
	}

	h.log.Debug("stream completed", "conversation_id", conversationID)
}

func describe(err error) string {
	switch {
	case errors.Is(err, chatService.ErrConversationNotFound), errors.Is(err, tutorService.ErrEmptyMessage):
		return err.Error()
	default:
		return fmt.Sprintf("turn failed: %v", err)
	}
}
