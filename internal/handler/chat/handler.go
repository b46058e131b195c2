package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cycore-edu/cycore/backend/internal/game"
	"github.com/cycore-edu/cycore/backend/internal/identity"
	"github.com/cycore-edu/cycore/backend/internal/logger"
	"github.com/cycore-edu/cycore/backend/internal/model/chat"
	chatService "github.com/cycore-edu/cycore/backend/internal/service/chat"
	tutorService "github.com/cycore-edu/cycore/backend/internal/service/tutor"
	"github.com/cycore-edu/cycore/backend/pkg/utils"
)

// Handler exposes conversation management and non-streaming turns.
type Handler struct {
	chatSvc  *chatService.Service
	tutorSvc *tutorService.Service
	log      *logger.Logger
}

// New creates the conversation handler.
func New(chatSvc *chatService.Service, tutorSvc *tutorService.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{chatSvc: chatSvc, tutorSvc: tutorSvc, log: log.With("handler", "chat")}
}

// RegisterRoutes registers conversation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Route("/{conversationID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Patch("/", h.handleRename)
			r.Delete("/", h.handleDelete)
			r.Post("/activate", h.handleActivate)
			r.Post("/messages", h.handleMessage)
		})
	})
	r.Post("/signout", h.handleSignOut)
}

type listResponse struct {
	ActiveID      string                `json:"activeId"`
	Conversations []chatService.Summary `json:"conversations"`
	Game          game.State            `json:"game"`
	User          identity.User         `json:"user"`
}

type createResponse struct {
	ID       string `json:"id"`
	Existing bool   `json:"existing"`
}

// withSession resolves the caller and runs fn under their session lock.
func (h *Handler) withSession(w http.ResponseWriter, r *http.Request, fn func(*chatService.Session) error) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "unknown caller")
		return
	}
	if err := h.chatSvc.Do(r.Context(), user, fn); err != nil {
		h.respondServiceError(w, err)
	}
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrConversationNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tutorService.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("request failed", "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(sess *chatService.Session) error {
		active := h.chatSvc.Active(r.Context(), sess)
		utils.RespondJSON(w, http.StatusOK, listResponse{
			ActiveID:      active.ID,
			Conversations: h.chatSvc.List(sess),
			Game:          sess.Game,
			User:          sess.User,
		})
		return nil
	})
}

// handleCreate reuses an existing empty conversation instead of piling up
// blank ones.
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(sess *chatService.Session) error {
		if id, ok := h.chatSvc.FindEmpty(sess); ok {
			if err := h.chatSvc.Activate(r.Context(), sess, id); err != nil {
				return err
			}
			utils.RespondJSON(w, http.StatusOK, createResponse{ID: id, Existing: true})
			return nil
		}
		id := h.chatSvc.Create(r.Context(), sess)
		utils.RespondJSON(w, http.StatusCreated, createResponse{ID: id})
		return nil
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	h.withSession(w, r, func(sess *chatService.Session) error {
		conv, err := h.chatSvc.Get(sess, id)
		if err != nil {
			return err
		}
		if conv.History == nil {
			conv.History = []chat.Message{}
		}
		utils.RespondJSON(w, http.StatusOK, conv)
		return nil
	})
}

func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "conversationID")
	h.withSession(w, r, func(sess *chatService.Session) error {
		if err := h.chatSvc.Rename(r.Context(), sess, id, payload.Name); err != nil {
			return err
		}
		conv, err := h.chatSvc.Get(sess, id)
		if err != nil {
			return err
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"id": conv.ID, "name": conv.Name})
		return nil
	})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	h.withSession(w, r, func(sess *chatService.Session) error {
		if err := h.chatSvc.Delete(r.Context(), sess, id); err != nil {
			return err
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"activeId": sess.ActiveID})
		return nil
	})
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	h.withSession(w, r, func(sess *chatService.Session) error {
		if err := h.chatSvc.Activate(r.Context(), sess, id); err != nil {
			return err
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"activeId": id})
		return nil
	})
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "conversationID")
	h.withSession(w, r, func(sess *chatService.Session) error {
		result, err := h.tutorSvc.HandleTurnIn(r.Context(), sess, id, payload.Message, nil)
		if err != nil {
			return err
		}
		utils.RespondJSON(w, http.StatusOK, result)
		return nil
	})
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if user, ok := identity.FromContext(r.Context()); ok {
		h.chatSvc.Forget(user.ID)
		if !user.Authenticated {
			identity.ClearAnonymous(w)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
