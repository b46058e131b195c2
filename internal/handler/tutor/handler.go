package tutor

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cycore-edu/cycore/backend/internal/analysis/guard"
	profile "github.com/cycore-edu/cycore/backend/internal/model/tutor"
	"github.com/cycore-edu/cycore/backend/pkg/utils"
)

// Handler serves the tutor profile.
type Handler struct {
	profile    profile.Profile
	categories []string
}

// New creates a tutor profile handler.
func New(p profile.Profile) *Handler {
	return &Handler{profile: p, categories: guard.Categories()}
}

// RegisterRoutes registers the profile route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/tutor", h.handleProfile)
}

type profileResponse struct {
	profile.Profile
	Categories []string `json:"categories"`
}

func (h *Handler) handleProfile(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, profileResponse{Profile: h.profile, Categories: h.categories})
}
