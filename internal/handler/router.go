package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cycore-edu/cycore/backend/internal/handler/chat"
	"github.com/cycore-edu/cycore/backend/internal/handler/stream"
	"github.com/cycore-edu/cycore/backend/internal/handler/tutor"
	"github.com/cycore-edu/cycore/backend/internal/identity"
	"github.com/cycore-edu/cycore/backend/internal/logger"
	middlewarePkg "github.com/cycore-edu/cycore/backend/internal/middleware"
	chatService "github.com/cycore-edu/cycore/backend/internal/service/chat"
	tutorService "github.com/cycore-edu/cycore/backend/internal/service/tutor"
	"github.com/cycore-edu/cycore/backend/pkg/utils"
)

// Deps bundles what the router needs.
type Deps struct {
	Chat           *chatService.Service
	Tutor          *tutorService.Service
	Auth           *identity.Authenticator
	AllowedOrigins []string
	Health         func(*http.Request) error
	Log            *logger.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if deps.Health != nil {
			if err := deps.Health(req); err != nil {
				utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": deps.Chat.SessionCount(),
		})
	})

	tutorHandler := tutor.New(deps.Tutor.Profile())
	chatHandler := chat.New(deps.Chat, deps.Tutor, deps.Log)
	streamHandler := stream.New(deps.Chat, deps.Tutor, deps.Log)
	wsHandler := stream.NewWebSocketHandler(deps.Chat, deps.Tutor, originChecker(deps.AllowedOrigins), deps.Log)

	r.Route("/api", func(api chi.Router) {
		api.Use(deps.Auth.Middleware)

		tutorHandler.RegisterRoutes(api)
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
