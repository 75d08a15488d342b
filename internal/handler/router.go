package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/support-chat/support-agent/internal/middleware"
	"github.com/support-chat/support-agent/pkg/logger"
)

// RouterConfig collects what NewRouter wires together.
type RouterConfig struct {
	Chat           *ChatHandler
	Health         *HealthHandler
	Logger         *logger.Logger
	AllowedOrigins []string
}

// NewRouter builds the HTTP routes of the chat API.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/", cfg.Health.Root)
	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/chat", func(r chi.Router) {
		r.With(middleware.MaxBodyBytes(middleware.DefaultMaxBodyBytes)).Post("/message", cfg.Chat.SendMessage)
		r.Get("/history/{sessionId}", cfg.Chat.History)
	})

	return r
}
