package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/fitfighter/rigbridge/internal/config"
	"github.com/fitfighter/rigbridge/internal/handlers"
	"github.com/fitfighter/rigbridge/internal/middleware"
	"github.com/fitfighter/rigbridge/internal/models"
	"github.com/fitfighter/rigbridge/internal/services"
	"github.com/fitfighter/rigbridge/internal/store"
	"github.com/fitfighter/rigbridge/internal/transport"
)

// ConnStater reports the broker session's connection state for the health
// endpoint.
type ConnStater interface {
	State() transport.ConnState
}

// New builds the bridge's HTTP API.
func New(cfg *config.Config, session ConnStater, sender handlers.CommandSender, tokens *services.TokenService, st *store.Store) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewRealIPMiddleware(cfg.TrustedProxies).Handler)
	r.Use(middleware.RequestContextMiddleware)
	r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))

	// Services
	tokenHandler := handlers.NewTokenHandler(tokens, cfg.RigID)
	commandHandler := handlers.NewCommandHandler(sender, cfg.RigID)
	resultsHandler := handlers.NewResultsHandler(st)

	// Rate limiter for credential minting
	tokenRateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)

	// Routes
	r.Route("/api", func(r chi.Router) {
		// Health check, including broker connectivity
		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(models.HealthResponse{
				Status: "ok",
				MQTT:   session.State() == transport.Connected,
			})
		})

		// Credential exchange for the browser MQTT client (rate limited)
		r.With(tokenRateLimiter.Middleware).Get("/mqtt-token", tokenHandler.MintToken)

		// Outbound rig commands
		r.Post("/rig-command", commandHandler.Forward)

		// Recorded game results
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/results", resultsHandler.List)
		})
	})

	return r
}
