package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// MaxBodyBytes caps request bodies. Zero disables the limit.
	MaxBodyBytes int64
	// Metrics exposes GET /metrics when set.
	Metrics http.Handler
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   25 << 20,
		Metrics:        promhttp.Handler(),
	}
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /words", h.Words)

	mux.HandleFunc("POST /sessions", h.CreateSession)
	mux.HandleFunc("GET /sessions", h.ListSessions)
	mux.HandleFunc("GET /sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /sessions/{id}", h.DeleteSession)
	mux.HandleFunc("GET /sessions/{id}/summary", h.Summary)
	mux.HandleFunc("POST /sessions/{id}/attempts", h.SubmitAttempt)
	mux.HandleFunc("POST /sessions/{id}/confirm", h.Confirm)
	mux.HandleFunc("POST /sessions/{id}/abandon", h.AbandonSession)

	mux.HandleFunc("GET /clips/{key...}", h.Clip)

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
		MaxBodyMiddleware(cfg.MaxBodyBytes),
	)

	return chain(mux)
}
