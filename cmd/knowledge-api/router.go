package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/walkative/knowledge-engine/cmd/knowledge-api/handlers"
	"github.com/walkative/knowledge-engine/cmd/knowledge-api/middleware"
	"github.com/walkative/knowledge-engine/internal/api/rpc"
	"github.com/walkative/knowledge-engine/internal/config"
	"github.com/walkative/knowledge-engine/internal/observability"
)

const readyTimeout = 2 * time.Second

// ReadinessChecker reports whether backing stores are reachable.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *config.Config, retriever handlers.Retriever, ready ReadinessChecker) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Trace)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(chimiddleware.Timeout(cfg.Server.WriteTimeout))

	service := cfg.Observability.ServiceName

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, map[string]string{"status": "healthy", "service": service})
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := ready.Ready(ctx); err != nil {
			logger.WithContext(ctx).Warn().Err(err).Msg("Readiness check failed")
			writeStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "error": err.Error()})
			return
		}
		writeStatus(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetrics()
		r.Handle("/metrics", promhttp.Handler())
	}

	knowledgeHandler := handlers.NewKnowledgeHandler(logger, retriever)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/knowledge", func(r chi.Router) {
			r.Post("/search", knowledgeHandler.Search)
			r.Post("/keywords", knowledgeHandler.Keywords)
		})
	})

	path, connectHandler := rpc.NewKnowledgeService(logger, retriever).Handler()
	r.Mount(path, connectHandler)

	return r
}

func writeStatus(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
