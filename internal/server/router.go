package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/convrelay/convrelay/internal/handlers"
	"github.com/convrelay/convrelay/internal/middleware"
)

// NewRouter constructs a ServeMux with the ingress API routes registered.
func NewRouter(h *handlers.EventHandler) http.Handler {
	mux := http.NewServeMux()

	// Event ingestion
	mux.HandleFunc("/api/event", h.HandleTrack)

	// Health endpoints
	mux.HandleFunc("/api/health", h.Health)
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
