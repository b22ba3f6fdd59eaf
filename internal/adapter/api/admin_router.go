package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/detection-feed/internal/adapter/api/handler"
	"github.com/V4T54L/detection-feed/internal/adapter/api/middleware"
)

// NewAdminRouter creates and configures the HTTP router for operator
// endpoints. It is served on a separate listener from the public API.
func NewAdminRouter(adminHandler *handler.AdminHandler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", adminHandler.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Scans
	mux.HandleFunc("POST /admin/scan", adminHandler.TriggerScan)
	mux.HandleFunc("GET /admin/scan/status", adminHandler.ScanStatus)

	// Notification stream
	mux.HandleFunc("GET /admin/stream", adminHandler.StreamStats)

	return middleware.Logging(logger)(mux)
}
