package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/V4T54L/detection-feed/internal/adapter/repository/redis"
	"github.com/V4T54L/detection-feed/internal/adapter/scheduler"
	"github.com/V4T54L/detection-feed/internal/usecase"
)

// ScanRunner is the part of the scheduler the admin API drives.
type ScanRunner interface {
	RunOnce(ctx context.Context) (usecase.ScanResult, bool, error)
	InProgress() bool
	LastRun() (scheduler.RunStatus, bool)
}

// StreamInspector reports on the notification stream.
type StreamInspector interface {
	Stats(ctx context.Context) (redis.StreamStats, error)
}

// AdminHandler handles operator requests on the admin listener.
type AdminHandler struct {
	scans  ScanRunner
	stream StreamInspector
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler. stream may be nil when Redis
// publishing is disabled.
func NewAdminHandler(scans ScanRunner, stream StreamInspector, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{scans: scans, stream: stream, logger: logger}
}

// HealthCheck is a simple health check endpoint.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// TriggerScan runs a scan immediately.
// POST /admin/scan
func (h *AdminHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	result, skipped, err := h.scans.RunOnce(r.Context())
	if skipped {
		respondWithError(w, h.logger, http.StatusConflict, "scan already in progress")
		return
	}
	if err != nil {
		h.logger.Error("manual scan failed", "error", err)
		respondWithJSON(w, h.logger, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"result": result,
		})
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, result)
}

// ScanStatus reports the last completed scan.
// GET /admin/scan/status
func (h *AdminHandler) ScanStatus(w http.ResponseWriter, r *http.Request) {
	status := struct {
		InProgress bool                 `json:"inProgress"`
		LastRun    *scheduler.RunStatus `json:"lastRun"`
	}{InProgress: h.scans.InProgress()}

	if last, ok := h.scans.LastRun(); ok {
		status.LastRun = &last
	}

	respondWithJSON(w, h.logger, http.StatusOK, status)
}

// StreamStats reports length and consumer lag of the notification stream.
// GET /admin/stream
func (h *AdminHandler) StreamStats(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		respondWithError(w, h.logger, http.StatusNotFound, "notification stream disabled")
		return
	}

	stats, err := h.stream.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to get stream stats", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, stats)
}
