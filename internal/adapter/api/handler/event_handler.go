package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/V4T54L/detection-feed/internal/adapter/metrics"
	"github.com/V4T54L/detection-feed/internal/domain"
	"github.com/V4T54L/detection-feed/internal/usecase"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// Form field names accepted for the uploaded image, in order of preference.
var uploadFields = []string{"image", "file"}

// EventUploader stores an uploaded image as a new event.
type EventUploader interface {
	Upload(ctx context.Context, in usecase.UploadInput) (domain.Event, error)
}

// EventLister returns the public listing of events.
type EventLister interface {
	List(ctx context.Context) ([]usecase.EventImage, error)
}

// EventHandler serves the upload and listing endpoints.
type EventHandler struct {
	uploader       EventUploader
	lister         EventLister
	logger         *slog.Logger
	metrics        *metrics.Metrics
	maxUploadBytes int64
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(uploader EventUploader, lister EventLister, logger *slog.Logger, m *metrics.Metrics, maxUploadBytes int64) *EventHandler {
	return &EventHandler{
		uploader:       uploader,
		lister:         lister,
		logger:         logger,
		metrics:        m,
		maxUploadBytes: maxUploadBytes,
	}
}

// Upload handles POST /upload-event.
func (h *EventHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxUploadBytes {
		h.metrics.Upload("too_large")
		respondWithError(w, h.logger, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	// Enforce max body size for chunked or mis-declared bodies.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	var in usecase.UploadInput

	// A request that is not multipart at all carries no file; the use case
	// rejects it the same way as a form without an image field.
	err := r.ParseMultipartForm(multipartMemory)
	switch {
	case errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.metrics.Upload("too_large")
			respondWithError(w, h.logger, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		h.logger.Warn("failed to parse upload form", "error", err)
		h.metrics.Upload("bad_request")
		respondWithError(w, h.logger, http.StatusBadRequest, "Invalid multipart form")
		return
	default:
		defer r.MultipartForm.RemoveAll()

		file, header, err := formFile(r)
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			h.logger.Warn("failed to open uploaded file", "error", err)
			h.metrics.Upload("bad_request")
			respondWithError(w, h.logger, http.StatusBadRequest, "Invalid multipart form")
			return
		}
		if file != nil {
			defer file.Close()
			in.File = file
			in.FileName = header.Filename
		}
		in.Category = r.FormValue("category")
		in.Description = r.FormValue("description")
	}

	event, err := h.uploader.Upload(r.Context(), in)
	if err != nil {
		h.uploadError(w, err)
		return
	}

	h.metrics.Upload("created")
	respondWithJSON(w, h.logger, http.StatusOK, map[string]any{
		"message": "Event image uploaded",
		"event":   event,
	})
}

func (h *EventHandler) uploadError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrNoFile):
		h.metrics.Upload("no_file")
		respondWithError(w, h.logger, http.StatusBadRequest, "No file uploaded")
	case errors.Is(err, domain.ErrInvalidTimestamp):
		h.metrics.Upload("bad_request")
		respondWithError(w, h.logger, http.StatusBadRequest, "Invalid timestamp")
	case errors.Is(err, domain.ErrDuplicateFilename):
		h.metrics.Upload("conflict")
		respondWithError(w, h.logger, http.StatusConflict, "Event for this file already exists")
	case errors.As(err, &maxBytesErr):
		h.metrics.Upload("too_large")
		respondWithError(w, h.logger, http.StatusRequestEntityTooLarge, "File too large")
	default:
		h.logger.Error("failed to save uploaded event", "error", err)
		h.metrics.Upload("error")
		respondWithError(w, h.logger, http.StatusInternalServerError, "Error saving event metadata")
	}
}

// List handles GET /api/event-images.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	images, err := h.lister.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list events", "error", err)
		respondWithError(w, h.logger, http.StatusInternalServerError, "Error fetching events")
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, images)
}

func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	for _, field := range uploadFields {
		file, header, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		return file, header, err
	}
	return nil, nil, http.ErrMissingFile
}

func respondWithError(w http.ResponseWriter, logger *slog.Logger, code int, message string) {
	respondWithJSON(w, logger, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, logger *slog.Logger, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "Internal Server Error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
