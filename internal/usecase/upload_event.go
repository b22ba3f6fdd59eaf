package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/V4T54L/detection-feed/internal/adapter/filestore"
	"github.com/V4T54L/detection-feed/internal/adapter/metrics"
	"github.com/V4T54L/detection-feed/internal/adapter/sanitize"
	"github.com/V4T54L/detection-feed/internal/domain"
)

const fallbackUploadName = "image"

// UploadInput is one uploaded image with its optional metadata.
type UploadInput struct {
	File        io.Reader
	FileName    string
	Category    string
	Description string
}

// UploadEventUseCase stores an uploaded image in the watched directory and
// records its event directly, without going through the scanner.
type UploadEventUseCase struct {
	store      domain.EventStore
	files      *filestore.FileStore
	sanitizer  *sanitize.Sanitizer
	publishers []domain.EventPublisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewUploadEventUseCase creates a new UploadEventUseCase.
func NewUploadEventUseCase(store domain.EventStore, files *filestore.FileStore, sanitizer *sanitize.Sanitizer, logger *slog.Logger, m *metrics.Metrics, publishers ...domain.EventPublisher) *UploadEventUseCase {
	return &UploadEventUseCase{
		store:      store,
		files:      files,
		sanitizer:  sanitizer,
		publishers: publishers,
		logger:     logger.With("component", "upload"),
		metrics:    m,
		now:        time.Now,
	}
}

// Upload stages the file under "<unix millis>-<name>", publishes it without
// replacing anything already on disk and then records the event. If the
// event cannot be recorded the file is removed again, so the directory and
// the store never disagree.
func (uc *UploadEventUseCase) Upload(ctx context.Context, in UploadInput) (domain.Event, error) {
	if in.File == nil {
		return domain.Event{}, domain.ErrNoFile
	}

	now := uc.now()
	if now.IsZero() {
		return domain.Event{}, domain.ErrInvalidTimestamp
	}

	base := sanitize.FileName(in.FileName)
	if base == "" {
		base = fallbackUploadName
	}
	name := fmt.Sprintf("%d-%s", now.UnixMilli(), base)

	staged, err := uc.files.Stage(in.File, name)
	if err != nil {
		return domain.Event{}, fmt.Errorf("failed to store upload: %w", err)
	}
	if err := staged.Publish(); err != nil {
		if errors.Is(err, filestore.ErrExists) {
			return domain.Event{}, fmt.Errorf("%w: %s is already taken", domain.ErrDuplicateFilename, name)
		}
		return domain.Event{}, fmt.Errorf("failed to store upload: %w", err)
	}

	event, err := uc.store.Create(ctx, domain.EventInput{
		Filename:    name,
		Category:    uc.sanitizer.Category(in.Category),
		Description: uc.sanitizer.Description(in.Description),
		Timestamp:   now,
		Source:      domain.SourceUpload,
	}.WithDefaults())
	if errors.Is(err, domain.ErrDuplicateFilename) {
		// The scanner picked up the published file first. Its record now
		// describes this file, so keep it.
		uc.commit(staged)
		existing, fErr := uc.store.FindByFilename(ctx, name)
		if fErr != nil {
			return domain.Event{}, fmt.Errorf("failed to record upload: %w", err)
		}
		uc.logger.Warn("upload was recorded by the directory scan first", "event_id", existing.ID, "filename", name)
		return existing, nil
	}
	if err != nil {
		if dErr := staged.Discard(); dErr != nil {
			uc.logger.Error("failed to remove staged upload", "filename", name, "error", dErr)
		}
		return domain.Event{}, fmt.Errorf("failed to record upload: %w", err)
	}
	uc.commit(staged)

	uc.metrics.EventCreated(string(domain.SourceUpload))
	uc.logger.Info("upload recorded", "event_id", event.ID, "filename", name, "size", staged.Size, "category", event.Category)
	publishAll(ctx, uc.publishers, event, uc.logger)
	return event, nil
}

// commit drops the staging name of an already published file. Failing to do
// so only leaves a hidden file behind.
func (uc *UploadEventUseCase) commit(staged *filestore.Staged) {
	if err := staged.Commit(); err != nil {
		uc.logger.Warn("failed to clean up staging file", "filename", staged.Name, "error", err)
	}
}
