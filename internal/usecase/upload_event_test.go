package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/V4T54L/detection-feed/internal/adapter/filestore"
	"github.com/V4T54L/detection-feed/internal/adapter/repository/memory"
	"github.com/V4T54L/detection-feed/internal/adapter/sanitize"
	"github.com/V4T54L/detection-feed/internal/domain"
	"github.com/V4T54L/detection-feed/internal/domain/mocks"
)

func newTestUploader(t *testing.T, store domain.EventStore, publishers ...domain.EventPublisher) (*UploadEventUseCase, string) {
	t.Helper()
	dir := t.TempDir()
	files, err := filestore.New(dir)
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := NewUploadEventUseCase(store, files, sanitize.NewSanitizer(128, 2048, logger), logger, nil, publishers...)
	uc.now = func() time.Time { return time.UnixMilli(1714571102000).UTC() }
	return uc, dir
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// scanFirstStore records every file as a scan detection just before the
// upload's own insert, as a directory scan racing the upload would.
type scanFirstStore struct {
	domain.EventStore
}

func (s scanFirstStore) Create(ctx context.Context, in domain.EventInput) (domain.Event, error) {
	if in.Source == domain.SourceUpload {
		scanned := in
		scanned.Source = domain.SourceScan
		scanned.Category = domain.DefaultCategory
		if _, err := s.EventStore.Create(ctx, scanned); err != nil {
			return domain.Event{}, err
		}
	}
	return s.EventStore.Create(ctx, in)
}

func TestUploadEventUseCase_Upload(t *testing.T) {
	t.Run("Defaults applied when fields are empty", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		pub := &mocks.MockEventPublisher{}
		uc, dir := newTestUploader(t, store, pub)

		event, err := uc.Upload(context.Background(), UploadInput{
			File:     strings.NewReader("jpeg-bytes"),
			FileName: "photo.jpg",
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if event.Filename != "1714571102000-photo.jpg" {
			t.Errorf("Filename = %q", event.Filename)
		}
		if event.Category != domain.DefaultCategory || event.Description != domain.DefaultDescription {
			t.Errorf("defaults not applied: %+v", event)
		}
		if event.Source != domain.SourceUpload {
			t.Errorf("Source = %q", event.Source)
		}
		if !event.Timestamp.Equal(time.UnixMilli(1714571102000)) {
			t.Errorf("Timestamp = %s", event.Timestamp)
		}

		data, err := os.ReadFile(filepath.Join(dir, "1714571102000-photo.jpg"))
		if err != nil {
			t.Fatalf("uploaded file missing: %v", err)
		}
		if string(data) != "jpeg-bytes" {
			t.Errorf("file content = %q", data)
		}
		if names := dirNames(t, dir); len(names) != 1 {
			t.Errorf("expected only the uploaded file, got %v", names)
		}
		if len(pub.Events()) != 1 {
			t.Errorf("expected the event to be published")
		}
	})

	t.Run("Supplied fields are sanitized and kept", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		uc, _ := newTestUploader(t, store)

		event, err := uc.Upload(context.Background(), UploadInput{
			File:        strings.NewReader("x"),
			FileName:    "../../cam 1.jpg",
			Category:    "  Intrusion\x00 ",
			Description: " Back door ",
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if event.Category != "Intrusion" || event.Description != "Back door" {
			t.Errorf("unexpected metadata %+v", event)
		}
		if event.Filename != "1714571102000-cam_1.jpg" {
			t.Errorf("Filename = %q", event.Filename)
		}
	})

	t.Run("Missing file is rejected without an event", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		uc, dir := newTestUploader(t, store)

		_, err := uc.Upload(context.Background(), UploadInput{Category: "x"})
		if !errors.Is(err, domain.ErrNoFile) {
			t.Fatalf("expected ErrNoFile, got %v", err)
		}
		if store.Count() != 0 {
			t.Error("no event expected")
		}
		if names := dirNames(t, dir); len(names) != 0 {
			t.Errorf("no file expected, got %v", names)
		}
	})

	t.Run("Store failure removes the staged file", func(t *testing.T) {
		boom := errors.New("database is down")
		store := &mocks.MockEventStore{CreateErr: boom}
		uc, dir := newTestUploader(t, store)

		_, err := uc.Upload(context.Background(), UploadInput{File: strings.NewReader("x"), FileName: "a.jpg"})
		if !errors.Is(err, boom) {
			t.Fatalf("expected %v, got %v", boom, err)
		}
		if names := dirNames(t, dir); len(names) != 0 {
			t.Errorf("staged file left behind: %v", names)
		}
	})

	t.Run("Name taken by a directory records nothing", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		uc, dir := newTestUploader(t, store)
		taken := filepath.Join(dir, "1714571102000-photo.jpg")
		if err := os.Mkdir(taken, 0o755); err != nil {
			t.Fatal(err)
		}

		_, err := uc.Upload(context.Background(), UploadInput{File: strings.NewReader("x"), FileName: "photo.jpg"})
		if !errors.Is(err, domain.ErrDuplicateFilename) {
			t.Fatalf("expected ErrDuplicateFilename, got %v", err)
		}
		if store.Count() != 0 {
			t.Errorf("expected no event, got %d", store.Count())
		}
		if info, err := os.Stat(taken); err != nil || !info.IsDir() {
			t.Errorf("existing directory was disturbed: %v", err)
		}
		if names := dirNames(t, dir); len(names) != 1 {
			t.Errorf("staged file left behind: %v", names)
		}
	})

	t.Run("Existing file with the same name is not overwritten", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		uc, dir := newTestUploader(t, store)
		taken := filepath.Join(dir, "1714571102000-photo.jpg")
		if err := os.WriteFile(taken, []byte("earlier-upload"), 0o644); err != nil {
			t.Fatal(err)
		}

		_, err := uc.Upload(context.Background(), UploadInput{File: strings.NewReader("later-upload"), FileName: "photo.jpg"})
		if !errors.Is(err, domain.ErrDuplicateFilename) {
			t.Fatalf("expected ErrDuplicateFilename, got %v", err)
		}
		if store.Count() != 0 {
			t.Errorf("expected no event, got %d", store.Count())
		}
		data, err := os.ReadFile(taken)
		if err != nil || string(data) != "earlier-upload" {
			t.Errorf("existing file content = %q (%v)", data, err)
		}
	})

	t.Run("Scan recording the file first keeps file and record", func(t *testing.T) {
		store := scanFirstStore{EventStore: memory.NewEventStore()}
		pub := &mocks.MockEventPublisher{}
		uc, dir := newTestUploader(t, store, pub)

		event, err := uc.Upload(context.Background(), UploadInput{File: strings.NewReader("jpeg"), FileName: "photo.jpg", Category: "Fire"})
		if err != nil {
			t.Fatalf("expected the scan's record, got %v", err)
		}
		if event.Filename != "1714571102000-photo.jpg" || event.Source != domain.SourceScan {
			t.Errorf("unexpected event %+v", event)
		}
		if names := dirNames(t, dir); len(names) != 1 || names[0] != "1714571102000-photo.jpg" {
			t.Errorf("expected only the published file, got %v", names)
		}
		if len(pub.Events()) != 0 {
			t.Error("the scan already announced this event")
		}
	})

	t.Run("Zero clock is rejected", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		uc, _ := newTestUploader(t, store)
		uc.now = func() time.Time { return time.Time{} }

		_, err := uc.Upload(context.Background(), UploadInput{File: strings.NewReader("x"), FileName: "a.jpg"})
		if !errors.Is(err, domain.ErrInvalidTimestamp) {
			t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
		}
		if store.Count() != 0 {
			t.Error("no event expected")
		}
	})

	t.Run("Unusable file name gets a fallback", func(t *testing.T) {
		store := &mocks.MockEventStore{}
		uc, _ := newTestUploader(t, store)

		event, err := uc.Upload(context.Background(), UploadInput{File: strings.NewReader("x"), FileName: ".."})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if event.Filename != "1714571102000-image" {
			t.Errorf("Filename = %q", event.Filename)
		}
	})
}
