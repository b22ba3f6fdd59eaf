package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/V4T54L/detection-feed/internal/adapter/filename"
	"github.com/V4T54L/detection-feed/internal/adapter/metrics"
	"github.com/V4T54L/detection-feed/internal/domain"
)

// TimestampParser derives an event timestamp from a file name. It never
// fails; unparseable names map to the current time.
type TimestampParser interface {
	Timestamp(name string) time.Time
}

// ScanResult summarizes one pass over the watched directory.
type ScanResult struct {
	Listed   int           `json:"listed"`
	Created  int           `json:"created"`
	Known    int           `json:"known"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// ScanDirectoryUseCase records every file in the watched directory that the
// store does not know yet.
type ScanDirectoryUseCase struct {
	dir        string
	store      domain.EventStore
	parser     TimestampParser
	publishers []domain.EventPublisher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewScanDirectoryUseCase creates a new ScanDirectoryUseCase.
func NewScanDirectoryUseCase(dir string, store domain.EventStore, parser TimestampParser, logger *slog.Logger, m *metrics.Metrics, publishers ...domain.EventPublisher) *ScanDirectoryUseCase {
	return &ScanDirectoryUseCase{
		dir:        dir,
		store:      store,
		parser:     parser,
		publishers: publishers,
		logger:     logger.With("component", "scanner"),
		metrics:    m,
	}
}

// Scan lists the directory once and creates an Auto-Detected event for each
// unknown file, one entry at a time. Sub-directories and dot-files are
// ignored. A listing or lookup failure aborts the pass; events created before
// the failure are kept. A file the store refuses to record is logged and
// counted as failed, and the pass moves on.
func (uc *ScanDirectoryUseCase) Scan(ctx context.Context) (ScanResult, error) {
	start := time.Now()
	res, err := uc.scan(ctx)
	res.Duration = time.Since(start)
	uc.metrics.ObserveScan(err, res.Duration)
	return res, err
}

func (uc *ScanDirectoryUseCase) scan(ctx context.Context) (ScanResult, error) {
	var res ScanResult

	entries, err := os.ReadDir(uc.dir)
	if err != nil {
		return res, fmt.Errorf("failed to list watched directory %s: %w", uc.dir, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		res.Listed++

		_, err := uc.store.FindByFilename(ctx, name)
		if err == nil {
			res.Known++
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return res, fmt.Errorf("failed to look up %s: %w", name, err)
		}

		in := domain.EventInput{
			Filename:    name,
			Category:    domain.DefaultCategory,
			Description: domain.DefaultDescription,
			Timestamp:   uc.parser.Timestamp(name),
			Source:      domain.SourceScan,
		}
		event, err := uc.store.Create(ctx, in)
		if errors.Is(err, domain.ErrDuplicateFilename) {
			uc.logger.Debug("file recorded by another writer", "filename", name)
			res.Skipped++
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, fmt.Errorf("failed to record %s: %w", name, err)
			}
			uc.logger.Error("failed to record file, skipping it this pass", "filename", name, "error", err)
			res.Failed++
			continue
		}

		res.Created++
		uc.metrics.EventCreated(string(domain.SourceScan))

		detected, _ := filename.Category(name)
		uc.logger.Info("new detection recorded",
			"event_id", event.ID,
			"filename", name,
			"detected", detected,
			"timestamp", event.Timestamp,
		)
		publishAll(ctx, uc.publishers, event, uc.logger)
	}

	return res, nil
}
