// Package wal is a segmented, file-based journal of events that could not be
// delivered to the notification stream.
package wal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/detection-feed/internal/domain"
)

const (
	segmentPrefix = "events-"
	segmentSuffix = ".wal"
	filePerm      = 0o644
)

var ErrFull = errors.New("WAL max total size exceeded")

type record struct {
	Seq       uint64       `json:"seq"`
	WrittenAt time.Time    `json:"writtenAt"`
	Event     domain.Event `json:"event"`
}

type segment struct {
	path string
	size int64
}

// Log implements domain.WALRepository. Segments are named after the sequence
// number of their first record so lexical order is write order.
type Log struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu       sync.Mutex
	sealed   []segment
	active   *os.File
	activeSz int64
	activeP  string
	nextSeq  uint64
	total    int64
	replayed int
}

// Open opens or creates the journal in dir.
func Open(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory %s: %w", dir, err)
	}

	l := &Log{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "wal"),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// load indexes existing segments. All of them are sealed; the next write
// starts a fresh segment.
func (l *Log) load() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("failed to read WAL directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("failed to stat WAL segment %s: %w", name, err)
		}
		l.sealed = append(l.sealed, segment{path: filepath.Join(l.dir, name), size: info.Size()})
		l.total += info.Size()

		first, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix), 10, 64)
		if err == nil && first >= l.nextSeq {
			l.nextSeq = first + 1
		}
	}
	sort.Slice(l.sealed, func(i, j int) bool { return l.sealed[i].path < l.sealed[j].path })

	if len(l.sealed) > 0 {
		l.logger.Info("found pending WAL segments", "segments", len(l.sealed), "bytes", l.total)
	}
	return nil
}

// Write appends an event, rotating to a new segment when the active one is full.
func (l *Log) Write(_ context.Context, event domain.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(record{Seq: l.nextSeq, WrittenAt: time.Now().UTC(), Event: event})
	if err != nil {
		return fmt.Errorf("failed to marshal event for WAL: %w", err)
	}
	data = append(data, '\n')

	if l.total+int64(len(data)) > l.maxTotalSize {
		return fmt.Errorf("%w (%d bytes used, limit %d)", ErrFull, l.total, l.maxTotalSize)
	}

	if l.active == nil || l.activeSz >= l.maxSegmentSize {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	n, err := l.active.Write(data)
	l.activeSz += int64(n)
	l.total += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write WAL segment: %w", err)
	}
	l.nextSeq++
	return nil
}

// rotate seals the active segment and opens a new one. Callers hold l.mu.
func (l *Log) rotate() error {
	if err := l.seal(); err != nil {
		return err
	}

	path := filepath.Join(l.dir, fmt.Sprintf("%s%020d%s", segmentPrefix, l.nextSeq, segmentSuffix))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create WAL segment %s: %w", path, err)
	}
	l.active, l.activeP, l.activeSz = f, path, 0
	l.logger.Debug("opened WAL segment", "path", path)
	return nil
}

// seal syncs and closes the active segment. Callers hold l.mu.
func (l *Log) seal() error {
	if l.active == nil {
		return nil
	}
	if err := l.active.Sync(); err != nil {
		l.logger.Error("failed to sync WAL segment", "path", l.activeP, "error", err)
	}
	if err := l.active.Close(); err != nil {
		return fmt.Errorf("failed to close WAL segment %s: %w", l.activeP, err)
	}
	if l.activeSz > 0 {
		l.sealed = append(l.sealed, segment{path: l.activeP, size: l.activeSz})
	} else {
		os.Remove(l.activeP)
	}
	l.active, l.activeP, l.activeSz = nil, "", 0
	return nil
}

// Replay seals the active segment and hands every journaled event to handler
// in write order. Segments fully handed over are marked for Truncate. A
// handler error stops the replay; the failing segment stays pending.
func (l *Log) Replay(ctx context.Context, handler func(event domain.Event) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.seal(); err != nil {
		return err
	}
	l.replayed = 0
	if len(l.sealed) == 0 {
		return nil
	}
	l.logger.Info("starting WAL replay", "segments", len(l.sealed))

	replayed := 0
	for _, seg := range l.sealed {
		n, err := replaySegment(ctx, seg.path, handler, l.logger)
		replayed += n
		if err != nil {
			l.logger.Warn("WAL replay stopped", "path", seg.path, "replayed", replayed, "error", err)
			return err
		}
		l.replayed++
	}

	l.logger.Info("WAL replay completed", "events", replayed)
	return nil
}

func replaySegment(ctx context.Context, path string, handler func(domain.Event) error, logger *slog.Logger) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open WAL segment %s: %w", path, err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			// A torn final line after a crash is expected.
			logger.Warn("skipping unreadable WAL record", "path", path, "error", err)
			continue
		}
		if err := handler(rec.Event); err != nil {
			return count, fmt.Errorf("replay handler failed: %w", err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to read WAL segment %s: %w", path, err)
	}
	return count, nil
}

// Truncate deletes the segments fully handed over by the last Replay. Events
// written after that replay are kept, and so is any segment that could not be
// removed; it is replayed again next time.
func (l *Log) Truncate(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	var kept []segment
	for _, seg := range l.sealed[:l.replayed] {
		if err := os.Remove(seg.path); err != nil && !os.IsNotExist(err) {
			l.logger.Error("failed to remove replayed WAL segment", "path", seg.path, "error", err)
			errs = append(errs, err)
			kept = append(kept, seg)
			continue
		}
		l.total -= seg.size
	}
	l.sealed = append(kept, l.sealed[l.replayed:]...)
	l.replayed = 0

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to remove WAL segments: %w", err)
	}
	return nil
}

// Pending reports whether any events are journaled.
func (l *Log) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sealed) > 0 || l.activeSz > 0
}

// Size returns the journal's size on disk in bytes.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Close seals the active segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seal()
}
