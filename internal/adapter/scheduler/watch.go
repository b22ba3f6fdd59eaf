package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// dirWatcher turns fsnotify events in one directory into debounced scan
// triggers.
type dirWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
}

func newDirWatcher(dir string, debounce time.Duration, logger *slog.Logger) (*dirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify unavailable: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("cannot watch %s: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &dirWatcher{watcher: w, debounce: debounce, logger: logger}, nil
}

// run calls trigger once per burst of relevant events until ctx is done.
func (w *dirWatcher) run(ctx context.Context, trigger func()) {
	defer w.watcher.Close()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				w.logger.Error("fsnotify events channel closed")
				return
			}
			if !relevant(ev) {
				continue
			}
			w.logger.Debug("watched directory changed", "name", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			trigger()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("fsnotify error", "error", err)
		}
	}
}

// relevant reports whether ev can introduce a new visible file.
func relevant(ev fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) != 0
}

// ProbeResult reports whether fsnotify is usable and why not.
type ProbeResult struct {
	Supported bool
	Reason    string
}

// Probe checks that fsnotify delivers events for dir by creating and
// renaming a hidden file in it. Network and overlay mounts often fail this.
func Probe(dir string) ProbeResult {
	st, err := os.Stat(dir)
	if err != nil {
		return ProbeResult{false, fmt.Sprintf("stat failed: %v", err)}
	}
	if !st.IsDir() {
		return ProbeResult{false, "not a directory"}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return ProbeResult{false, fmt.Sprintf("fsnotify unavailable: %v", err)}
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return ProbeResult{false, fmt.Sprintf("cannot watch directory: %v", err)}
	}

	tmp := filepath.Join(dir, ".fsprobe_tmp")
	final := filepath.Join(dir, ".fsprobe_final")

	f, err := os.Create(tmp)
	if err != nil {
		return ProbeResult{false, fmt.Sprintf("cannot create probe file: %v", err)}
	}
	f.Close()

	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return ProbeResult{false, fmt.Sprintf("rename failed: %v", err)}
	}
	defer os.Remove(final)

	timeout := time.After(200 * time.Millisecond)
	for {
		select {
		case ev := <-w.Events:
			if ev.Op&(fsnotify.Rename|fsnotify.Create|fsnotify.Write) != 0 {
				return ProbeResult{true, ""}
			}
		case <-timeout:
			return ProbeResult{false, "no events received"}
		}
	}
}
