// Package scheduler drives the directory scanner: once at startup, then on a
// fixed interval, and optionally whenever the watched directory changes.
// Scans never overlap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/V4T54L/detection-feed/internal/adapter/metrics"
	"github.com/V4T54L/detection-feed/internal/pkg/config"
	"github.com/V4T54L/detection-feed/internal/usecase"
)

// Triggers recorded in RunStatus.
const (
	TriggerStartup  = "startup"
	TriggerInterval = "interval"
	TriggerNotify   = "notify"
	TriggerManual   = "manual"
)

var ErrAlreadyStarted = errors.New("scheduler already started")

// Scanner performs one scan of the watched directory.
type Scanner interface {
	Scan(ctx context.Context) (usecase.ScanResult, error)
}

// Options configures a Scheduler.
type Options struct {
	Dir      string
	Interval time.Duration
	Timeout  time.Duration
	Mode     string
	Debounce time.Duration
}

// RunStatus describes the most recent completed scan.
type RunStatus struct {
	Trigger    string             `json:"trigger"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
	Result     usecase.ScanResult `json:"result"`
	Error      string             `json:"error,omitempty"`
}

// Scheduler owns the recurring scan. Start it once; Stop is safe to call
// any number of times.
type Scheduler struct {
	scanner Scanner
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	running atomic.Bool

	mu      sync.Mutex
	lastRun *RunStatus
	started bool
	cron    *cron.Cron
	cancel  context.CancelFunc
	ctx     context.Context
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Scheduler. It does nothing until Start is called.
func New(scanner Scanner, opts Options, logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	if opts.Mode == "" {
		opts.Mode = config.WatchModePoll
	}
	return &Scheduler{
		scanner: scanner,
		opts:    opts,
		logger:  logger.With("component", "scheduler"),
		metrics: m,
	}
}

// Start runs a scan immediately in the background and schedules the
// recurring ones. In notify or auto mode it also watches the directory.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return ErrAlreadyStarted
	}
	if s.opts.Interval <= 0 {
		return fmt.Errorf("scan interval must be positive, got %s", s.opts.Interval)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	cl := newCronLogger(s.logger)
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	if _, err := s.cron.AddFunc("@every "+s.opts.Interval.String(), func() { s.tick(TriggerInterval) }); err != nil {
		s.cancel()
		return fmt.Errorf("failed to schedule scans: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick(TriggerStartup)
	}()
	s.cron.Start()

	if err := s.startWatch(); err != nil {
		s.logger.Warn("directory watch unavailable, relying on interval scans", "error", err)
	}

	s.started = true
	s.logger.Info("scan scheduler started",
		"dir", s.opts.Dir,
		"interval", s.opts.Interval.String(),
		"mode", s.opts.Mode,
	)
	return nil
}

func (s *Scheduler) startWatch() error {
	switch s.opts.Mode {
	case config.WatchModeNotify:
	case config.WatchModeAuto:
		if res := Probe(s.opts.Dir); !res.Supported {
			s.logger.Info("fsnotify not usable on watched directory, polling only", "reason", res.Reason)
			return nil
		}
	default:
		return nil
	}

	w, err := newDirWatcher(s.opts.Dir, s.opts.Debounce, s.logger)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w.run(s.ctx, func() { s.tick(TriggerNotify) })
	}()
	return nil
}

// Stop cancels in-flight work and waits for running scans and the watcher
// to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scan scheduler stopped")
}

func (s *Scheduler) tick(trigger string) {
	if s.ctx.Err() != nil {
		return
	}
	if _, _, err := s.runOnce(s.ctx, trigger); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("scan failed", "trigger", trigger, "error", err)
	}
}

// RunOnce scans now unless a scan is already running, in which case it
// returns skipped=true without scanning.
func (s *Scheduler) RunOnce(ctx context.Context) (usecase.ScanResult, bool, error) {
	return s.runOnce(ctx, TriggerManual)
}

func (s *Scheduler) runOnce(ctx context.Context, trigger string) (res usecase.ScanResult, skipped bool, err error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("scan still in progress, skipping", "trigger", trigger)
		s.metrics.ScanSkipped()
		return usecase.ScanResult{}, true, nil
	}
	defer s.running.Store(false)

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	startedAt := time.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panicked: %v", r)
		}
		s.record(trigger, startedAt, res, err)
	}()

	res, err = s.scanner.Scan(ctx)
	return res, false, err
}

func (s *Scheduler) record(trigger string, startedAt time.Time, res usecase.ScanResult, err error) {
	status := &RunStatus{
		Trigger:    trigger,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Result:     res,
	}
	if err != nil {
		status.Error = err.Error()
	}

	s.mu.Lock()
	s.lastRun = status
	s.mu.Unlock()

	if err == nil && (res.Created > 0 || res.Failed > 0) {
		s.logger.Info("scan completed",
			"trigger", trigger,
			"listed", res.Listed,
			"created", res.Created,
			"skipped", res.Skipped,
			"failed", res.Failed,
			"duration", res.Duration.String(),
		)
		return
	}
	s.logger.Debug("scan completed", "trigger", trigger, "listed", res.Listed, "created", res.Created)
}

// InProgress reports whether a scan is running.
func (s *Scheduler) InProgress() bool {
	return s.running.Load()
}

// LastRun returns the most recent completed scan, if any.
func (s *Scheduler) LastRun() (RunStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return RunStatus{}, false
	}
	return *s.lastRun, true
}
