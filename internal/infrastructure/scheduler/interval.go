package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"AlertEnricher/internal/ports"
)

// IntervalScheduler runs a job immediately and then again interval after
// each run finishes. Runs never overlap. When a watch path is set, writes
// to that file pull the next run forward.
type IntervalScheduler struct {
	interval  time.Duration
	watchPath string
	log       *slog.Logger

	wake chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler builds a scheduler with a fixed pause between runs.
func NewIntervalScheduler(interval time.Duration, log *slog.Logger) *IntervalScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &IntervalScheduler{
		interval: interval,
		log:      log,
		wake:     make(chan struct{}, 1),
	}
}

// WatchFile enables wake-ups on writes to path. Must be called before Start.
func (s *IntervalScheduler) WatchFile(path string) {
	s.watchPath = path
}

// Wake asks for a run as soon as the current one (if any) finishes.
// Repeated calls before that run starts collapse into one.
func (s *IntervalScheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start launches the loop in the background.
func (s *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("scheduler already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	var watcher *fsnotify.Watcher
	if s.watchPath != "" {
		w, err := s.openWatcher()
		if err != nil {
			s.log.Warn("file watch disabled, polling only", "path", s.watchPath, "error", err)
		} else {
			watcher = w
		}
	}

	go s.loop(loopCtx, job, watcher, s.done)
	return nil
}

func (s *IntervalScheduler) loop(ctx context.Context, job func(time.Time), watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var watchDone chan struct{}
	if watcher != nil {
		watchDone = make(chan struct{})
		go s.watch(ctx, watcher, watchDone)
		defer func() {
			_ = watcher.Close()
			<-watchDone
		}()
	}

	for {
		if ctx.Err() != nil {
			return
		}
		job(time.Now())

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-s.wake:
			timer.Stop()
		}
	}
}

// openWatcher watches the parent directory so the log can be created or
// rotated after startup.
func (s *IntervalScheduler) openWatcher() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(s.watchPath)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (s *IntervalScheduler) watch(ctx context.Context, w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	target := filepath.Clean(s.watchPath)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.Wake()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.Warn("file watch error", "path", s.watchPath, "error", err)
		}
	}
}

// Stop cancels the loop and waits for the running job to return, or for
// ctx to expire.
func (s *IntervalScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
