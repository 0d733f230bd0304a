// Package debounce coalesces bursts of writes that target the same note field
// into a single call carrying the most recent value.
//
// Every (note, field) pair owns one slot holding the latest task, its timer
// and whether a call for that pair is currently executing. At most one call
// per pair runs at any time; a window that closes while a call is still in
// flight is queued and runs as soon as the call returns.
package debounce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned by Schedule once Stop has been called.
var ErrStopped = errors.New("debounce: scheduler stopped")

// Mode selects where the quiet window of a burst is anchored.
type Mode int

const (
	// Trailing restarts the window on every call. The task runs once the
	// burst has been quiet for the whole window.
	Trailing Mode = iota
	// Leading opens the window on the first call of a burst and never
	// extends it. Later calls only replace the task.
	Leading
)

func (m Mode) String() string {
	switch m {
	case Leading:
		return "leading"
	case Trailing:
		return "trailing"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Key identifies a coalescing slot.
type Key struct {
	NoteID int64
	Field  string
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s", k.NoteID, k.Field)
}

// Task is the deferred write. It receives the context of whoever triggered
// the run: the scheduler base context for timer fires, the caller's for Flush.
type Task func(ctx context.Context) error

type slot struct {
	task    Task
	timer   Timer
	gen     uint64
	running bool
	ready   bool // window closed while running, run task right after
}

// Scheduler maps keys to pending tasks.
type Scheduler struct {
	mu      sync.Mutex
	clock   Clock
	logger  *slog.Logger
	onError func(Key, error)
	base    context.Context

	slots   map[Key]*slot
	active  int
	waiters []chan struct{}
	stopped bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger used for failed tasks.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithErrorHandler receives every error returned by a task. When set, the
// scheduler does not log task errors itself.
func WithErrorHandler(fn func(Key, error)) Option {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// WithContext sets the context passed to tasks fired by a timer.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) {
		if ctx != nil {
			s.base = ctx
		}
	}
}

// New creates an idle scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:  SystemClock,
		logger: slog.New(slog.DiscardHandler),
		base:   context.Background(),
		slots:  make(map[Key]*slot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the clock driving the scheduler.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Schedule registers task as the latest write for key.
func (s *Scheduler) Schedule(key Key, mode Mode, window time.Duration, task Task) error {
	if task == nil {
		return errors.New("debounce: nil task")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	sl, ok := s.slots[key]
	if !ok {
		sl = &slot{}
		s.slots[key] = sl
	}
	sl.task = task

	switch mode {
	case Leading:
		if sl.timer != nil {
			return nil
		}
	default:
		if sl.timer != nil {
			sl.timer.Stop()
		}
	}

	sl.gen++
	gen := sl.gen
	sl.timer = s.clock.AfterFunc(window, func() { s.fire(key, gen) })
	return nil
}

// fire runs when the window of key closes. A fire whose generation no longer
// matches was superseded by a reset, Cancel or Flush and is ignored.
func (s *Scheduler) fire(key Key, gen uint64) {
	s.mu.Lock()
	sl, ok := s.slots[key]
	if !ok || sl.gen != gen {
		s.mu.Unlock()
		return
	}
	sl.timer = nil
	if sl.running {
		sl.ready = true
		s.mu.Unlock()
		return
	}
	task := sl.task
	sl.task = nil
	sl.running = true
	s.active++
	s.mu.Unlock()

	s.run(s.base, key, sl, task)
}

// run executes task and any task that became ready meanwhile, then releases
// the slot. It returns the errors of the calls it made.
func (s *Scheduler) run(ctx context.Context, key Key, sl *slot, task Task) error {
	var errs []error
	for {
		if err := s.call(ctx, task); err != nil {
			errs = append(errs, err)
			s.report(key, err)
		}

		s.mu.Lock()
		if sl.ready && sl.task != nil {
			task = sl.task
			sl.task = nil
			sl.ready = false
			s.mu.Unlock()
			continue
		}
		sl.ready = false
		sl.running = false
		if sl.task == nil && sl.timer == nil && s.slots[key] == sl {
			delete(s.slots, key)
		}
		s.active--
		if s.active == 0 {
			for _, w := range s.waiters {
				close(w)
			}
			s.waiters = nil
		}
		s.mu.Unlock()
		return errors.Join(errs...)
	}
}

func (s *Scheduler) call(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("debounce: task panic: %v", r)
		}
	}()
	return task(ctx)
}

func (s *Scheduler) report(key Key, err error) {
	if s.onError != nil {
		s.onError(key, err)
		return
	}
	s.logger.Error("debounced write failed", "note", key.NoteID, "field", key.Field, "error", err)
}

// Pending reports whether key has a task that has not started yet.
func (s *Scheduler) Pending(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	return ok && sl.task != nil
}

// Len returns the number of keys with a task that has not started yet.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sl := range s.slots {
		if sl.task != nil {
			n++
		}
	}
	return n
}

// Cancel drops the pending task of key. A call already in flight is not
// interrupted. It reports whether a pending task was dropped.
func (s *Scheduler) Cancel(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(key)
}

// CancelNote drops every pending task of a note.
func (s *Scheduler) CancelNote(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.slots {
		if key.NoteID == id && s.cancelLocked(key) {
			n++
		}
	}
	return n
}

func (s *Scheduler) cancelLocked(key Key) bool {
	sl, ok := s.slots[key]
	if !ok {
		return false
	}
	dropped := sl.task != nil
	if sl.timer != nil {
		sl.timer.Stop()
		sl.timer = nil
	}
	sl.gen++
	sl.task = nil
	sl.ready = false
	if !sl.running {
		delete(s.slots, key)
	}
	return dropped
}

// Flush runs every pending task now, on the calling goroutine, and waits for
// calls already in flight to finish. Tasks whose key is busy run right after
// the in-flight call on its goroutine. It returns the errors of the tasks it
// ran itself.
func (s *Scheduler) Flush(ctx context.Context) error {
	type job struct {
		key  Key
		sl   *slot
		task Task
	}

	s.mu.Lock()
	var jobs []job
	for key, sl := range s.slots {
		if sl.task == nil {
			continue
		}
		if sl.timer != nil {
			sl.timer.Stop()
			sl.timer = nil
		}
		sl.gen++
		if sl.running {
			sl.ready = true
			continue
		}
		jobs = append(jobs, job{key: key, sl: sl, task: sl.task})
		sl.task = nil
		sl.running = true
		s.active++
	}
	s.mu.Unlock()

	var errs []error
	for _, j := range jobs {
		if err := s.run(ctx, j.key, j.sl, j.task); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.wait(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Scheduler) wait(ctx context.Context) error {
	s.mu.Lock()
	if s.active == 0 {
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop rejects further scheduling and flushes what is pending.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return s.Flush(ctx)
}

// Stopped reports whether Stop has been called.
func (s *Scheduler) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
