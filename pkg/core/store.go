package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/stickies/pkg/color"
	"github.com/aretw0/stickies/pkg/debounce"
)

// Quiet windows of the coalesced writes.
const (
	PositionWindow = 300 * time.Millisecond
	ContentWindow  = 500 * time.Millisecond
	HeightWindow   = 500 * time.Millisecond
)

// FailurePolicy decides what happens to an optimistic change whose write fails.
type FailurePolicy int

const (
	// KeepOptimistic leaves the in-memory state ahead of the backend until
	// the next reload.
	KeepOptimistic FailurePolicy = iota
	// RevertOnFailure rolls back color, text color, expansion and delete
	// changes whose write failed. Coalesced writes are never reverted since
	// a newer local value may already exist.
	RevertOnFailure
)

func (p FailurePolicy) String() string {
	if p == RevertOnFailure {
		return "revert"
	}
	return "keep"
}

// ParseFailurePolicy accepts "keep" or "revert".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return KeepOptimistic, nil
	case "revert":
		return RevertOnFailure, nil
	default:
		return KeepOptimistic, fmt.Errorf("unknown failure policy %q", s)
	}
}

type position struct{ x, y float64 }

// Store owns the in-memory note collection. Every mutation is applied to
// memory first and then forwarded to the Backend, either directly or through
// the debounce scheduler.
type Store struct {
	backend Backend
	sched   *debounce.Scheduler
	clock   debounce.Clock
	colors  color.Source
	logger  *slog.Logger
	onError func(error)
	policy  FailurePolicy

	mu        sync.Mutex
	notes     []Note
	committed map[int64]position // last position the backend acknowledged
	closed    bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger for failed writes and normalization warnings.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock drives timestamps and debounce windows.
func WithClock(c debounce.Clock) StoreOption {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithColorSource sets the generator behind ChangeColor and ChangeTextColor.
func WithColorSource(src color.Source) StoreOption {
	return func(s *Store) {
		if src != nil {
			s.colors = src
		}
	}
}

// WithFailurePolicy selects how failed writes are handled.
func WithFailurePolicy(p FailurePolicy) StoreOption {
	return func(s *Store) {
		s.policy = p
	}
}

// WithErrorHandler receives every failed backend call, coalesced or not.
func WithErrorHandler(fn func(error)) StoreOption {
	return func(s *Store) {
		s.onError = fn
	}
}

// NewStore creates an empty store on top of backend. Call Load to fill it.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend:   backend,
		clock:     debounce.SystemClock,
		colors:    color.DefaultSource,
		logger:    slog.New(slog.DiscardHandler),
		committed: make(map[int64]position),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sched = debounce.New(
		debounce.WithClock(s.clock),
		debounce.WithErrorHandler(func(k debounce.Key, err error) {
			s.report("update "+k.Field, k.NoteID, err)
		}),
	)
	return s
}

// Backend returns the backend the store writes to.
func (s *Store) Backend() Backend {
	return s.backend
}

func (s *Store) report(op string, id int64, err error) {
	s.logger.Error("note write failed", "op", op, "id", id, "error", err)
	if s.onError != nil {
		s.onError(fmt.Errorf("%s note %d: %w", op, id, err))
	}
}

func (s *Store) indexLocked(id int64) int {
	for i := range s.notes {
		if s.notes[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) normalize(n Note) Note {
	n, ok := n.Normalize()
	if !ok {
		s.logger.Warn("note has malformed color", "id", n.ID, "color", n.Color)
	}
	return n
}

// Load replaces the collection with the backend's notes. Fields that still
// have a coalesced write pending keep their local value.
func (s *Store) Load(ctx context.Context) error {
	notes, err := s.backend.List(ctx)
	if err != nil {
		s.logger.Error("failed to load notes", "error", err)
		return fmt.Errorf("load notes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[int64]Note, len(s.notes))
	for _, n := range s.notes {
		current[n.ID] = n
	}

	seen := make(map[int64]bool, len(notes))
	loaded := make([]Note, 0, len(notes))
	committed := make(map[int64]position, len(notes))
	for _, n := range notes {
		if seen[n.ID] {
			s.logger.Warn("duplicate note id, keeping first", "id", n.ID)
			continue
		}
		seen[n.ID] = true
		n = s.normalize(n)
		committed[n.ID] = position{n.PositionX, n.PositionY}
		if cur, ok := current[n.ID]; ok {
			n = s.keepPendingLocked(n, cur)
		}
		loaded = append(loaded, n)
	}
	s.notes = loaded
	s.committed = committed
	return nil
}

// keepPendingLocked copies from local into fresh every field whose coalesced
// write has not run yet.
func (s *Store) keepPendingLocked(fresh, local Note) Note {
	if s.sched.Pending(debounce.Key{NoteID: fresh.ID, Field: FieldContent}) {
		fresh.Content = local.Content
	}
	if s.sched.Pending(debounce.Key{NoteID: fresh.ID, Field: FieldPosition}) {
		fresh.PositionX, fresh.PositionY = local.PositionX, local.PositionY
	}
	if s.sched.Pending(debounce.Key{NoteID: fresh.ID, Field: FieldHeight}) {
		fresh.Height = local.Height
	}
	return fresh
}

// Notes returns a copy of the collection in display order.
func (s *Store) Notes() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Note(nil), s.notes...)
}

// Get returns the in-memory note with id.
func (s *Store) Get(id int64) (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.notes[i], true
	}
	return Note{}, false
}

// Len returns the number of notes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

// AddNote creates a note and appends the backend's canonical copy. Empty
// colors fall back to the defaults. Nothing is appended if the create fails.
func (s *Store) AddNote(ctx context.Context, content, bg, fg string) (Note, error) {
	if bg == "" {
		bg = DefaultColor
	}
	if fg == "" {
		fg = DefaultTextColor
	}
	if !color.Valid(bg) {
		return Note{}, fmt.Errorf("%w: %q", ErrInvalidColor, bg)
	}
	if !color.Valid(fg) {
		return Note{}, fmt.Errorf("%w: %q", ErrInvalidColor, fg)
	}
	if s.isClosed() {
		return Note{}, ErrClosed
	}

	draft := Draft{
		Content:       content,
		Color:         bg,
		TextColor:     fg,
		ContrastColor: color.Contrast(bg),
		Height:        DefaultHeight,
		CreatedAt:     s.clock.Now().UTC(),
	}

	created, err := s.backend.Create(ctx, draft)
	if err != nil {
		s.report("create", 0, err)
		return Note{}, err
	}
	created = s.normalize(created)

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(created.ID); i >= 0 {
		s.logger.Warn("created note id already present, replacing", "id", created.ID)
		s.notes[i] = created
	} else {
		s.notes = append(s.notes, created)
	}
	s.committed[created.ID] = position{created.PositionX, created.PositionY}
	return created, nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// mutate applies fn to the in-memory note and returns the note before and
// after the change.
func (s *Store) mutate(id int64, fn func(*Note)) (before, after Note, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Note{}, Note{}, ErrClosed
	}
	i := s.indexLocked(id)
	if i < 0 {
		return Note{}, Note{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	before = s.notes[i]
	fn(&s.notes[i])
	return before, s.notes[i], nil
}

// EditContent updates the text now and persists it once typing has paused
// for ContentWindow.
func (s *Store) EditContent(id int64, content string) error {
	if _, _, err := s.mutate(id, func(n *Note) { n.Content = content }); err != nil {
		return err
	}
	patch := ContentPatch(content)
	return s.schedule(id, FieldContent, debounce.Trailing, ContentWindow, func(ctx context.Context) error {
		_, err := s.backend.Update(ctx, id, patch)
		return err
	})
}

// UpdatePosition moves the note now and persists the position PositionWindow
// after the first call of a burst. Callers invoke it at drag stop, not on
// every pointer move.
func (s *Store) UpdatePosition(id int64, x, y float64) error {
	if _, _, err := s.mutate(id, func(n *Note) { n.PositionX, n.PositionY = x, y }); err != nil {
		return err
	}
	patch := PositionPatch(x, y)
	return s.schedule(id, FieldPosition, debounce.Leading, PositionWindow, func(ctx context.Context) error {
		if _, err := s.backend.Update(ctx, id, patch); err != nil {
			return err
		}
		s.mu.Lock()
		s.committed[id] = position{x, y}
		s.mu.Unlock()
		return nil
	})
}

// UpdateHeight resizes the note now and persists the height once resizing
// has paused for HeightWindow.
func (s *Store) UpdateHeight(id int64, height float64) error {
	if height <= 0 {
		return fmt.Errorf("height must be positive, got %v", height)
	}
	if _, _, err := s.mutate(id, func(n *Note) { n.Height = height }); err != nil {
		return err
	}
	patch := HeightPatch(height)
	return s.schedule(id, FieldHeight, debounce.Trailing, HeightWindow, func(ctx context.Context) error {
		_, err := s.backend.Update(ctx, id, patch)
		return err
	})
}

func (s *Store) schedule(id int64, field string, mode debounce.Mode, window time.Duration, task debounce.Task) error {
	err := s.sched.Schedule(debounce.Key{NoteID: id, Field: field}, mode, window, task)
	if errors.Is(err, debounce.ErrStopped) {
		return ErrClosed
	}
	return err
}

// ChangeColor picks a random background, recomputes the contrast color and
// persists both immediately.
func (s *Store) ChangeColor(ctx context.Context, id int64) (Note, error) {
	bg := s.randomColor()
	contrast := color.Contrast(bg)
	return s.commit(ctx, "change color", id, ColorPatch(bg, contrast))
}

// ChangeTextColor picks a random text color and persists it immediately.
func (s *Store) ChangeTextColor(ctx context.Context, id int64) (Note, error) {
	return s.commit(ctx, "change text color", id, TextColorPatch(s.randomColor()))
}

// ToggleExpand flips the display mode and persists it immediately.
func (s *Store) ToggleExpand(ctx context.Context, id int64) (Note, error) {
	s.mu.Lock()
	i := s.indexLocked(id)
	var expanded bool
	if i >= 0 {
		expanded = !s.notes[i].IsExpanded
	}
	s.mu.Unlock()
	return s.commit(ctx, "toggle expand", id, ExpandedPatch(expanded))
}

func (s *Store) randomColor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return color.Random(s.colors)
}

// commit applies patch optimistically and writes it through. On success the
// patched fields take the backend's canonical values.
func (s *Store) commit(ctx context.Context, op string, id int64, patch Patch) (Note, error) {
	before, after, err := s.mutate(id, func(n *Note) { *n = patch.Apply(*n) })
	if err != nil {
		return Note{}, err
	}

	canonical, err := s.backend.Update(ctx, id, patch)
	if err != nil {
		s.report(op, id, err)
		if s.policy == RevertOnFailure {
			after = s.revert(id, before, patch)
		}
		return after, err
	}

	canonical = s.normalize(canonical)
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		n := patch.Copy(s.notes[i], canonical)
		n.ContrastColor = canonical.ContrastColor
		if canonical.UpdatedAt != nil {
			n.UpdatedAt = canonical.UpdatedAt
		}
		s.notes[i] = n
		after = n
	}
	return after, nil
}

func (s *Store) revert(id int64, before Note, patch Patch) Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return before
	}
	s.notes[i] = patch.Copy(s.notes[i], before)
	return s.notes[i]
}

// DeleteNote removes the note from memory and the backend. Unknown ids are a
// no-op. Pending coalesced writes for the note are dropped.
func (s *Store) DeleteNote(ctx context.Context, id int64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	removed := s.notes[i]
	s.notes = append(s.notes[:i:i], s.notes[i+1:]...)
	committed, hadCommitted := s.committed[id]
	delete(s.committed, id)
	s.mu.Unlock()

	s.sched.CancelNote(id)

	err := s.backend.Delete(ctx, id)
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}
	s.report("delete", id, err)

	if s.policy == RevertOnFailure {
		s.mu.Lock()
		if s.indexLocked(id) < 0 {
			at := min(i, len(s.notes))
			s.notes = append(s.notes[:at:at], append([]Note{removed}, s.notes[at:]...)...)
			if hadCommitted {
				s.committed[id] = committed
			}
		}
		s.mu.Unlock()
	}
	return err
}

// Flush persists every pending coalesced write now.
func (s *Store) Flush(ctx context.Context) error {
	return s.sched.Flush(ctx)
}

// Close flushes pending writes, then persists every position that still
// differs from the last acknowledged one. Further mutations fail with
// ErrClosed.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if err := s.sched.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	type move struct {
		id   int64
		x, y float64
	}
	s.mu.Lock()
	var moves []move
	for _, n := range s.notes {
		if p, ok := s.committed[n.ID]; !ok || p.x != n.PositionX || p.y != n.PositionY {
			moves = append(moves, move{n.ID, n.PositionX, n.PositionY})
		}
	}
	s.mu.Unlock()

	for _, m := range moves {
		if _, err := s.backend.Update(ctx, m.id, PositionPatch(m.x, m.y)); err != nil {
			s.report("sweep position", m.id, err)
			errs = append(errs, err)
			continue
		}
		s.mu.Lock()
		s.committed[m.id] = position{m.x, m.y}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}
