// Package local persists notes in a kv.Storage under a single key holding
// the whole collection as a JSON array. It is the backend used when no user
// is signed in.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/introspection"

	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/kv"
)

// StorageKey is the key holding the serialized note array.
const StorageKey = "stickyNotes"

// Backend implements core.Backend with read-modify-write cycles over one key.
//
// IDs of created notes are the creation time in Unix milliseconds. Two notes
// created within the same millisecond would collide; this is a known risk.
type Backend struct {
	storage kv.Storage
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used for unreadable storage warnings.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithNow replaces the time source used for IDs.
func WithNow(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// New creates a Backend over storage.
func New(storage kv.Storage, opts ...Option) *Backend {
	b := &Backend{
		storage: storage,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// read loads the collection. Missing or unparseable content is an empty
// collection.
func (b *Backend) read(ctx context.Context) ([]core.Note, error) {
	raw, ok, err := b.storage.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", StorageKey, err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var notes []core.Note
	if err := json.Unmarshal([]byte(raw), &notes); err != nil {
		b.logger.Warn("unparseable local notes, treating as empty", "key", StorageKey, "error", err)
		return nil, nil
	}
	return notes, nil
}

func (b *Backend) write(ctx context.Context, notes []core.Note) error {
	if notes == nil {
		notes = []core.Note{}
	}
	raw, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	if err := b.storage.Set(ctx, StorageKey, string(raw)); err != nil {
		return fmt.Errorf("write %s: %w", StorageKey, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context) ([]core.Note, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	notes, err := b.read(ctx)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []core.Note{}
	}
	return notes, nil
}

func (b *Backend) Create(ctx context.Context, d core.Draft) (core.Note, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	notes, err := b.read(ctx)
	if err != nil {
		return core.Note{}, err
	}
	n := d.Note(b.now().UnixMilli())
	notes = append(notes, n)
	if err := b.write(ctx, notes); err != nil {
		return core.Note{}, err
	}
	return n, nil
}

func (b *Backend) Update(ctx context.Context, id int64, p core.Patch) (core.Note, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	notes, err := b.read(ctx)
	if err != nil {
		return core.Note{}, err
	}
	for i := range notes {
		if notes[i].ID != id {
			continue
		}
		notes[i] = p.Apply(notes[i])
		if err := b.write(ctx, notes); err != nil {
			return core.Note{}, err
		}
		return notes[i], nil
	}
	return core.Note{}, fmt.Errorf("%w: %d", core.ErrNotFound, id)
}

func (b *Backend) Delete(ctx context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	notes, err := b.read(ctx)
	if err != nil {
		return err
	}
	for i := range notes {
		if notes[i].ID == id {
			notes = append(notes[:i], notes[i+1:]...)
			return b.write(ctx, notes)
		}
	}
	return fmt.Errorf("%w: %d", core.ErrNotFound, id)
}

// State implements introspection.Introspectable.
func (b *Backend) State() any {
	return map[string]any{
		"key":     StorageKey,
		"storage": fmt.Sprintf("%T", b.storage),
	}
}

// ComponentType implements introspection.Component.
func (b *Backend) ComponentType() string {
	return "local-backend"
}

var (
	_ core.Backend                 = (*Backend)(nil)
	_ introspection.Introspectable = (*Backend)(nil)
	_ introspection.Component      = (*Backend)(nil)
)
