// Package kv defines the string-keyed local storage used when no user is
// signed in. It plays the role a browser's localStorage plays for a web
// client: a flat map of keys to string values, persisted across sessions.
package kv

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/aretw0/stickies/pkg/core"
)

// Storage is a string-keyed store.
// Get reports ok=false for missing keys. Remove of a missing key is not an error.
type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Lister is implemented by storages that can enumerate their keys.
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}

// Watchable is implemented by storages that can report changes made by
// other processes.
type Watchable interface {
	// Watch emits an Event for every key whose value changed outside this
	// handle. Keys are filtered by a glob pattern ("*" matches all).
	// The channel is closed when ctx is cancelled.
	Watch(ctx context.Context, pattern string) (<-chan Event, error)
}

// EventType is the kind of change observed for a key.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
)

// Event reports a change of a key.
type Event struct {
	Type      EventType
	Key       string
	Timestamp int64 // Unix timestamp
}

func (e Event) String() string {
	return string(e.Type) + " " + e.Key
}

// Diff returns the events that turn before into after, sorted by key.
func Diff(before, after map[string]string, now int64) []Event {
	var events []Event
	for k, v := range after {
		old, ok := before[k]
		switch {
		case !ok:
			events = append(events, Event{Type: EventCreate, Key: k, Timestamp: now})
		case old != v:
			events = append(events, Event{Type: EventModify, Key: k, Timestamp: now})
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			events = append(events, Event{Type: EventDelete, Key: k, Timestamp: now})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Key < events[j].Key })
	return events
}

// Memory is an in-process Storage. Its content is lost on exit.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory returns an empty Memory storage.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Keys(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

var (
	_ Storage = (*Memory)(nil)
	_ Lister  = (*Memory)(nil)
)

// ReadOnly wraps s so that Set and Remove fail with core.ErrReadOnly.
// Reads, Keys and Close are forwarded when s supports them.
func ReadOnly(s Storage) Storage {
	return readOnly{s}
}

type readOnly struct{ Storage }

func (readOnly) Set(context.Context, string, string) error { return core.ErrReadOnly }

func (readOnly) Remove(context.Context, string) error { return core.ErrReadOnly }

func (r readOnly) Keys(ctx context.Context) ([]string, error) {
	if l, ok := r.Storage.(Lister); ok {
		return l.Keys(ctx)
	}
	return nil, errors.New("storage cannot list keys")
}

func (r readOnly) Close() error {
	if c, ok := r.Storage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
