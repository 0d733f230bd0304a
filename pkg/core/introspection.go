package core

import (
	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	Notes         int    `json:"notes"`
	PendingWrites int    `json:"pending_writes"`
	BackendType   string `json:"backend_type"`
	FailurePolicy string `json:"failure_policy"`
	Closed        bool   `json:"closed"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	backendType := "unknown"
	if comp, ok := s.backend.(introspection.Component); ok {
		backendType = comp.ComponentType()
	}
	pending := s.sched.Len()

	s.mu.Lock()
	defer s.mu.Unlock()

	return StoreState{
		Notes:         len(s.notes),
		PendingWrites: pending,
		BackendType:   backendType,
		FailurePolicy: s.policy.String(),
		Closed:        s.closed,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "note-store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
