package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aretw0/introspection"

	"github.com/aretw0/stickies/pkg/core"
)

const notesPath = "/api/sticky-notes/"

// Backend implements core.Backend against the note resource.
// Failures are returned as is; nothing is retried.
type Backend struct {
	client *Client
}

// NewBackend creates a backend. The client must carry a TokenSource.
func NewBackend(c *Client) *Backend {
	return &Backend{client: c}
}

func notePath(id int64) string {
	return fmt.Sprintf("%s%d/", notesPath, id)
}

func (b *Backend) List(ctx context.Context) ([]core.Note, error) {
	var notes []core.Note
	if err := b.client.do(ctx, http.MethodGet, notesPath, nil, &notes, true); err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []core.Note{}
	}
	return notes, nil
}

func (b *Backend) Create(ctx context.Context, d core.Draft) (core.Note, error) {
	var n core.Note
	if err := b.client.do(ctx, http.MethodPost, notesPath, d, &n, true); err != nil {
		return core.Note{}, err
	}
	return n, nil
}

func (b *Backend) Update(ctx context.Context, id int64, p core.Patch) (core.Note, error) {
	var n core.Note
	if err := b.client.do(ctx, http.MethodPatch, notePath(id), p, &n, true); err != nil {
		return core.Note{}, err
	}
	return n, nil
}

func (b *Backend) Delete(ctx context.Context, id int64) error {
	return b.client.do(ctx, http.MethodDelete, notePath(id), nil, nil, true)
}

// State implements introspection.Introspectable.
func (b *Backend) State() any {
	authed := b.client.tokens != nil && b.client.tokens.Token() != ""
	return map[string]any{
		"base_url":      b.client.BaseURL(),
		"authenticated": authed,
	}
}

// ComponentType implements introspection.Component.
func (b *Backend) ComponentType() string {
	return "remote-backend"
}

var (
	_ core.Backend                 = (*Backend)(nil)
	_ introspection.Introspectable = (*Backend)(nil)
	_ introspection.Component      = (*Backend)(nil)
)
