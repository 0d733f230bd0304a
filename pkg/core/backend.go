package core

import "context"

// Backend persists notes. One implementation is selected per session and
// injected into the Store: the remote API when signed in, local storage
// otherwise.
type Backend interface {
	// List returns every stored note.
	List(ctx context.Context) ([]Note, error)

	// Create stores a draft and returns the canonical note, including its ID.
	Create(ctx context.Context, d Draft) (Note, error)

	// Update applies a partial update and returns the canonical note.
	// Missing notes yield ErrNotFound.
	Update(ctx context.Context, id int64, p Patch) (Note, error)

	// Delete removes a note.
	Delete(ctx context.Context, id int64) error
}
