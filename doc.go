// Package stickies is the Composition Root for the sticky notes client.
//
// It connects the note domain (optimistic store, debounced writes, color
// contrast) with the persistence adapters using the Hexagonal Architecture
// pattern.
//
// Philosophy:
//
// Notes live in one place per session. Signed in, they live on the server
// behind the REST API; signed out, they live in a local key-value storage.
// The store applies every edit in memory first and writes it behind the
// scenes, so the interface never waits on the network.
//
// Features:
//
//   - **Backend Port**: `core.Backend` is implemented by the remote API and by local storage.
//   - **Optimistic Updates**: Edits are visible immediately; failures are logged or reverted.
//   - **Coalesced Writes**: Drags, typing and resizing collapse into a single write per field.
//   - **Readable Colors**: Text contrast is derived from the background brightness.
//   - **Pluggable Storage**: JSON file (default), SQLite or memory.
//
// Usage:
//
//	app, err := stickies.Open(ctx,
//		stickies.WithAPIURL("https://notes.example.com"),
//		stickies.WithLogger(logger),
//	)
//	defer app.Close(ctx)
//
//	note, err := app.Store().AddNote(ctx, "buy milk", "", "")
package stickies
