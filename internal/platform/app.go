package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"

	storagesource "github.com/aretw0/stickies/pkg/adapters/lifecycle"
	"github.com/aretw0/stickies/pkg/adapters/local"
	"github.com/aretw0/stickies/pkg/adapters/remote"
	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/kv"
	"github.com/aretw0/stickies/pkg/session"
)

// App wires a session, its backend and the note store. Exactly one backend
// is active at a time; signing in or out closes the current store and opens
// a new one against the other backend. Local and remote notes are never
// merged.
type App struct {
	opts    *options
	logger  *slog.Logger
	storage kv.Storage
	client  *remote.Client
	session *session.Manager

	ctx    context.Context // lives until Close
	cancel context.CancelFunc

	mu          sync.Mutex
	store       *core.Store
	remote      bool
	stopWatch   context.CancelFunc
	refreshStop context.CancelFunc
	closed      bool
}

// Open restores any persisted session and loads the notes of the matching backend.
func Open(ctx context.Context, opts ...Option) (*App, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	storage, err := OpenStorage(o, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &App{opts: o, logger: logger, storage: storage}

	clientOpts := []remote.Option{
		remote.WithLogger(logger),
		remote.WithTokenSource(remote.TokenFunc(func() string { return a.session.Token() })),
	}
	if o.timeout > 0 {
		clientOpts = append(clientOpts, remote.WithTimeout(o.timeout))
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, remote.WithHTTPClient(o.httpClient))
	}
	a.client, err = remote.NewClient(o.apiURL, clientOpts...)
	if err != nil {
		a.closeStorage()
		return nil, err
	}

	a.session = session.NewManager(a.client, storage, session.WithLogger(logger))
	a.session.OnChange(func(s *session.Session) {
		if s == nil {
			a.handleExpiry()
		}
	})

	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if _, err := a.session.Restore(ctx); err != nil {
		logger.Warn("could not restore session", "error", err)
	}
	if err := a.openStore(ctx); err != nil {
		a.cancel()
		a.closeStorage()
		return nil, err
	}
	return a, nil
}

// openStore builds the store for the current session state. Caller holds
// a.mu or has exclusive access.
func (a *App) openStore(ctx context.Context) error {
	loggedIn := a.session.LoggedIn()
	backend := NewBackend(loggedIn, a.client, a.storage, a.logger)

	storeOpts := []core.StoreOption{
		core.WithLogger(a.logger),
		core.WithFailurePolicy(a.opts.policy),
		core.WithClock(a.opts.clock),
		core.WithColorSource(a.opts.colors),
		core.WithErrorHandler(a.opts.errorHandler),
	}
	store := core.NewStore(backend, storeOpts...)
	if err := store.Load(ctx); err != nil {
		if !errors.Is(err, core.ErrUnauthorized) || !loggedIn {
			return err
		}
		// Stale tokens from an earlier run: fall back to local notes.
		_ = store.Close(ctx)
		a.logger.Warn("stored session rejected, continuing signed out")
		if err := a.session.Logout(ctx); err != nil {
			a.logger.Warn("failed to clear session", "error", err)
		}
		return a.openStore(ctx)
	}

	a.store = store
	a.remote = loggedIn
	a.logger.Debug("note store ready", "backend", backendName(loggedIn), "notes", store.Len())

	if loggedIn && a.opts.autoRefresh {
		refreshCtx, stop := context.WithCancel(a.ctx)
		a.refreshStop = stop
		a.session.StartRefresh(refreshCtx, a.opts.refreshInterval)
	}
	if !loggedIn && a.opts.watch {
		a.startWatch(store)
	}
	return nil
}

func backendName(isRemote bool) string {
	if isRemote {
		return "remote"
	}
	return "local"
}

// startWatch reloads store whenever another process rewrites the local notes.
func (a *App) startWatch(store *core.Store) {
	w, ok := a.storage.(kv.Watchable)
	if !ok {
		a.logger.Debug("storage is not watchable, skipping watch")
		return
	}
	ctx, stop := context.WithCancel(a.ctx)
	events, err := w.Watch(ctx, local.StorageKey)
	if err != nil {
		stop()
		a.reportError(fmt.Errorf("watch storage: %w", err))
		return
	}
	a.stopWatch = stop

	src := storagesource.NewSource(events)
	if err := src.Start(ctx); err != nil {
		a.reportError(fmt.Errorf("watch storage: %w", err))
		return
	}

	lifecycle.Go(ctx, func(ctx context.Context) error {
		for e := range src.Events() {
			a.logger.Debug("local notes changed externally", "event", e)
			if err := store.Load(ctx); err != nil {
				a.reportError(fmt.Errorf("reload notes: %w", err))
			}
		}
		return nil
	}, lifecycle.WithErrorHandler(func(err error) {
		a.reportError(fmt.Errorf("watch loop panic: %w", err))
	}))
}

func (a *App) reportError(err error) {
	a.logger.Error("app error", "error", err)
	if a.opts.errorHandler != nil {
		a.opts.errorHandler(err)
	}
}

// closeStoreLocked stops background work tied to the current store and
// flushes it.
func (a *App) closeStoreLocked(ctx context.Context) error {
	if a.stopWatch != nil {
		a.stopWatch()
		a.stopWatch = nil
	}
	if a.refreshStop != nil {
		a.refreshStop()
		a.refreshStop = nil
	}
	if a.store == nil {
		return nil
	}
	err := a.store.Close(ctx)
	a.store = nil
	return err
}

// handleExpiry switches back to local notes when the server ends the
// session on its own. It runs asynchronously since the session notifies
// while Logout is still in progress.
func (a *App) handleExpiry() {
	lifecycle.Go(a.ctx, func(ctx context.Context) error {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.closed || !a.remote || a.session.LoggedIn() {
			return nil
		}
		a.logger.Warn("session expired, switching to local notes")
		if err := a.closeStoreLocked(ctx); err != nil {
			a.logger.Warn("unsaved remote changes lost", "error", err)
		}
		return a.openStore(ctx)
	}, lifecycle.WithErrorHandler(func(err error) {
		a.reportError(fmt.Errorf("switch to local notes: %w", err))
	}))
}

// Store returns the active note store.
func (a *App) Store() *core.Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store
}

// Session returns the session manager.
func (a *App) Session() *session.Manager {
	return a.session
}

// Remote reports whether the remote backend is active.
func (a *App) Remote() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remote
}

// Login signs in and switches to the remote notes. Pending local writes are
// flushed first. On failure the local notes stay active.
func (a *App) Login(ctx context.Context, email, password string) (*session.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, core.ErrClosed
	}
	if a.remote {
		if err := a.session.Logout(ctx); err != nil {
			a.logger.Warn("failed to end previous session", "error", err)
		}
	}
	if err := a.closeStoreLocked(ctx); err != nil {
		a.logger.Warn("some local changes were not saved", "error", err)
	}

	s, err := a.session.Login(ctx, email, password)
	if err != nil {
		if openErr := a.openStore(ctx); openErr != nil {
			return nil, errors.Join(err, openErr)
		}
		return nil, err
	}
	if err := a.openStore(ctx); err != nil {
		return s, err
	}
	return s, nil
}

// Logout flushes pending remote writes while the token is still valid, ends
// the session and switches to the local notes.
func (a *App) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return core.ErrClosed
	}
	var errs []error
	if err := a.closeStoreLocked(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.session.Logout(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.openStore(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Register creates an account without signing in.
func (a *App) Register(ctx context.Context, email, username, password string) (remote.User, error) {
	return a.session.Register(ctx, email, username, password)
}

// RequestPasswordReset asks the server to mail a reset link.
func (a *App) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	return a.session.RequestPasswordReset(ctx, email)
}

// ConfirmPasswordReset sets a new password from a reset link.
func (a *App) ConfirmPasswordReset(ctx context.Context, userID int64, token, newPassword string) (string, error) {
	return a.session.ConfirmPasswordReset(ctx, userID, token, newPassword)
}

// Close flushes pending writes and releases every resource.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	err := a.closeStoreLocked(ctx)
	a.mu.Unlock()

	a.cancel()
	return errors.Join(err, a.closeStorage())
}

func (a *App) closeStorage() error {
	if c, ok := a.storage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// AppState exposes internal state for observability.
type AppState struct {
	Backend string `json:"backend"`
	Closed  bool   `json:"closed"`
	Store   any    `json:"store,omitempty"`
	Session any    `json:"session"`
	Storage any    `json:"storage,omitempty"`
}

// State implements introspection.Introspectable.
func (a *App) State() any {
	a.mu.Lock()
	st := AppState{Backend: backendName(a.remote), Closed: a.closed, Session: a.session.State()}
	store := a.store
	a.mu.Unlock()

	if store != nil {
		st.Store = store.State()
	}
	if in, ok := a.storage.(introspection.Introspectable); ok {
		st.Storage = in.State()
	}
	return st
}

// ComponentType implements introspection.Component.
func (a *App) ComponentType() string {
	return "app"
}

var _ introspection.Introspectable = (*App)(nil)
var _ introspection.Component = (*App)(nil)
