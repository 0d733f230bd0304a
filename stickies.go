package stickies

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/stickies/internal/platform"
	"github.com/aretw0/stickies/pkg/color"
	"github.com/aretw0/stickies/pkg/config"
	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/debounce"
	"github.com/aretw0/stickies/pkg/kv"
)

// --- Types ---

// App is a running session: the note store plus the backend it talks to.
type App = platform.App

// AppState is the snapshot returned by App.State.
type AppState = platform.AppState

// Note is a public alias for the note entity.
type Note = core.Note

// Store is a public alias for the optimistic note store.
type Store = core.Store

// FailurePolicy is a public alias for the store's write failure policy.
type FailurePolicy = core.FailurePolicy

const (
	KeepOptimistic  = core.KeepOptimistic
	RevertOnFailure = core.RevertOnFailure
)

// --- Configuration ---

// Option defines a functional option for configuring an App.
type Option = platform.Option

// WithAPIURL sets the root of the notes API (default http://localhost:8000).
func WithAPIURL(url string) Option {
	return platform.WithAPIURL(url)
}

// WithHTTPClient replaces the http.Client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return platform.WithHTTPClient(hc)
}

// WithTimeout bounds each API request.
func WithTimeout(d time.Duration) Option {
	return platform.WithTimeout(d)
}

// WithStorage allows injecting a custom local storage.
func WithStorage(s kv.Storage) Option {
	return platform.WithStorage(s)
}

// WithAdapter selects the local storage by name: "fs", "sqlite" or "memory".
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithDataDir sets where local files are kept.
func WithDataDir(dir string) Option {
	return platform.WithDataDir(dir)
}

// WithReadOnly makes the local storage reject writes with core.ErrReadOnly.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithFailurePolicy selects how failed writes are handled.
func WithFailurePolicy(p FailurePolicy) Option {
	return platform.WithFailurePolicy(p)
}

// WithClock drives timestamps and debounce windows.
func WithClock(c debounce.Clock) Option {
	return platform.WithClock(c)
}

// WithColorSource sets the generator behind random note colors.
func WithColorSource(src color.Source) Option {
	return platform.WithColorSource(src)
}

// WithWatch reloads the local notes when another process changes them.
func WithWatch(enabled bool) Option {
	return platform.WithWatch(enabled)
}

// WithAutoRefresh controls the background access token renewal.
func WithAutoRefresh(enabled bool) Option {
	return platform.WithAutoRefresh(enabled)
}

// WithRefreshInterval overrides how often the access token is renewed.
func WithRefreshInterval(d time.Duration) Option {
	return platform.WithRefreshInterval(d)
}

// WithErrorHandler receives failed writes and watcher errors.
func WithErrorHandler(fn func(error)) Option {
	return platform.WithErrorHandler(fn)
}

// FromConfig translates a loaded configuration into options.
func FromConfig(cfg *config.Config) ([]Option, error) {
	policy, err := core.ParseFailurePolicy(cfg.Sync.FailurePolicy)
	if err != nil {
		return nil, err
	}
	return []Option{
		platform.WithAPIURL(cfg.API.URL),
		platform.WithTimeout(cfg.API.Timeout),
		platform.WithRefreshInterval(cfg.API.RefreshInterval),
		platform.WithAdapter(cfg.Storage.Adapter),
		platform.WithDataDir(cfg.Storage.Dir),
		platform.WithFailurePolicy(policy),
	}, nil
}

// --- Factory ---

// Open starts an App. A persisted session selects the remote notes;
// otherwise the local ones are loaded.
func Open(ctx context.Context, opts ...Option) (*App, error) {
	return platform.Open(ctx, opts...)
}

// --- Utils ---

// Contrast returns the text color readable on the given background.
func Contrast(background string) string {
	return color.Contrast(background)
}

// FindDataDir recursively looks upwards for a .stickies directory.
func FindDataDir(startDir string) (string, error) {
	return platform.FindDataDir(startDir)
}
