package platform

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/stickies/pkg/color"
	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/debounce"
	"github.com/aretw0/stickies/pkg/kv"
)

// options holds the internal configuration of an App.
type options struct {
	apiURL          string
	httpClient      *http.Client
	timeout         time.Duration
	storage         kv.Storage
	adapter         string
	dataDir         string
	readOnly        bool
	logger          *slog.Logger
	policy          core.FailurePolicy
	clock           debounce.Clock
	colors          color.Source
	watch           bool
	autoRefresh     bool
	refreshInterval time.Duration
	errorHandler    func(error)
}

// Option defines a functional option for configuring the App.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		apiURL:      "http://localhost:8000",
		adapter:     "fs",
		logger:      nil,
		policy:      core.KeepOptimistic,
		autoRefresh: true,
	}
}

// WithAPIURL sets the root of the notes API.
func WithAPIURL(url string) Option {
	return func(o *options) {
		o.apiURL = url
	}
}

// WithHTTPClient replaces the http.Client used for every API call.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithTimeout bounds each API request. Ignored when WithHTTPClient is set.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithStorage injects the local key-value storage.
// If provided, the adapter selected by WithAdapter is skipped.
func WithStorage(s kv.Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithAdapter selects the local storage by name: "fs" (default), "sqlite" or "memory".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithDataDir sets where the fs and sqlite adapters keep their files.
// Defaults to the nearest .stickies directory, then the user config dir.
func WithDataDir(dir string) Option {
	return func(o *options) {
		o.dataDir = dir
	}
}

// WithReadOnly makes the local storage reject writes with core.ErrReadOnly.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.readOnly = enabled
	}
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithFailurePolicy selects how the note store handles failed writes.
func WithFailurePolicy(p core.FailurePolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithClock drives timestamps and debounce windows (useful for testing).
func WithClock(c debounce.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithColorSource sets the generator behind random note colors.
func WithColorSource(src color.Source) Option {
	return func(o *options) {
		o.colors = src
	}
}

// WithWatch reloads the notes when another process changes the local storage.
// Only effective while signed out and with a watchable storage (fs).
func WithWatch(enabled bool) Option {
	return func(o *options) {
		o.watch = enabled
	}
}

// WithAutoRefresh controls the background access token renewal. Enabled by default.
func WithAutoRefresh(enabled bool) Option {
	return func(o *options) {
		o.autoRefresh = enabled
	}
}

// WithRefreshInterval overrides how often the access token is renewed.
// Zero means default (4 minutes).
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) {
		o.refreshInterval = d
	}
}

// WithErrorHandler receives failed note writes and watcher errors, which are
// otherwise only logged.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}
