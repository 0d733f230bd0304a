package platform

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/stickies/pkg/adapters/fs"
	"github.com/aretw0/stickies/pkg/adapters/local"
	"github.com/aretw0/stickies/pkg/adapters/remote"
	"github.com/aretw0/stickies/pkg/adapters/sqlite"
	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/kv"
)

// SQLiteFileName is the database file of the sqlite adapter inside the data dir.
const SQLiteFileName = "stickies.db"

// OpenStorage builds the local key-value storage named by the adapter option.
func OpenStorage(o *options, logger *slog.Logger) (kv.Storage, error) {
	if o.storage != nil {
		return o.storage, nil
	}

	switch o.adapter {
	case "", "fs":
		return fs.New(fs.Config{
			Path:         filepath.Join(ResolveDataDir(o.dataDir), fs.DefaultFileName),
			Logger:       logger,
			ErrorHandler: o.errorHandler,
			ReadOnly:     o.readOnly,
		})
	case "sqlite":
		dsn := filepath.Join(ResolveDataDir(o.dataDir), SQLiteFileName)
		if err := ensureDir(filepath.Dir(dsn)); err != nil {
			return nil, err
		}
		store, err := sqlite.Open(dsn)
		if err != nil {
			return nil, err
		}
		return withReadOnly(store, o.readOnly), nil
	case "memory":
		return withReadOnly(kv.NewMemory(), o.readOnly), nil
	default:
		return nil, fmt.Errorf("unknown adapter: %s", o.adapter)
	}
}

// withReadOnly applies the read-only option to adapters that do not enforce it
// themselves.
func withReadOnly(s kv.Storage, readOnly bool) kv.Storage {
	if readOnly {
		return kv.ReadOnly(s)
	}
	return s
}

// NewBackend selects the persistence for a session: the remote API when
// signed in, the local storage otherwise.
func NewBackend(loggedIn bool, client *remote.Client, storage kv.Storage, logger *slog.Logger) core.Backend {
	if loggedIn {
		return remote.NewBackend(client)
	}
	return local.New(storage, local.WithLogger(logger))
}
