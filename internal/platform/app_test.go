package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stickies/pkg/adapters/local"
	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/debounce"
	"github.com/aretw0/stickies/pkg/kv"
	"github.com/aretw0/stickies/pkg/session"
)

// notesAPI is a minimal in-memory server for the token and note endpoints.
type notesAPI struct {
	access        string
	refreshStatus atomic.Int32

	mu     sync.Mutex
	notes  map[int64]core.Note
	nextID int64
	denied int
}

func newNotesAPI(t *testing.T) (*notesAPI, string) {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "ada@example.com", "username": "ada", "user_id": 1,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	access, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	api := &notesAPI{access: access, notes: make(map[int64]core.Note), nextID: 100}
	api.refreshStatus.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(srv.Close)
	return api, srv.URL
}

func (a *notesAPI) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	reply := func(status int, body any) {
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}

	switch r.URL.Path {
	case "/api/token/":
		reply(http.StatusOK, map[string]string{"access": a.access, "refresh": "refresh-1"})
		return
	case "/api/token/refresh/":
		status := int(a.refreshStatus.Load())
		if status != http.StatusOK {
			reply(status, map[string]string{"detail": "Token is invalid or expired"})
			return
		}
		reply(status, map[string]string{"access": a.access})
		return
	case "/api/logout/":
		reply(http.StatusOK, map[string]string{"detail": "Successfully logged out"})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer "+a.access {
		a.denied++
		reply(http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/sticky-notes/":
		out := make([]core.Note, 0, len(a.notes))
		for _, n := range a.notes {
			out = append(out, n)
		}
		reply(http.StatusOK, out)
	case r.Method == http.MethodPost && r.URL.Path == "/api/sticky-notes/":
		var d core.Draft
		_ = json.NewDecoder(r.Body).Decode(&d)
		a.nextID++
		n := d.Note(a.nextID)
		a.notes[n.ID] = n
		reply(http.StatusCreated, n)
	case strings.HasPrefix(r.URL.Path, "/api/sticky-notes/"):
		id, _ := strconv.ParseInt(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sticky-notes/"), "/"), 10, 64)
		n, ok := a.notes[id]
		if !ok {
			reply(http.StatusNotFound, map[string]string{"detail": "Not found."})
			return
		}
		if r.Method == http.MethodDelete {
			delete(a.notes, id)
			reply(http.StatusNoContent, nil)
			return
		}
		var p core.Patch
		_ = json.NewDecoder(r.Body).Decode(&p)
		n = p.Apply(n)
		a.notes[id] = n
		reply(http.StatusOK, n)
	default:
		reply(http.StatusNotFound, nil)
	}
}

func (a *notesAPI) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.notes)
}

func (a *notesAPI) note(id int64) core.Note {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.notes[id]
}

func openTestApp(t *testing.T, url string, storage kv.Storage, extra ...Option) (*App, *debounce.ManualClock) {
	t.Helper()
	clock := debounce.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	opts := append([]Option{
		WithAPIURL(url),
		WithStorage(storage),
		WithClock(clock),
		WithAutoRefresh(false),
	}, extra...)
	a, err := Open(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a, clock
}

func TestApp_StartsLocalWithoutSession(t *testing.T) {
	_, url := newNotesAPI(t)
	storage := kv.NewMemory()
	a, _ := openTestApp(t, url, storage)

	assert.False(t, a.Remote())
	assert.False(t, a.Session().LoggedIn())

	_, err := a.Store().AddNote(context.Background(), "offline", "", "")
	require.NoError(t, err)

	raw, ok, err := storage.Get(context.Background(), local.StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, "offline")
}

func TestApp_LoginSwitchesToRemoteWithoutMerging(t *testing.T) {
	ctx := context.Background()
	api, url := newNotesAPI(t)
	storage := kv.NewMemory()
	a, _ := openTestApp(t, url, storage)

	_, err := a.Store().AddNote(ctx, "local only", "", "")
	require.NoError(t, err)

	s, err := a.Login(ctx, "ada@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "ada", s.Claims.Username)
	assert.True(t, a.Remote())
	assert.Equal(t, 0, a.Store().Len(), "local notes must not leak into the account")

	n, err := a.Store().AddNote(ctx, "synced", "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(101), n.ID)
	assert.Equal(t, 1, api.count())

	raw, _, err := storage.Get(ctx, local.StorageKey)
	require.NoError(t, err)
	assert.NotContains(t, raw, "synced")
}

func TestApp_LogoutFlushesPendingRemoteWrites(t *testing.T) {
	ctx := context.Background()
	api, url := newNotesAPI(t)
	a, _ := openTestApp(t, url, kv.NewMemory())

	_, err := a.Login(ctx, "ada@example.com", "secret")
	require.NoError(t, err)
	n, err := a.Store().AddNote(ctx, "draft", "", "")
	require.NoError(t, err)

	require.NoError(t, a.Store().EditContent(n.ID, "final"))
	require.NoError(t, a.Logout(ctx))

	assert.Equal(t, "final", api.note(n.ID).Content)
	assert.Equal(t, 0, api.denied)
	assert.False(t, a.Remote())
	assert.False(t, a.Session().LoggedIn())
}

func TestApp_RestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	api, url := newNotesAPI(t)
	storage := kv.NewMemory()
	require.NoError(t, storage.Set(ctx, session.AccessTokenKey, api.access))
	require.NoError(t, storage.Set(ctx, session.RefreshTokenKey, "refresh-1"))

	a, _ := openTestApp(t, url, storage)
	assert.True(t, a.Remote())
	assert.Equal(t, "ada@example.com", a.Session().Current().Claims.Email)
}

func TestApp_RejectedStoredSessionFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	_, url := newNotesAPI(t)
	storage := kv.NewMemory()
	require.NoError(t, storage.Set(ctx, session.AccessTokenKey, "stale"))

	a, _ := openTestApp(t, url, storage)
	assert.False(t, a.Remote())
	_, ok, err := storage.Get(ctx, session.AccessTokenKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApp_ExpiredSessionSwitchesToLocal(t *testing.T) {
	ctx := context.Background()
	api, url := newNotesAPI(t)
	a, _ := openTestApp(t, url, kv.NewMemory())

	_, err := a.Login(ctx, "ada@example.com", "secret")
	require.NoError(t, err)
	require.True(t, a.Remote())

	api.refreshStatus.Store(http.StatusUnauthorized)
	err = a.Session().Refresh(ctx)
	require.ErrorIs(t, err, core.ErrUnauthorized)

	assert.Eventually(t, func() bool { return !a.Remote() }, 2*time.Second, 10*time.Millisecond)
}

func TestApp_WatchReloadsExternalChanges(t *testing.T) {
	ctx := context.Background()
	_, url := newNotesAPI(t)
	dir := t.TempDir()

	a, _ := openTestApp(t, url, nil, WithDataDir(dir), WithWatch(true))
	require.Equal(t, 0, a.Store().Len())

	// A second process writing the same file.
	other, _ := openTestApp(t, url, nil, WithDataDir(dir))
	_, err := other.Store().AddNote(ctx, "from elsewhere", "", "")
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return a.Store().Len() == 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	_, url := newNotesAPI(t)
	a, _ := openTestApp(t, url, kv.NewMemory())

	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
	_, err := a.Login(context.Background(), "ada@example.com", "secret")
	assert.ErrorIs(t, err, core.ErrClosed)
}

func TestApp_State(t *testing.T) {
	_, url := newNotesAPI(t)
	a, _ := openTestApp(t, url, kv.NewMemory())

	st, ok := a.State().(AppState)
	require.True(t, ok)
	assert.Equal(t, "local", st.Backend)
	assert.NotNil(t, st.Store)
	assert.Equal(t, "app", a.ComponentType())
}
