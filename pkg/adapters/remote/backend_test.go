package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stickies/pkg/core"
)

type seen struct {
	Method string
	Path   string
	Auth   string
	ReqID  string
	Body   map[string]any
}

// fakeAPI records requests and answers with canned handlers per route.
type fakeAPI struct {
	mu       sync.Mutex
	requests []seen
	routes   map[string]http.HandlerFunc
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{routes: make(map[string]http.HandlerFunc)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := seen{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization"), ReqID: r.Header.Get("X-Request-ID")}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &s.Body)
		}
		api.mu.Lock()
		api.requests = append(api.requests, s)
		h, ok := api.routes[r.Method+" "+r.URL.Path]
		api.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) handle(route string, status int, body any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[route] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}
}

func (a *fakeAPI) last() seen {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests[len(a.requests)-1]
}

func newBackend(t *testing.T, url string, token string) *Backend {
	t.Helper()
	c, err := NewClient(url, WithTokenSource(StaticToken(token)))
	require.NoError(t, err)
	return NewBackend(c)
}

func TestBackend_List(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.handle("GET /api/sticky-notes/", 200, []map[string]any{
		{"id": 1, "content": "a", "color": "#ffeb3b", "text_color": "#000000", "position_x": 10.5, "position_y": 3, "is_expanded": true, "height": 200, "created_at": "2024-01-02T03:04:05Z", "updated_at": "2024-01-03T00:00:00Z"},
	})
	b := newBackend(t, srv.URL, "tok")

	notes, err := b.List(context.Background())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, int64(1), notes[0].ID)
	assert.Equal(t, 10.5, notes[0].PositionX)
	assert.True(t, notes[0].IsExpanded)
	require.NotNil(t, notes[0].UpdatedAt)

	req := api.last()
	assert.Equal(t, "Bearer tok", req.Auth)
	assert.NotEmpty(t, req.ReqID)
}

func TestBackend_Create(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.handle("POST /api/sticky-notes/", 201, map[string]any{"id": 55, "content": "hi", "color": "#ffeb3b", "height": 125})
	b := newBackend(t, srv.URL, "tok")

	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	n, err := b.Create(context.Background(), core.Draft{
		Content: "hi", Color: "#ffeb3b", TextColor: "#000000", ContrastColor: "#000000", Height: 125, CreatedAt: created,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(55), n.ID)

	body := api.last().Body
	for _, field := range []string{"content", "color", "text_color", "position_x", "position_y", "is_expanded", "contrast_color", "created_at", "height"} {
		assert.Contains(t, body, field)
	}
	assert.NotContains(t, body, "id")
	assert.Equal(t, "2024-05-06T07:08:09Z", body["created_at"])
}

func TestBackend_UpdateSendsOnlyPatchedFields(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.handle("PATCH /api/sticky-notes/9/", 200, map[string]any{"id": 9, "position_x": 1, "position_y": 0})
	b := newBackend(t, srv.URL, "tok")

	n, err := b.Update(context.Background(), 9, core.PositionPatch(1, 0))
	require.NoError(t, err)
	assert.Equal(t, 1.0, n.PositionX)

	assert.Equal(t, map[string]any{"position_x": 1.0, "position_y": 0.0}, api.last().Body)
}

func TestBackend_Delete(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.handle("DELETE /api/sticky-notes/3/", 204, nil)
	b := newBackend(t, srv.URL, "tok")

	require.NoError(t, b.Delete(context.Background(), 3))
	assert.Equal(t, "DELETE", api.last().Method)
}

func TestBackend_Errors(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.handle("PATCH /api/sticky-notes/1/", 401, map[string]string{"detail": "Given token not valid for any token type"})
	api.handle("PATCH /api/sticky-notes/2/", 500, nil)
	b := newBackend(t, srv.URL, "expired")
	ctx := context.Background()

	_, err := b.Update(ctx, 1, core.ContentPatch("x"))
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Given token not valid for any token type", se.Detail)

	_, err = b.Update(ctx, 2, core.ContentPatch("x"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrUnauthorized))

	_, err = b.Update(ctx, 404, core.ContentPatch("x"))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestBackend_NoTokenNoHeader(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.handle("GET /api/sticky-notes/", 200, []any{})
	b := newBackend(t, srv.URL, "")

	notes, err := b.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Empty(t, api.last().Auth)
}

func TestBackend_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)
	_, err = NewBackend(c).List(context.Background())
	assert.Error(t, err)
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient("ftp://example.com")
	assert.Error(t, err)
	_, err = NewClient("://bad")
	assert.Error(t, err)
}
