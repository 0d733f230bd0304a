package local

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stickies/pkg/core"
	"github.com/aretw0/stickies/pkg/kv"
)

func fixedNow(ms ...int64) func() time.Time {
	i := 0
	return func() time.Time {
		t := time.UnixMilli(ms[i])
		if i < len(ms)-1 {
			i++
		}
		return t
	}
}

func TestBackend_CRUD(t *testing.T) {
	ctx := context.Background()
	storage := kv.NewMemory()
	b := New(storage, WithNow(fixedNow(1700000000001, 1700000000002)))

	notes, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)

	first, err := b.Create(ctx, core.Draft{Content: "one", Color: "#ffeb3b", Height: 125})
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000001), first.ID)

	second, err := b.Create(ctx, core.Draft{Content: "two"})
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000002), second.ID)

	updated, err := b.Update(ctx, first.ID, core.ContentPatch("uno"))
	require.NoError(t, err)
	assert.Equal(t, "uno", updated.Content)
	assert.Equal(t, "#ffeb3b", updated.Color, "unpatched fields are kept")

	require.NoError(t, b.Delete(ctx, second.ID))

	notes, err = b.List(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "uno", notes[0].Content)

	raw, ok, err := storage.Get(ctx, StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	var stored []map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, "uno", stored[0]["content"])
	assert.Contains(t, stored[0], "position_x")
}

func TestBackend_Missing(t *testing.T) {
	ctx := context.Background()
	b := New(kv.NewMemory())

	_, err := b.Update(ctx, 1, core.ContentPatch("x"))
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, b.Delete(ctx, 1), core.ErrNotFound)
}

func TestBackend_FailClosed(t *testing.T) {
	ctx := context.Background()
	storage := kv.NewMemory()
	require.NoError(t, storage.Set(ctx, StorageKey, "not json"))
	b := New(storage, WithNow(fixedNow(5)))

	notes, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)

	_, err = b.Create(ctx, core.Draft{Content: "fresh"})
	require.NoError(t, err)
	notes, _ = b.List(ctx)
	assert.Len(t, notes, 1)
}

func TestBackend_SameMillisecondCollides(t *testing.T) {
	ctx := context.Background()
	b := New(kv.NewMemory(), WithNow(fixedNow(42)))

	a, err := b.Create(ctx, core.Draft{Content: "a"})
	require.NoError(t, err)
	c, err := b.Create(ctx, core.Draft{Content: "b"})
	require.NoError(t, err)

	// Known risk: timestamp ids are only approximately unique.
	assert.Equal(t, a.ID, c.ID)
}
