package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stickies/pkg/core"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "b", "2"))
	require.NoError(t, m.Set(ctx, "a", "1"))

	v, ok, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, m.Remove(ctx, "a"))
	require.NoError(t, m.Remove(ctx, "a"), "removing a missing key is not an error")
	_, ok, _ = m.Get(ctx, "a")
	assert.False(t, ok)
}

func TestDiff(t *testing.T) {
	before := map[string]string{"keep": "x", "change": "1", "drop": "y"}
	after := map[string]string{"keep": "x", "change": "2", "add": "z"}

	events := Diff(before, after, 42)
	assert.Equal(t, []Event{
		{Type: EventCreate, Key: "add", Timestamp: 42},
		{Type: EventModify, Key: "change", Timestamp: 42},
		{Type: EventDelete, Key: "drop", Timestamp: 42},
	}, events)

	assert.Empty(t, Diff(after, after, 0))
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, "a", "1"))

	ro := ReadOnly(m)
	assert.ErrorIs(t, ro.Set(ctx, "a", "2"), core.ErrReadOnly)
	assert.ErrorIs(t, ro.Remove(ctx, "a"), core.ErrReadOnly)

	v, ok, err := ro.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v, "rejected writes leave the value alone")

	keys, err := ro.(Lister).Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}
