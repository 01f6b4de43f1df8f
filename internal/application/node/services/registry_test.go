package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetiver-inc/vetiver/internal/infrastructure/engine"
)

func coldHandle(nodeID uint) *engine.Handle {
	return engine.NewHandle(nodeID, engine.NewClient("127.0.0.1", 1, "", time.Second))
}

func TestRegistry_PutGetRemove(t *testing.T) {
	r := NewRegistry()

	first := coldHandle(1)
	r.Put(first)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get(1)
	require.True(t, ok)
	assert.Same(t, first, got)

	// Put replaces the previous handle for the same node.
	second := coldHandle(1)
	r.Put(second)
	assert.Equal(t, 1, r.Len())
	got, ok = r.Get(1)
	require.True(t, ok)
	assert.Same(t, second, got)

	removed, ok := r.Remove(1)
	require.True(t, ok)
	assert.Same(t, second, removed)
	assert.Equal(t, 0, r.Len())

	_, ok = r.Remove(1)
	assert.False(t, ok)
	_, ok = r.Get(1)
	assert.False(t, ok)
}

func TestRegistry_ReadyFiltersColdHandles(t *testing.T) {
	r := NewRegistry()

	fake := newFakeEngine("1.9.0")
	_, host, port := fake.serve(t)

	warm := engine.NewHandle(1, engine.NewClient(host, port, "", 5*time.Second))
	_, err := warm.Connect(context.Background(), engine.Config(`{}`))
	require.NoError(t, err)

	r.Put(warm)
	r.Put(coldHandle(2))

	ready := r.Ready()
	require.Len(t, ready, 1)
	assert.Same(t, warm, ready[0])

	drained := r.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Ready())
}

func TestRegistry_ConnectGate(t *testing.T) {
	r := NewRegistry()

	require.True(t, r.TryBeginConnect(5))
	assert.False(t, r.TryBeginConnect(5), "a second attempt must not start while one is in flight")
	assert.True(t, r.TryBeginConnect(6), "other nodes are unaffected")

	r.EndConnect(5)
	assert.True(t, r.TryBeginConnect(5))
}
