package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeNode(name string) Node {
	return NodeFunc{
		NodeType: name,
		Desc:     name + " node",
		Fn: func(ctx context.Context, config Values, snapshot Values) (map[string]any, error) {
			return map[string]any{}, nil
		},
	}
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fakeNode("log")))

	node, ok := r.Lookup("log")
	require.True(t, ok)
	assert.Equal(t, "log", node.Type())

	_, ok = r.Lookup("Log") // case-sensitive
	assert.False(t, ok)
}

func TestRegistryDuplicateRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fakeNode("log")))
	assert.Error(t, r.Register(fakeNode("log")))
}

func TestRegistryEmptyTypeRejected(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(fakeNode("")))
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"transform", "log", "http_request"} {
		require.NoError(t, r.Register(fakeNode(name)))
	}

	infos := r.List()
	require.Len(t, infos, 3)
	assert.Equal(t, "http_request", infos[0].NodeType)
	assert.Equal(t, "log", infos[1].NodeType)
	assert.Equal(t, "transform", infos[2].NodeType)
}

func TestRegistrySnapshotIsIndependent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fakeNode("log")))

	snap := r.Snapshot()
	require.NoError(t, snap.Register(fakeNode("flow")))

	_, ok := snap.Lookup("flow")
	assert.True(t, ok)
	_, ok = r.Lookup("flow")
	assert.False(t, ok, "registering on a snapshot must not leak into the original")

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 2, snap.Len())
}
