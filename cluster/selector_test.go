package cluster

import (
	"testing"

	"github.com/kevwan/rcluster/topo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickNodeEmptyEntryErrors(t *testing.T) {
	_, _, err := pickNode(topo.SlotEntry{}, selectorPolicy{}, nil)
	require.Error(t, err)
	rerr, ok := err.(*RoutingError)
	require.True(t, ok)
	assert.Equal(t, NodeSelectionFailed, rerr.Kind)
}

func TestPickNodeSlaveReadDisabledAlwaysReturnsMaster(t *testing.T) {
	master := topo.Node{IP: "10.0.0.1", Port: 6379}
	replica := topo.Node{IP: "10.0.0.2", Port: 6379}
	entry := topo.SlotEntry{master, replica}

	for i := 0; i < 10; i++ {
		node, isReplica, err := pickNode(entry, selectorPolicy{EnableSlaveRead: false}, nil)
		require.NoError(t, err)
		assert.Equal(t, master, node)
		assert.False(t, isReplica)
	}
}

func TestPickNodeSlaveReadWithSeedIsDeterministic(t *testing.T) {
	master := topo.Node{IP: "10.0.0.1", Port: 6379}
	replica := topo.Node{IP: "10.0.0.2", Port: 6379}
	entry := topo.SlotEntry{master, replica}

	seed := 7
	node1, isReplica1, err := pickNode(entry, selectorPolicy{EnableSlaveRead: true}, &seed)
	require.NoError(t, err)
	node2, isReplica2, err := pickNode(entry, selectorPolicy{EnableSlaveRead: true}, &seed)
	require.NoError(t, err)

	assert.Equal(t, node1, node2)
	assert.Equal(t, isReplica1, isReplica2)
}

func TestPickNodeSlaveReadSingleNodeEntry(t *testing.T) {
	master := topo.Node{IP: "10.0.0.1", Port: 6379}
	entry := topo.SlotEntry{master}

	node, isReplica, err := pickNode(entry, selectorPolicy{EnableSlaveRead: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, master, node)
	assert.False(t, isReplica)
}
