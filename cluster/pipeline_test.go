package cluster

import (
	"testing"

	"github.com/kevwan/rcluster/hashslot"
	"github.com/kevwan/rcluster/topo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitPipelinePartitionsAndPreservesOrder(t *testing.T) {
	nodeA := topo.Node{IP: "10.0.0.1", Port: 6379}
	nodeB := topo.Node{IP: "10.0.0.2", Port: 6379}

	keyA, keyB := "foo", "bar"
	slotA, slotB := hashslot.Slot(keyA), hashslot.Slot(keyB)
	require.NotEqual(t, slotA, slotB, "test keys must land in different slots")

	var top topo.Topology
	top.Slots[slotA] = topo.SlotEntry{nodeA}
	top.Slots[slotB] = topo.SlotEntry{nodeB}
	top.Masters = topo.MasterList{nodeA, nodeB}
	top.Servers = topo.ServerList{nodeA, nodeB}

	table := map[string]*fakeSession{
		nodeA.Addr(): {results: []doResult{{val: "A-OK"}}},
		nodeB.Addr(): {results: []doResult{{val: "B-OK"}}},
	}
	c := newTestClient(t, Config{}, newAddrRoutedFactory(table), &top)

	c.InitPipeline()
	_, err := c.Do("SET", keyA, "1")
	require.NoError(t, err)
	_, err = c.Do("SET", keyB, "2")
	require.NoError(t, err)
	_, err = c.Do("GET", keyA)
	require.NoError(t, err)

	results, err := c.CommitPipeline()
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "A-OK", results[0])
	assert.Equal(t, "B-OK", results[1])
	assert.Equal(t, "A-OK", results[2])
}

func TestCommitPipelineRecoversMoved(t *testing.T) {
	nodeA := topo.Node{IP: "10.0.0.1", Port: 6379}
	nodeC := topo.Node{IP: "10.0.0.3", Port: 6379}

	key := "foo"
	slot := hashslot.Slot(key)

	var top topo.Topology
	top.Slots[slot] = topo.SlotEntry{nodeA}
	top.Masters = topo.MasterList{nodeA}
	top.Servers = topo.ServerList{nodeA}

	table := map[string]*fakeSession{
		nodeA.Addr(): {results: []doResult{{err: assertErrMsg("MOVED 0 10.0.0.3:6379")}}},
		nodeC.Addr(): {results: []doResult{{val: "RECOVERED"}}},
	}
	c := newTestClient(t, Config{}, newAddrRoutedFactory(table), &top)

	c.InitPipeline()
	_, err := c.Do("GET", key)
	require.NoError(t, err)

	results, err := c.CommitPipeline()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "RECOVERED", results[0])
}

func TestEvalBuffersDuringPipelineAndCommits(t *testing.T) {
	nodeA := topo.Node{IP: "10.0.0.1", Port: 6379}
	sess := &fakeSession{results: []doResult{{val: "42"}}}
	c := newTestClient(t, Config{}, singleSessionFactory(sess), fullTopology(topo.SlotEntry{nodeA}))

	c.InitPipeline()
	result, err := c.Eval("return 42", 1, "foo")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Len(t, c.pipelineBuf, 1, "Eval must buffer rather than contact Redis while pipelining")

	results, err := c.CommitPipeline()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "42", results[0])
}

func TestCancelPipelineDiscardsBuffer(t *testing.T) {
	nodeA := topo.Node{IP: "10.0.0.1", Port: 6379}
	c := newTestClient(t, Config{}, singleSessionFactory(&fakeSession{}), fullTopology(topo.SlotEntry{nodeA}))

	c.InitPipeline()
	_, err := c.Do("SET", "foo", "1")
	require.NoError(t, err)
	c.CancelPipeline()

	assert.False(t, c.pipelining)
	assert.Empty(t, c.pipelineBuf)
}
