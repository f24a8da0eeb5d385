package cluster

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/kevwan/rcluster/hashslot"
	"github.com/kevwan/rcluster/topo"
	"golang.org/x/sync/errgroup"
)

// InitPipeline switches the client into buffering mode: subsequent Do/Eval
// calls append to the pipeline buffer instead of contacting Redis.
func (c *Client) InitPipeline() {
	c.pipeMu.Lock()
	defer c.pipeMu.Unlock()
	c.pipelining = true
	c.pipelineBuf = c.pipelineBuf[:0]
}

// CancelPipeline discards the buffered pipeline without issuing anything.
func (c *Client) CancelPipeline() {
	c.pipeMu.Lock()
	defer c.pipeMu.Unlock()
	c.pipelining = false
	c.pipelineBuf = nil
}

// bucket is one node's share of a committed pipeline.
type bucket struct {
	node  topo.Node
	items []bucketItem
}

type bucketItem struct {
	pipelineItem
	isReplica bool
}

// CommitPipeline flushes the buffered pipeline, per spec.md §4.6: partition
// by target node, issue per-node pipelines, then reassemble results into
// the caller's original submission order, recovering MOVED/ASK replies
// per item.
func (c *Client) CommitPipeline() ([]interface{}, error) {
	c.pipeMu.Lock()
	c.pipelining = false
	buf := c.pipelineBuf
	c.pipelineBuf = nil
	c.pipeMu.Unlock()

	topology, err := c.topology()
	if err != nil {
		return nil, err
	}

	magic := 0
	if len(topology.Servers) > 0 {
		magic = rand.Intn(len(topology.Servers)) + 1
	}

	buckets, err := c.partition(topology, buf, magic)
	if err != nil {
		return nil, err
	}

	results := make([]interface{}, len(buf))
	refreshedOnce := false
	var mu refreshOnce
	mu.refreshed = &refreshedOnce

	g := new(errgroup.Group)
	for _, b := range buckets {
		b := b
		g.Go(func() error {
			return c.commitBucket(b, results, &mu)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range results {
		if msg, ok := r.(string); ok && isClusterDown(msg) {
			return nil, newError(ClusterDown, nil, "cluster down")
		}
	}

	return results, nil
}

// refreshOnce lets every goroutine in a commit share a single "has this
// commit already refreshed the topology" flag, per spec.md §4.6 step 5
// ("refresh topology (at most once per commit)").
type refreshOnce struct {
	mu        sync.Mutex
	refreshed *bool
}

func (r *refreshOnce) once(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if *r.refreshed {
		return
	}
	*r.refreshed = true
	fn()
}

// partition buckets each buffered request by the node NodeSelector chooses
// for its slot, using magic as the pipeline-wide deterministic seed so one
// commit doesn't fan out across every replica of every touched slot.
func (c *Client) partition(topology *topo.Topology, buf []pipelineItem, magic int) ([]bucket, error) {
	byAddr := map[string]*bucket{}
	var order []string

	for _, item := range buf {
		slot := hashslot.Slot(item.Key)
		entry, ok := topology.EntryFor(slot)
		if !ok {
			return nil, newError(TopologyUnknown, nil, "slot %d is unassigned", slot)
		}
		node, isReplica, err := pickNode(entry, selectorPolicy{EnableSlaveRead: c.cfg.EnableSlaveRead}, &magic)
		if err != nil {
			return nil, err
		}
		addr := node.Addr()
		b, ok := byAddr[addr]
		if !ok {
			b = &bucket{node: node}
			byAddr[addr] = b
			order = append(order, addr)
		}
		b.items = append(b.items, bucketItem{pipelineItem: item, isReplica: isReplica})
	}

	buckets := make([]bucket, 0, len(order))
	for _, addr := range order {
		buckets = append(buckets, *byAddr[addr])
	}
	return buckets, nil
}

// commitBucket issues one node-level pipeline for every item in b, and
// writes each item's result (or recovers a MOVED/ASK reply) into
// results[item.OriginIndex].
func (c *Client) commitBucket(b bucket, results []interface{}, ro *refreshOnce) error {
	sess, err := c.newSession(b.node)
	if err != nil {
		ro.once(c.refreshAsync)
		return wrapError(ConnectFailed, err, "pipeline connect "+b.node.Addr())
	}
	defer c.putSession(b.node, sess)

	if len(b.items) > 0 && b.items[0].isReplica {
		if err := sess.ReadOnly(); err != nil {
			ro.once(c.refreshAsync)
			return wrapError(BackendError, err, "pipeline readonly rejected by "+b.node.Addr())
		}
	}

	sess.InitPipeline()
	for _, item := range b.items {
		full := append([]interface{}{item.Key}, item.Args...)
		if strings.EqualFold(item.Cmd, "EVAL") || strings.EqualFold(item.Cmd, "EVALSHA") {
			full = item.Args
		}
		sess.Do(item.Cmd, full...)
	}
	replies, err := sess.CommitPipeline()
	if err != nil {
		ro.once(c.refreshAsync)
		return wrapError(ConnectFailed, err, "pipeline commit "+b.node.Addr())
	}

	for i, item := range b.items {
		var reply interface{}
		if i < len(replies) {
			reply = replies[i]
		}
		if err, ok := reply.(error); ok {
			recovered, recErr := c.recoverItem(item, err, ro)
			if recErr != nil {
				return recErr
			}
			results[item.OriginIndex] = recovered
			continue
		}
		results[item.OriginIndex] = reply
	}
	return nil
}

// recoverItem handles one pipelined item's MOVED/ASK reply by re-executing
// it singly through CommandExecutor, per spec.md §4.6 step 5.
func (c *Client) recoverItem(item bucketItem, cmdErr error, ro *refreshOnce) (interface{}, error) {
	msg := strings.TrimSpace(cmdErr.Error())

	switch {
	case isAsk(msg):
		node, err := parseRedirect(msg, "ASK")
		if err != nil {
			return nil, wrapError(BackendError, cmdErr, "malformed ASK reply")
		}
		return c.executeFrom(item.Cmd, item.Key, item.Args, &node)

	case isMoved(msg):
		ro.once(c.refreshAsync)
		return c.executeFrom(item.Cmd, item.Key, item.Args, nil)

	case isClusterDown(msg):
		return nil, newError(ClusterDown, cmdErr, "cluster down")

	default:
		return nil, wrapError(BackendError, cmdErr, msg)
	}
}
