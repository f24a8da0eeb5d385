package cluster

import (
	"math/rand"

	"github.com/kevwan/rcluster/topo"
)

// selectorPolicy bundles NodeSelector.Pick's configuration knobs.
type selectorPolicy struct {
	EnableSlaveRead bool
}

// pickNode chooses which node of entry to target, per spec.md §4.4. When
// seed is non-nil it deterministically selects an index (used by
// PipelineExecutor so all reads for a slot within one commit pick the same
// replica); otherwise selection among replicas is uniformly random.
func pickNode(entry topo.SlotEntry, policy selectorPolicy, seed *int) (node topo.Node, isReplica bool, err error) {
	if len(entry) == 0 {
		return topo.Node{}, false, newError(NodeSelectionFailed, nil, "empty slot entry")
	}
	if !policy.EnableSlaveRead {
		return entry[0], false, nil
	}

	var idx int
	if seed != nil {
		idx = ((*seed)%len(entry) + len(entry)) % len(entry)
	} else {
		idx = rand.Intn(len(entry))
	}
	return entry[idx], idx != 0, nil
}
