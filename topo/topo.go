// Package topo holds the cluster topology model: the slot map, the dynamic
// server list, the master list, and the process-wide shared cache that
// publishes them.
package topo

import (
	"strconv"

	"github.com/kevwan/rcluster/hashslot"
)

// Node is an immutable ip:port pair.
type Node struct {
	IP   string
	Port uint16
}

// Addr renders the node as "ip:port".
func (n Node) Addr() string {
	return n.IP + ":" + strconv.Itoa(int(n.Port))
}

// SlotEntry is the ordered node list serving one slot: index 0 is the
// master, indices 1.. are replicas in CLUSTER SLOTS order. Never empty for
// a slot that has been assigned.
type SlotEntry []Node

// Master returns the entry's master node.
func (e SlotEntry) Master() Node {
	return e[0]
}

// SlotMap is the full 16384-slot logical array. A nil entry means the slot
// is unassigned.
type SlotMap [hashslot.NumSlots]SlotEntry

// ServerList is the union of every node that appears in any SlotEntry.
type ServerList []Node

// MasterList is the set of nodes CLUSTER NODES reports as masters.
type MasterList []Node

// Topology is an immutable, atomically-published view of cluster
// membership and ownership.
type Topology struct {
	Slots   SlotMap
	Servers ServerList
	Masters MasterList
}

// EntryFor returns the SlotEntry owning slot, and whether one is assigned.
func (t *Topology) EntryFor(slot uint16) (SlotEntry, bool) {
	if t == nil {
		return nil, false
	}
	e := t.Slots[slot]
	return e, e != nil
}
