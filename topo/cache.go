package topo

import "sync"

// Cache is the process-wide, per-cluster-name TopologyCache. Many readers,
// occasional writers: Get never blocks on a concurrent Replace and never
// observes a partially constructed Topology, since Replace always installs
// a whole new *Topology value.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Topology
}

// NewCache returns an empty topology cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Topology)}
}

// Get returns the current Topology for name, and whether one is published.
func (c *Cache) Get(name string) (*Topology, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.entries[name]
	return t, ok
}

// Replace atomically installs t as the current Topology for name,
// discarding whatever was previously published. It never appends to the
// prior MasterList/ServerList; t is a complete replacement.
func (c *Cache) Replace(name string, t *Topology) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = t
}
