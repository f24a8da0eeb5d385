// Package cluster is the routing/redirection/pipeline core of a Redis
// Cluster client: slot resolution, MOVED/ASK handling, multi-node pipeline
// scatter/gather, and master-only admin fan-out.
package cluster

import (
	"time"

	"github.com/kevwan/rcluster/topo"
	"github.com/sirupsen/logrus"
)

const (
	defaultConnectionTimeout    = 1000 * time.Millisecond
	defaultMaxConnectionAttempt = 3
	defaultMaxRedirection       = 5
	defaultKeepaliveTimeout     = 55000 * time.Millisecond
	defaultKeepaliveCons        = 1000
)

// Config collects the options recognized by a Client (spec.md §3's
// ClusterConfig table).
type Config struct {
	// Name is the cache key under which the shared TopologyCache stores
	// this cluster's topology. Required; distinguishes co-resident
	// clusters sharing one process.
	Name string

	// ServList is the seed node list used when no topology is yet cached.
	// Required, non-empty.
	ServList []topo.Node

	// Auth, if set, is sent once per freshly dialed node session.
	Auth string

	// ConnectionTimeout bounds every per-socket operation. Default 1000ms.
	ConnectionTimeout time.Duration

	// ConnectionTimout is a spelling-compatible alias for
	// ConnectionTimeout, kept for callers migrating from the original
	// misspelled option name (spec.md §9 Open Question). Validate merges
	// whichever of the two is set; setting both to different non-zero
	// values is a ConfigInvalid error.
	ConnectionTimout time.Duration

	// MaxConnectionAttempts bounds reconnect tries against a single seed
	// while loading topology. Default 3.
	MaxConnectionAttempts int

	// MaxRedirection bounds MOVED/ASK retries per command. Default 5.
	MaxRedirection int

	// KeepaliveTimeout is the idle duration before a pooled connection is
	// discarded. Default 55000ms.
	KeepaliveTimeout time.Duration

	// KeepaliveCons hints the per-node pool size. Default 1000.
	KeepaliveCons int

	// EnableSlaveRead permits NodeSelector to return replica nodes for
	// reads.
	EnableSlaveRead bool

	// Logger receives topology refresh failures, the only events this
	// package logs. Defaults to logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// Validate fills in defaults and checks the required fields, returning a
// *RoutingError{Kind: ConfigInvalid} on failure.
func (c *Config) Validate() error {
	if c.Name == "" {
		return newError(ConfigInvalid, nil, "config: name is required")
	}
	if len(c.ServList) == 0 {
		return newError(ConfigInvalid, nil, "config: serv_list must be non-empty")
	}
	if c.ConnectionTimeout != 0 && c.ConnectionTimout != 0 && c.ConnectionTimeout != c.ConnectionTimout {
		return newError(ConfigInvalid, nil, "config: connection_timeout and connection_timout disagree")
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = c.ConnectionTimout
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = defaultConnectionTimeout
	}
	c.ConnectionTimout = c.ConnectionTimeout

	if c.MaxConnectionAttempts <= 0 {
		c.MaxConnectionAttempts = defaultMaxConnectionAttempt
	}
	if c.MaxRedirection <= 0 {
		c.MaxRedirection = defaultMaxRedirection
	}
	if c.KeepaliveTimeout <= 0 {
		c.KeepaliveTimeout = defaultKeepaliveTimeout
	}
	if c.KeepaliveCons <= 0 {
		c.KeepaliveCons = defaultKeepaliveCons
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return nil
}
