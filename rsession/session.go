// Package rsession defines the external collaborator interfaces the routing
// core depends on: a single-node RESP session and a cross-worker named
// lock. Neither is implemented here in full generality — this package ships
// one default of each, wired to a real third-party library, but callers may
// substitute their own.
package rsession

import (
	"context"
	"time"
)

// SlotRow is one row of a CLUSTER SLOTS reply: an inclusive slot range plus
// the ordered list of nodes serving it, master first.
type SlotRow struct {
	Start, End int
	Nodes      []NodeAddr
}

// NodeAddr is a bare ip:port pair as reported by the server, with no
// lifecycle attached.
type NodeAddr struct {
	IP   string
	Port uint16
}

// NodeSession is a single connection to one cluster node. Implementations
// need not be safe for concurrent use; the core serializes all operations on
// a session it holds.
type NodeSession interface {
	// Connect dials ip:port. Must be called before any other method.
	Connect(ctx context.Context, ip string, port uint16) error

	// SetTimeout bounds every subsequent blocking operation on this session.
	SetTimeout(d time.Duration)

	// ReusedTimes reports how many prior commands have been issued on this
	// session since it was last freshly connected; 0 means freshly dialed.
	ReusedTimes() int

	// Auth issues AUTH. Must not be retried by the caller on failure.
	Auth(password string) error

	// SetKeepalive configures the idle timeout and pool-size hint this
	// session should report up to its owning pool.
	SetKeepalive(idle time.Duration, poolSize int) error

	// ReadOnly issues READONLY, permitting reads against a replica.
	ReadOnly() error

	// Asking issues ASKING, valid for exactly the next command.
	Asking() error

	// Do issues a single command and returns its reply or error. Redis
	// application-level errors (MOVED, ASK, CLUSTERDOWN, ...) are returned
	// as a non-nil error whose Error() text carries the server's message
	// verbatim; they are not transport failures.
	Do(cmd string, args ...interface{}) (interface{}, error)

	// InitPipeline switches the session into buffering mode for subsequent
	// Do calls (implementations that don't buffer client-side may treat
	// this as a no-op and send each Do immediately, so long as
	// CommitPipeline still returns replies in submission order).
	InitPipeline()

	// CommitPipeline flushes a buffered pipeline and returns one reply or
	// error per buffered command, in submission order.
	CommitPipeline() ([]interface{}, error)

	// ClusterSlots issues CLUSTER SLOTS and returns the parsed rows.
	ClusterSlots() ([]SlotRow, error)

	// ClusterNodes issues CLUSTER NODES and returns the raw multi-line
	// reply text for the caller to parse.
	ClusterNodes() (string, error)

	// Close releases any underlying transport resources. Safe to call more
	// than once.
	Close() error
}

// Factory creates a fresh, unconnected NodeSession.
type Factory func() NodeSession

// Handle identifies a held lock for a later Unlock call.
type Handle interface{}

// NamedLocker is a cross-worker mutex keyed by name, used only to
// single-flight the first topology load for a given cluster name (see
// cluster.Client.InitSlots). Implementations must be safe for
// concurrent use by multiple callers, possibly in different processes.
type NamedLocker interface {
	Lock(ctx context.Context, name string) (Handle, error)
	Unlock(h Handle)
}
