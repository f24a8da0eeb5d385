package cluster

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind enumerates the routing-layer error categories from spec.md §7.
type Kind int

const (
	// ConfigInvalid means the configuration was missing a required field.
	ConfigInvalid Kind = iota
	// TopologyUnknown means no slot map is available, or the targeted
	// slot is unassigned.
	TopologyUnknown
	// ConnectFailed means a transport-level failure persisted after
	// exhausting connection attempts.
	ConnectFailed
	// AuthFailed means AUTH was rejected; never retried.
	AuthFailed
	// ClusterDown means the cluster reported CLUSTERDOWN.
	ClusterDown
	// MaxRedirectionsExceeded means the redirection loop exhausted its
	// attempt budget without resolving.
	MaxRedirectionsExceeded
	// NestedAskRedirection means the server returned ASK after ASKING was
	// already issued for this attempt.
	NestedAskRedirection
	// UnsupportedCommand means the command is in AdminFanout's deny set or
	// is not one of its recognized fan-out commands.
	UnsupportedCommand
	// EvalKeysInvalid means nkeys was missing, non-numeric, or > 1.
	EvalKeysInvalid
	// NodeSelectionFailed means a SlotEntry was unexpectedly empty.
	NodeSelectionFailed
	// BackendError is any other error string Redis returned, passed
	// through unchanged.
	BackendError
)

func (k Kind) String() string {
	switch k {
	case ConfigInvalid:
		return "ConfigInvalid"
	case TopologyUnknown:
		return "TopologyUnknown"
	case ConnectFailed:
		return "ConnectFailed"
	case AuthFailed:
		return "AuthFailed"
	case ClusterDown:
		return "ClusterDown"
	case MaxRedirectionsExceeded:
		return "MaxRedirectionsExceeded"
	case NestedAskRedirection:
		return "NestedAskRedirection"
	case UnsupportedCommand:
		return "UnsupportedCommand"
	case EvalKeysInvalid:
		return "EvalKeysInvalid"
	case NodeSelectionFailed:
		return "NodeSelectionFailed"
	case BackendError:
		return "BackendError"
	default:
		return "Unknown"
	}
}

// RoutingError is the error type returned by every operation in this
// package. Err, if non-nil, is the wrapped lower-level cause.
type RoutingError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *RoutingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *RoutingError of the same Kind, so callers
// can write errors.Is(err, cluster.ErrClusterDown) without needing the
// wrapped detail.
func (e *RoutingError) Is(target error) bool {
	other, ok := target.(*RoutingError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newError(kind Kind, cause error, msg string, args ...interface{}) *RoutingError {
	return &RoutingError{Kind: kind, Msg: fmt.Sprintf(msg, args...), Err: cause}
}

func wrapError(kind Kind, cause error, msg string) *RoutingError {
	return &RoutingError{Kind: kind, Msg: msg, Err: errors.WithStack(cause)}
}

// Sentinels usable with errors.Is; only Kind is compared.
var (
	ErrConfigInvalid           = &RoutingError{Kind: ConfigInvalid}
	ErrTopologyUnknown         = &RoutingError{Kind: TopologyUnknown}
	ErrConnectFailed           = &RoutingError{Kind: ConnectFailed}
	ErrAuthFailed              = &RoutingError{Kind: AuthFailed}
	ErrClusterDown             = &RoutingError{Kind: ClusterDown}
	ErrMaxRedirectionsExceeded = &RoutingError{Kind: MaxRedirectionsExceeded}
	ErrNestedAskRedirection    = &RoutingError{Kind: NestedAskRedirection}
	ErrUnsupportedCommand      = &RoutingError{Kind: UnsupportedCommand}
	ErrEvalKeysInvalid         = &RoutingError{Kind: EvalKeysInvalid}
	ErrNodeSelectionFailed     = &RoutingError{Kind: NodeSelectionFailed}
	ErrBackendError            = &RoutingError{Kind: BackendError}
)

// isMoved reports whether msg is a MOVED error string, per spec.md §6.
func isMoved(msg string) bool {
	return hasPrefix(msg, "MOVED")
}

// isAsk reports whether msg is an ASK error string, per spec.md §6.
func isAsk(msg string) bool {
	return hasPrefix(msg, "ASK ")
}

// isClusterDown reports whether msg is a CLUSTERDOWN error string.
func isClusterDown(msg string) bool {
	return hasPrefix(msg, "CLUSTERDOWN")
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
