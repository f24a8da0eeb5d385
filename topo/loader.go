package topo

import (
	"context"
	stderrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/kevwan/rcluster/rsession"
	"github.com/pkg/errors"
)

// AuthError wraps a failed AUTH issued against a seed while loading
// topology, so callers can classify it separately from an ordinary connect
// failure (spec.md §7's AuthFailed kind).
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "topo: auth: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// Loader fetches CLUSTER SLOTS / CLUSTER NODES from a seed list and builds
// a Topology.
type Loader struct {
	Factory             rsession.Factory
	ConnectionTimeout    time.Duration
	MaxConnectionAttempt int
	Password             string
}

// Load attempts each seed in order, up to MaxConnectionAttempt dials per
// seed, until one yields a usable SlotMap. Connections it opens are always
// released on exit.
func (l *Loader) Load(ctx context.Context, seeds []Node) (*Topology, error) {
	var errs []error
	for _, seed := range seeds {
		sess, err := l.connectWithRetry(ctx, seed)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "seed %s", seed.Addr()))
			continue
		}

		topology, err := l.loadFromSession(sess, seed)
		sess.Close()
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "seed %s", seed.Addr()))
			continue
		}
		return topology, nil
	}
	return nil, combineErrors(errs)
}

func (l *Loader) connectWithRetry(ctx context.Context, seed Node) (rsession.NodeSession, error) {
	attempts := l.MaxConnectionAttempt
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		sess := l.Factory()
		sess.SetTimeout(l.ConnectionTimeout)
		if err := sess.Connect(ctx, seed.IP, seed.Port); err != nil {
			lastErr = err
			continue
		}
		if l.Password != "" {
			if err := sess.Auth(l.Password); err != nil {
				sess.Close()
				return nil, &AuthError{Err: err}
			}
		}
		return sess, nil
	}
	return nil, lastErr
}

// loadFromSession builds a Topology from one already-connected seed
// session, per spec.md §4.3's tie-break policy: a SlotMap from CLUSTER
// SLOTS is required; CLUSTER NODES failing only degrades MasterList to the
// unique first-position masters already present in the SlotMap.
func (l *Loader) loadFromSession(sess rsession.NodeSession, seed Node) (*Topology, error) {
	rows, err := sess.ClusterSlots()
	if err != nil {
		return nil, errors.Wrap(err, "cluster slots")
	}
	if len(rows) == 0 {
		return nil, errors.New("empty CLUSTER SLOTS response")
	}

	var slots SlotMap
	serverSet := map[string]Node{}
	for _, row := range rows {
		entry := make(SlotEntry, 0, len(row.Nodes))
		for _, n := range row.Nodes {
			ip := n.IP
			if ip == "" {
				// CLUSTER SLOTS reports a blank ip for the node we're
				// currently connected to.
				ip = seed.IP
			}
			node := Node{IP: ip, Port: n.Port}
			entry = append(entry, node)
			serverSet[node.Addr()] = node
		}
		if len(entry) == 0 {
			continue
		}
		for s := row.Start; s <= row.End; s++ {
			slots[s] = entry
		}
	}

	servers := make(ServerList, 0, len(serverSet))
	for _, n := range serverSet {
		servers = append(servers, n)
	}

	masters, err := l.mastersFromClusterNodes(sess)
	if err != nil {
		masters = fallbackMasters(&slots)
	}

	return &Topology{Slots: slots, Servers: servers, Masters: masters}, nil
}

func (l *Loader) mastersFromClusterNodes(sess rsession.NodeSession) (MasterList, error) {
	text, err := sess.ClusterNodes()
	if err != nil {
		return nil, err
	}
	return parseClusterNodesMasters(text)
}

// parseClusterNodesMasters parses the whitespace-separated CLUSTER NODES
// line format: field 3 (0-indexed 2) is the flags list scanned for the
// token "master"; field 2 (0-indexed 1) is ip:port@cport.
func parseClusterNodesMasters(text string) (MasterList, error) {
	var masters MasterList
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		flags := fields[2]
		if !hasToken(flags, "master") {
			continue
		}
		addrField := fields[1]
		addrPart := addrField
		if at := strings.IndexByte(addrField, '@'); at >= 0 {
			addrPart = addrField[:at]
		}
		ip, portStr, ok := splitHostPort(addrPart)
		if !ok {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		masters = append(masters, Node{IP: ip, Port: uint16(port)})
	}
	return masters, nil
}

func hasToken(flags, token string) bool {
	for _, f := range strings.Split(flags, ",") {
		if f == token {
			return true
		}
	}
	return false
}

func splitHostPort(s string) (host, port string, ok bool) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// fallbackMasters builds a MasterList from the unique first-position
// (master) node of every SlotEntry, used when CLUSTER NODES fails.
func fallbackMasters(slots *SlotMap) MasterList {
	seen := map[string]Node{}
	for _, entry := range slots {
		if len(entry) == 0 {
			continue
		}
		m := entry.Master()
		seen[m.Addr()] = m
	}
	masters := make(MasterList, 0, len(seen))
	for _, n := range seen {
		masters = append(masters, n)
	}
	return masters
}

// combineErrors joins every seed's failure into one message. If any seed
// failed on AUTH specifically, the combined error stays an *AuthError so
// callers can still classify it as such, rather than losing that kind the
// moment more than one seed is tried.
func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return errors.New("no seeds available")
	}
	msgs := make([]string, len(errs))
	var authErr *AuthError
	for i, e := range errs {
		msgs[i] = e.Error()
		if authErr == nil {
			var ae *AuthError
			if stderrors.As(e, &ae) {
				authErr = ae
			}
		}
	}
	joined := strings.Join(msgs, "; ")
	if authErr != nil {
		return &AuthError{Err: errors.New(joined)}
	}
	return errors.New(joined)
}
