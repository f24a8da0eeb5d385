package cluster

import (
	"strconv"
	"strings"

	"github.com/kevwan/rcluster/hashslot"
	"github.com/kevwan/rcluster/rsession"
	"github.com/kevwan/rcluster/topo"
)

// execute is CommandExecutor.execute from spec.md §4.5, entered fresh
// (Normal state, no forced ASK target).
func (c *Client) execute(cmd, key string, args []interface{}) (interface{}, error) {
	return c.executeFrom(cmd, key, args, nil)
}

// executeFrom runs the redirection state machine for one logical command.
// askTarget, if non-nil, starts the attempt loop already in the Asking
// state against that node (used by PipelineExecutor's per-item ASK
// recovery, which needs exactly this one-shot behavior without going
// through the slot map).
func (c *Client) executeFrom(cmd, key string, args []interface{}, askTarget *topo.Node) (interface{}, error) {
	slot := hashslot.Slot(key)

	// forced, when set, pins the next attempt to a specific node instead of
	// resolving through the slot map: either the caller's initial ASK
	// target, or a node parsed straight out of a MOVED/ASK reply seen
	// during this loop. askRequired tracks whether that forced node still
	// needs the ASKING preamble (true only for ASK, never for MOVED — a
	// MOVED target is just the slot's new owner, not a one-shot redirect).
	forced := askTarget
	askRequired := askTarget != nil

	for attempt := 1; attempt <= c.cfg.MaxRedirection; attempt++ {
		target, isReplica, err := c.resolveTarget(slot, forced)
		if err != nil {
			return nil, err
		}

		sess, err := c.newSession(target)
		if err != nil {
			if attempt == c.cfg.MaxRedirection {
				return nil, err
			}
			c.refreshAsync()
			continue
		}

		if isReplica {
			if err := sess.ReadOnly(); err != nil {
				c.putSession(target, sess)
				c.refreshAsync()
				return nil, wrapError(BackendError, err, "readonly rejected by "+target.Addr())
			}
		}

		if askRequired {
			if err := sess.Asking(); err != nil {
				c.putSession(target, sess)
				c.refreshAsync()
				return nil, wrapError(BackendError, err, "asking rejected by "+target.Addr())
			}
		}

		result, cmdErr := issue(sess, cmd, key, args)
		c.putSession(target, sess)

		if cmdErr == nil {
			return result, nil
		}

		msg := strings.TrimSpace(cmdErr.Error())
		switch {
		case isClusterDown(msg):
			return nil, newError(ClusterDown, cmdErr, "cluster down")

		case isMoved(msg):
			c.refreshAsync()
			node, perr := parseRedirect(msg, "MOVED")
			if perr != nil {
				return nil, wrapError(BackendError, cmdErr, "malformed MOVED reply")
			}
			forced = &node
			askRequired = false
			continue

		case isAsk(msg):
			if askRequired {
				return nil, newError(NestedAskRedirection, cmdErr, "ASK received while already ASKING")
			}
			node, err := parseRedirect(msg, "ASK")
			if err != nil {
				return nil, wrapError(BackendError, cmdErr, "malformed ASK reply")
			}
			forced = &node
			askRequired = true
			continue

		default:
			c.refreshAsync()
			return nil, wrapError(BackendError, cmdErr, msg)
		}
	}

	return nil, newError(MaxRedirectionsExceeded, nil, "exceeded %d redirections for slot %d", c.cfg.MaxRedirection, slot)
}

func (c *Client) resolveTarget(slot uint16, askTarget *topo.Node) (topo.Node, bool, error) {
	if askTarget != nil {
		return *askTarget, false, nil
	}

	topology, err := c.topology()
	if err != nil {
		return topo.Node{}, false, err
	}
	entry, ok := topology.EntryFor(slot)
	if !ok {
		return topo.Node{}, false, newError(TopologyUnknown, nil, "slot %d is unassigned", slot)
	}
	return pickNode(entry, selectorPolicy{EnableSlaveRead: c.cfg.EnableSlaveRead}, nil)
}

// issue sends cmd to sess. EVAL/EVALSHA are invoked with the raw argument
// list (key is not re-prepended: with nkeys == 1 it is already args[2],
// after the script and nkeys); every other command is invoked with key
// first, then args.
func issue(sess rsession.NodeSession, cmd, key string, args []interface{}) (interface{}, error) {
	upper := strings.ToUpper(cmd)
	if upper == "EVAL" || upper == "EVALSHA" {
		return sess.Do(cmd, args...)
	}
	full := make([]interface{}, 0, len(args)+1)
	full = append(full, key)
	full = append(full, args...)
	return sess.Do(cmd, full...)
}

// parseRedirect parses "<KIND> <slot> <ip>:<port>" wire formats (MOVED/ASK)
// per spec.md §6, matched by prefix only.
func parseRedirect(msg, kind string) (topo.Node, error) {
	parts := strings.Fields(msg)
	if len(parts) < 3 {
		return topo.Node{}, newError(BackendError, nil, "malformed %s reply: %q", kind, msg)
	}
	hostPort := parts[2]
	i := strings.LastIndexByte(hostPort, ':')
	if i < 0 {
		return topo.Node{}, newError(BackendError, nil, "malformed %s address: %q", kind, hostPort)
	}
	port, err := strconv.Atoi(hostPort[i+1:])
	if err != nil {
		return topo.Node{}, newError(BackendError, err, "malformed %s port: %q", kind, hostPort)
	}
	return topo.Node{IP: hostPort[:i], Port: uint16(port)}, nil
}
