package cluster

import (
	"strings"
	"sync"

	"github.com/kevwan/rcluster/topo"
)

// fanoutAllowed is the recognized fan-out command set from spec.md §4.7.
var fanoutAllowed = map[string]bool{
	"FLUSHALL": true,
	"FLUSHDB":  true,
}

// fanoutDenied is rejected with UnsupportedCommand before dispatch.
var fanoutDenied = map[string]bool{
	"CONFIG":   true,
	"SHUTDOWN": true,
}

// RunOnAllMasters implements AdminFanout.run_on_all_masters: cmd is issued
// independently against every master the current topology knows about.
// Success requires every call to succeed; otherwise the errors are
// concatenated.
func (c *Client) RunOnAllMasters(cmd string, args ...interface{}) error {
	upper := strings.ToUpper(cmd)
	if fanoutDenied[upper] {
		return newError(UnsupportedCommand, nil, "%s is not permitted via admin fan-out", upper)
	}
	if !fanoutAllowed[upper] {
		return newError(UnsupportedCommand, nil, "%s is not a recognized fan-out command", upper)
	}

	topology, err := c.topology()
	if err != nil {
		return err
	}

	// Every master is called independently and every error is kept (not
	// just the first, as errgroup.Group.Wait would give us): spec.md §4.7
	// requires the combined result to concatenate every failure's message.
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []string
	)
	for _, master := range topology.Masters {
		master := master
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.fanoutOne(master, cmd, args); err != nil {
				mu.Lock()
				errs = append(errs, err.Error())
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(errs) == 0 {
		return nil
	}
	return newError(BackendError, nil, "%s", strings.Join(errs, "; "))
}

func (c *Client) fanoutOne(master topo.Node, cmd string, args []interface{}) error {
	sess, err := c.newSession(master)
	if err != nil {
		return wrapError(ConnectFailed, err, "fanout connect "+master.Addr())
	}
	defer c.putSession(master, sess)

	if _, cmdErr := sess.Do(cmd, args...); cmdErr != nil {
		return wrapError(BackendError, cmdErr, master.Addr())
	}
	return nil
}

// FlushAll fans FLUSHALL out to every master.
func (c *Client) FlushAll() error { return c.RunOnAllMasters("FLUSHALL") }

// FlushDB fans FLUSHDB out to every master.
func (c *Client) FlushDB() error { return c.RunOnAllMasters("FLUSHDB") }
