package cluster

import (
	"context"
	"strconv"
	"time"

	"github.com/kevwan/rcluster/rsession"
)

// doResult is one scripted reply for fakeSession.Do, consumed in order.
type doResult struct {
	val interface{}
	err error
}

// fakeSession is a minimal rsession.NodeSession double driving the routing
// state machine under test: Do replies are scripted per call, in order;
// once exhausted the last scripted reply repeats.
type fakeSession struct {
	addr string

	connectErr error
	results    []doResult
	callCount  int

	readOnlyErr  error
	askingErr    error
	askingCalled bool

	slotsRows []rsession.SlotRow
	slotsErr  error
	nodesText string
	nodesErr  error

	piping    bool
	pipeQueue []doResult
	closed    bool
}

func (f *fakeSession) Connect(ctx context.Context, ip string, port uint16) error { return f.connectErr }
func (f *fakeSession) SetTimeout(d time.Duration)                               {}
func (f *fakeSession) ReusedTimes() int                                        { return f.callCount }
func (f *fakeSession) Auth(password string) error                              { return nil }
func (f *fakeSession) SetKeepalive(idle time.Duration, poolSize int) error      { return nil }
func (f *fakeSession) ReadOnly() error                                         { return f.readOnlyErr }
func (f *fakeSession) Asking() error { f.askingCalled = true; return f.askingErr }

func (f *fakeSession) Do(cmd string, args ...interface{}) (interface{}, error) {
	r := f.nextResult()
	if f.piping {
		f.pipeQueue = append(f.pipeQueue, r)
		return nil, nil
	}
	return r.val, r.err
}

func (f *fakeSession) nextResult() doResult {
	if len(f.results) == 0 {
		return doResult{}
	}
	idx := f.callCount
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	f.callCount++
	return f.results[idx]
}

func (f *fakeSession) InitPipeline() {
	f.piping = true
	f.pipeQueue = nil
}

func (f *fakeSession) CommitPipeline() ([]interface{}, error) {
	f.piping = false
	out := make([]interface{}, len(f.pipeQueue))
	for i, r := range f.pipeQueue {
		if r.err != nil {
			out[i] = r.err
		} else {
			out[i] = r.val
		}
	}
	f.pipeQueue = nil
	return out, nil
}

func (f *fakeSession) ClusterSlots() ([]rsession.SlotRow, error) { return f.slotsRows, f.slotsErr }
func (f *fakeSession) ClusterNodes() (string, error)            { return f.nodesText, f.nodesErr }
func (f *fakeSession) Close() error                             { f.closed = true; return nil }

// singleSessionFactory always returns the same session, matching a
// size-1 pool dialing once and reusing the connection across attempts.
func singleSessionFactory(sess rsession.NodeSession) rsession.Factory {
	return func() rsession.NodeSession { return sess }
}

// addrRouter binds to whichever fakeSession a shared table assigns its
// dialed address, so one Factory closure can serve per-node pools that are
// filled concurrently (pool creation order is otherwise unpredictable once
// PipelineExecutor commits multiple node buckets in parallel).
type addrRouter struct {
	table   map[string]*fakeSession
	current *fakeSession
}

func newAddrRoutedFactory(table map[string]*fakeSession) rsession.Factory {
	return func() rsession.NodeSession { return &addrRouter{table: table} }
}

func (r *addrRouter) bind(ip string, port uint16) *fakeSession {
	addr := ip + ":" + strconv.Itoa(int(port))
	sess, ok := r.table[addr]
	if !ok {
		sess = &fakeSession{}
		r.table[addr] = sess
	}
	r.current = sess
	return sess
}

func (r *addrRouter) Connect(ctx context.Context, ip string, port uint16) error {
	return r.bind(ip, port).Connect(ctx, ip, port)
}
func (r *addrRouter) SetTimeout(d time.Duration)          { r.current.SetTimeout(d) }
func (r *addrRouter) ReusedTimes() int                     { return r.current.ReusedTimes() }
func (r *addrRouter) Auth(password string) error           { return r.current.Auth(password) }
func (r *addrRouter) SetKeepalive(idle time.Duration, poolSize int) error {
	return r.current.SetKeepalive(idle, poolSize)
}
func (r *addrRouter) ReadOnly() error { return r.current.ReadOnly() }
func (r *addrRouter) Asking() error   { return r.current.Asking() }
func (r *addrRouter) Do(cmd string, args ...interface{}) (interface{}, error) {
	return r.current.Do(cmd, args...)
}
func (r *addrRouter) InitPipeline()                              { r.current.InitPipeline() }
func (r *addrRouter) CommitPipeline() ([]interface{}, error)      { return r.current.CommitPipeline() }
func (r *addrRouter) ClusterSlots() ([]rsession.SlotRow, error)   { return r.current.ClusterSlots() }
func (r *addrRouter) ClusterNodes() (string, error)               { return r.current.ClusterNodes() }
func (r *addrRouter) Close() error                                { return r.current.Close() }
