// Package pool implements a per-node connection pool for rsession.NodeSession,
// adapted from the teacher's channel-backed primary/secondary pool design.
package pool

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kevwan/rcluster/rsession"
)

var (
	// ErrIllegalArgument is returned when New is given a nonsensical
	// size/maxActive combination.
	ErrIllegalArgument = errors.New("rcluster/pool: bad arguments")
	// ErrPoolExhausted is returned by Get when the pool has no idle session
	// and is already at maxActive outstanding sessions.
	ErrPoolExhausted = errors.New("rcluster/pool: exhausted")
)

// AuthError wraps a failure to AUTH a freshly dialed connection, so callers
// can distinguish it from an ordinary connect failure.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "rcluster/pool: auth: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

const defaultMaxActive = 1000

// Pool is a connection pool bound to one cluster node address.
type Pool struct {
	IP   string
	Port uint16

	factory  rsession.Factory
	timeout  time.Duration
	password string

	pool            chan rsession.NodeSession
	secondaryPool   chan rsession.NodeSession
	secondaryActive atomic.Value // time.Time

	active    int32
	maxActive int32

	stopOnce sync.Once
	stopCh   chan struct{}

	waitForReuse time.Duration
}

// New creates a Pool of up to size idle connections (and up to maxActive
// total outstanding), dialing ip:port with factory and connTimeout.
// waitForReuse is how long an idle connection may sit before the pool
// considers discarding it on the next Put (ClusterConfig.KeepaliveTimeout).
// password, if non-empty, is sent via AUTH immediately after every dial, so
// every session this Pool ever hands out — including ones the idle reaper
// has pinged — is already authenticated before a caller sees it.
func New(ip string, port uint16, size, maxActive int, connTimeout, waitForReuse time.Duration, password string, factory rsession.Factory) (*Pool, error) {
	if maxActive < size {
		return nil, ErrIllegalArgument
	}
	if maxActive <= 0 {
		maxActive = defaultMaxActive
	}
	if waitForReuse <= 0 {
		waitForReuse = time.Minute
	}

	p := &Pool{
		IP:           ip,
		Port:         port,
		factory:      factory,
		timeout:      connTimeout,
		password:     password,
		pool:         make(chan rsession.NodeSession, size),
		maxActive:    int32(maxActive),
		stopCh:       make(chan struct{}),
		waitForReuse: waitForReuse,
	}
	overflow := maxActive - size
	if overflow <= 0 {
		overflow = 1
	}
	p.secondaryPool = make(chan rsession.NodeSession, overflow)
	p.secondaryActive.Store(time.Now())

	go p.reaper(size)

	if size < 1 {
		return p, nil
	}

	if err := p.fill(); err != nil {
		return p, err
	}
	go func() {
		for i := 0; i < size-1; i++ {
			p.fill()
		}
	}()
	return p, nil
}

func (p *Pool) fill() error {
	sess, err := p.dial()
	if err != nil {
		return err
	}
	p.pool <- sess
	atomic.AddInt32(&p.active, 1)
	return nil
}

func (p *Pool) dial() (rsession.NodeSession, error) {
	sess := p.factory()
	sess.SetTimeout(p.timeout)
	if err := sess.Connect(context.Background(), p.IP, p.Port); err != nil {
		return nil, err
	}
	if p.password != "" {
		if err := sess.Auth(p.password); err != nil {
			sess.Close()
			return nil, &AuthError{Err: err}
		}
	}
	return sess, nil
}

// reaper periodically pings idle connections so the pool notices a dead
// node before a caller does. It pings at most once every five minutes
// divided by size, matching the teacher's cadence.
func (p *Pool) reaper(size int) {
	if size < 1 {
		size = 1
	}
	tick := time.NewTicker(5 * time.Minute / time.Duration(size))
	defer tick.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-tick.C:
			sess, err := p.Get()
			if err != nil {
				continue
			}
			sess.Do("PING")
			p.Put(sess)
		}
	}
}

// Get retrieves an idle session, or dials a new one if none is idle and the
// pool is below maxActive.
func (p *Pool) Get() (rsession.NodeSession, error) {
	select {
	case sess := <-p.pool:
		return sess, nil
	default:
		select {
		case sess := <-p.secondaryPool:
			p.secondaryActive.Store(time.Now())
			return sess, nil
		default:
			for {
				active := atomic.LoadInt32(&p.active)
				if active >= p.maxActive {
					return nil, ErrPoolExhausted
				}
				if atomic.CompareAndSwapInt32(&p.active, active, active+1) {
					sess, err := p.dial()
					if err != nil {
						atomic.AddInt32(&p.active, -1)
						return nil, err
					}
					return sess, nil
				}
			}
		}
	}
}

// Put returns sess to the pool. If the pool is full sess is closed instead.
func (p *Pool) Put(sess rsession.NodeSession) {
	select {
	case p.pool <- sess:
		if last, ok := p.secondaryActive.Load().(time.Time); ok && last.Add(p.waitForReuse).Before(time.Now()) {
			select {
			case stale := <-p.secondaryPool:
				atomic.AddInt32(&p.active, -1)
				stale.Close()
			default:
				p.secondaryActive.Store(time.Now())
			}
		}
	default:
		select {
		case p.secondaryPool <- sess:
		default:
			atomic.AddInt32(&p.active, -1)
			sess.Close()
		}
	}
}

// Empty closes and drains every idle connection, and stops the idle reaper.
// After Empty, the Pool must not be used again.
func (p *Pool) Empty() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	for {
		select {
		case sess := <-p.pool:
			sess.Close()
		case sess := <-p.secondaryPool:
			sess.Close()
		default:
			return
		}
	}
}

// Avail reports how many sessions are currently idle in the primary pool.
// Idle sessions held in the overflow pool are not counted, although Get
// can also hand those out.
func (p *Pool) Avail() int {
	return len(p.pool)
}

// Addr returns the "ip:port" address this pool targets.
func (p *Pool) Addr() string {
	return p.IP + ":" + strconv.Itoa(int(p.Port))
}
