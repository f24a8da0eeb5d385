package rsession

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// singleflightLocker implements NamedLocker for a single process using
// golang.org/x/sync/singleflight. It does not provide cross-process mutual
// exclusion; it exists so cluster.Client.InitSlots has a working
// default without requiring callers to bring a distributed lock just to try
// the package out. Production deployments spanning multiple processes
// should supply a NamedLocker backed by a real distributed lock (e.g. a
// Redis SET NX lease) instead.
type singleflightLocker struct {
	group singleflight.Group
}

// NewSingleflightLocker returns the default, in-process NamedLocker.
func NewSingleflightLocker() NamedLocker {
	return &singleflightLocker{}
}

// sfHandle identifies the name a Lock call was issued against, so Unlock
// has something to take (even though nothing needs releasing — see Unlock).
type sfHandle struct {
	name string
}

func (l *singleflightLocker) Lock(ctx context.Context, name string) (Handle, error) {
	// The bare Lock/Unlock pair is kept for interface conformance. Lock
	// blocks until any in-flight Do for the same name has finished, by
	// running an empty Do call to completion, and then returns holding
	// nothing: it gives no mutual exclusion between Lock and Unlock.
	l.group.Do(name, func() (interface{}, error) { return nil, nil })
	return sfHandle{name: name}, nil
}

func (l *singleflightLocker) Unlock(h Handle) {
	// singleflight.Group has no explicit unlock; the critical section ends
	// when the Do call supplied to Lock returns, which has already
	// happened by the time Lock returns control here. Nothing to release.
}

// Do runs fn with single-flight deduplication across concurrent callers
// using the same name: if a call for name is already in flight, the caller
// waits for it and reuses its result instead of invoking fn again. This is
// the primitive cluster.Client.InitSlots actually uses; it captures
// the "re-check cache under the lock" step atomically with the lock
// acquisition, which a separate Lock()/check/Unlock() pair cannot do without
// a second interface method.
func (l *singleflightLocker) Do(name string, fn func() (interface{}, error)) (interface{}, error, bool) {
	return l.group.Do(name, fn)
}

// SingleflightDoer is implemented by NamedLockers that can additionally
// single-flight an arbitrary function, not just a bare critical section.
// cluster.Client prefers this when the configured NamedLocker
// supports it (the default does); NamedLockers that only implement
// Lock/Unlock fall back to the straightforward lock/check/unlock sequence
// from spec.md §4.9.
type SingleflightDoer interface {
	Do(name string, fn func() (interface{}, error)) (v interface{}, err error, shared bool)
}
