package core

import "sync/atomic"

// criticalSection is the per-process nesting counter and
// pending-preempt flag. While the counter is nonzero the preemption
// path may only record intent; the outermost leave serves it.
//
// All fields are accessed from both the scheduler's own goroutine and
// the signal-delivery goroutine that drives the preemption timer
// (timer.go), so the counter and flag are atomics even though at most
// one user thread ever runs at a time.
type criticalSection struct {
	depth   int32
	pending int32
}

// Enter suppresses preemption, nestably.
func (c *criticalSection) Enter() {
	atomic.AddInt32(&c.depth, 1)
}

// Leave un-suppresses preemption one level. On the outermost Leave, if
// a preemption was deferred while masked, onDrain is called to serve it
// synchronously, after the nesting counter reaches zero. onDrain may be
// nil for callers that are about to invoke the scheduler themselves
// regardless (a blocking operation that releases the critical section
// immediately before calling schedule) and so have no need for a
// separately-served pending tick.
func (c *criticalSection) Leave(onDrain func()) {
	depth := atomic.AddInt32(&c.depth, -1)
	if depth < 0 {
		panic("core: critical section exited more times than entered")
	}
	if depth == 0 && atomic.CompareAndSwapInt32(&c.pending, 1, 0) && onDrain != nil {
		onDrain()
	}
}

// Active reports whether any critical section is currently open.
func (c *criticalSection) Active() bool {
	return atomic.LoadInt32(&c.depth) > 0
}

// MarkPending records that a preemption tick was deferred; the timer
// handler calls it on every firing, and the next outermost Leave serves
// it.
func (c *criticalSection) MarkPending() {
	atomic.StoreInt32(&c.pending, 1)
}
