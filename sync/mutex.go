// Package sync implements the runtime's four blocking synchronization
// primitives: mutex, condition variable, counting semaphore, and
// read-write lock, all built on internal/core's WaitQueue and
// Scheduler.Block/Unblock so they park user threads, never OS threads
// or goroutines.
package sync

import (
	"quanta/internal/core"
	"quanta/internal/status"
)

// sched is bound once by the root package at Init time; every
// primitive in this package blocks through it.
var sched *core.Scheduler

// Bind wires this package to the runtime's scheduler. Called once from
// the root package's Init.
func Bind(s *core.Scheduler) { sched = s }

// MutexKind selects the locking discipline: what happens when a thread
// locks a mutex it already owns.
type MutexKind int

const (
	Normal MutexKind = iota
	Recursive
	ErrorCheck
)

// Mutex is a blocking lock with a FIFO waiter queue. The zero value is
// a valid, not-yet-initialized Normal mutex: the first operation lazily
// allocates its waiter queue under a critical section. Lazy init of
// this shape would race on a multi-runner design; here only one user
// thread ever executes at a time, so the first operation always
// completes the allocation before any second one can observe it.
type Mutex struct {
	kind        MutexKind
	initialized bool
	owner       *core.Thread
	recursion   int
	waiters     *core.WaitQueue
}

// NewMutex returns an explicitly-initialized mutex of the given kind.
func NewMutex(kind MutexKind) *Mutex {
	return &Mutex{kind: kind, initialized: true, waiters: core.NewWaitQueue()}
}

func (m *Mutex) ensureInit() {
	if !m.initialized {
		m.waiters = core.NewWaitQueue()
		m.initialized = true
	}
}

// Lock acquires m, blocking FIFO behind other claimants. Re-locking a
// Normal mutex as its own owner blocks forever; Recursive increments
// the hold count; ErrorCheck reports deadlock-would-occur.
func (m *Mutex) Lock() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	m.ensureInit()

	cur := sched.Current
	for {
		if m.owner == nil {
			m.owner = cur
			m.recursion = 1
			return nil
		}
		if m.owner == cur {
			switch m.kind {
			case Recursive:
				m.recursion++
				return nil
			case ErrorCheck:
				return status.ErrDeadlockWouldOccur
			}
			// Normal: falls through to block on a queue nobody else
			// will ever wake it from. Self-deadlock, as documented.
		}
		sched.Block(m.waiters)
	}
}

// TryLock is Lock without blocking: busy if held by anyone else (or by
// the caller, for non-recursive kinds).
func (m *Mutex) TryLock() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	m.ensureInit()

	cur := sched.Current
	if m.owner == nil {
		m.owner = cur
		m.recursion = 1
		return nil
	}
	if m.owner == cur && m.kind == Recursive {
		m.recursion++
		return nil
	}
	return status.ErrBusy
}

// Unlock releases m (fully, at recursion depth zero for Recursive) and
// wakes one waiter. ErrorCheck verifies the caller is the owner.
func (m *Mutex) Unlock() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	m.ensureInit()

	cur := sched.Current
	if m.kind == ErrorCheck && m.owner != cur {
		return status.ErrPermission
	}
	if m.kind == Recursive {
		m.recursion--
		if m.recursion > 0 {
			return nil
		}
	}
	m.owner = nil
	m.recursion = 0
	sched.WakeOne(m.waiters)
	return nil
}

// release drops ownership entirely (recursion included) and wakes one
// waiter, returning the recursion depth it discarded so a condvar wait
// can restore it on reacquire. Critical section must be held.
func (m *Mutex) release() int {
	saved := m.recursion
	m.owner = nil
	m.recursion = 0
	sched.WakeOne(m.waiters)
	return saved
}

// reacquire claims m for cur, blocking through the ordinary claim
// protocol until it is free. A waiter coming back through here may be
// overtaken by a concurrent locker; predicate re-checking is the
// caller's job for exactly this reason. Critical section must be held.
func (m *Mutex) reacquire(cur *core.Thread, recursion int) {
	for m.owner != nil {
		sched.Block(m.waiters)
	}
	m.owner = cur
	m.recursion = recursion
}

// Destroy invalidates m; fails with busy if it is locked or has
// waiters.
func (m *Mutex) Destroy() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()

	if m.owner != nil {
		return status.ErrBusy
	}
	if m.waiters != nil && !m.waiters.Empty() {
		return status.ErrBusy
	}
	m.initialized = false
	m.waiters = nil
	return nil
}

// Kind reports the mutex's locking discipline.
func (m *Mutex) Kind() MutexKind { return m.kind }
