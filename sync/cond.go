package sync

import (
	"quanta/internal/core"
	"quanta/internal/status"
)

// Cond is a condition variable. The zero value is valid and lazily
// initialized, the same static-init discipline as Mutex. The sequence
// counter is observational only, for diagnostics, never correctness;
// callers must loop over their predicate because spurious wakeups are
// permitted.
type Cond struct {
	initialized bool
	waiters     *core.WaitQueue
	seq         uint64
}

// NewCond returns an explicitly-initialized condition variable.
func NewCond() *Cond {
	return &Cond{initialized: true, waiters: core.NewWaitQueue()}
}

func (c *Cond) ensureInit() {
	if !c.initialized {
		c.waiters = core.NewWaitQueue()
		c.initialized = true
	}
}

// Wait atomically releases m, blocks on c, and reacquires m before
// returning. m must be owned by the caller. Reacquisition goes through
// the ordinary mutex claim protocol, so the caller can be overtaken by
// a concurrent locker between the signal and the return; re-check the
// predicate in a loop.
func (c *Cond) Wait(m *Mutex) error {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	c.ensureInit()
	m.ensureInit()

	cur := sched.Self()
	if m.owner != cur {
		return status.ErrPermission
	}

	saved := m.release()
	sched.Block(c.waiters)
	m.reacquire(cur, saved)
	return nil
}

// TimedWait is Wait with an absolute deadline in the runtime's
// monotonic nanosecond clock. On deadline passage the waiter removes
// itself from c's queue (if a signal hasn't already done so — a
// concurrent signal is authoritative over the timeout) and reacquires
// m before returning timed-out, so m is held on every return path.
func (c *Cond) TimedWait(m *Mutex, deadlineNS uint64) error {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	c.ensureInit()
	m.ensureInit()

	cur := sched.Self()
	if m.owner != cur {
		return status.ErrPermission
	}

	saved := m.release()
	timedOut := sched.BlockTimed(c.waiters, deadlineNS)
	m.reacquire(cur, saved)
	if timedOut {
		return status.ErrTimedOut
	}
	return nil
}

// Signal wakes one waiter, if any. Waking with an empty queue is a
// no-op on queue state; the sequence counter still advances.
func (c *Cond) Signal() {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	c.ensureInit()

	c.seq++
	sched.WakeOne(c.waiters)
}

// Broadcast wakes every waiter.
func (c *Cond) Broadcast() {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	c.ensureInit()

	c.seq++
	sched.WakeAll(c.waiters)
}

// Destroy fails with busy while any thread is still waiting.
func (c *Cond) Destroy() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()

	if c.waiters != nil && !c.waiters.Empty() {
		return status.ErrBusy
	}
	c.initialized = false
	c.waiters = nil
	return nil
}

// Seq reports the observational signal sequence counter.
func (c *Cond) Seq() uint64 { return c.seq }
