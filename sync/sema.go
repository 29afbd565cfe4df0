package sync

import (
	"quanta/internal/clock"
	"quanta/internal/core"
	"quanta/internal/status"
)

// Sem is a counting semaphore: a non-negative value and a FIFO waiter
// queue. Every sleep is paired with at most one wakeup, and a wakeup
// only grants eligibility to decrement, never the decrement itself.
type Sem struct {
	initialized bool
	value       int
	waiters     *core.WaitQueue
}

// NewSem returns a semaphore with the given initial value.
func NewSem(value uint) *Sem {
	return &Sem{initialized: true, value: int(value), waiters: core.NewWaitQueue()}
}

func (s *Sem) ensureInit() {
	if !s.initialized {
		s.waiters = core.NewWaitQueue()
		s.initialized = true
	}
}

// Wait decrements the value, blocking while it is zero. The value is
// re-checked after every wakeup: a woken waiter can be outrun to the
// decrement by a thread that never blocked at all.
func (s *Sem) Wait() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	s.ensureInit()

	for s.value <= 0 {
		sched.Block(s.waiters)
	}
	s.value--
	return nil
}

// TryWait is the non-blocking variant; try-again on a zero value.
func (s *Sem) TryWait() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	s.ensureInit()

	if s.value <= 0 {
		return status.ErrTryAgain
	}
	s.value--
	return nil
}

// TimedWait is Wait with an absolute deadline in the runtime's
// monotonic nanosecond clock. A post that dequeues this waiter while
// the deadline races it wins: BlockTimed only reports timeout when the
// expiry sweep itself pulled the thread off the queue.
func (s *Sem) TimedWait(deadlineNS uint64) error {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	s.ensureInit()

	for s.value <= 0 {
		if clock.Now() >= deadlineNS {
			return status.ErrTimedOut
		}
		if sched.BlockTimed(s.waiters, deadlineNS) {
			return status.ErrTimedOut
		}
	}
	s.value--
	return nil
}

// Post increments the value and wakes one waiter.
func (s *Sem) Post() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	s.ensureInit()

	s.value++
	sched.WakeOne(s.waiters)
	return nil
}

// Value snapshots the current value. Best-effort from the caller's
// point of view: it can be stale by the time the caller looks at it.
func (s *Sem) Value() int {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	s.ensureInit()
	return s.value
}

// Destroy fails with busy while any thread is still waiting.
func (s *Sem) Destroy() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()

	if s.waiters != nil && !s.waiters.Empty() {
		return status.ErrBusy
	}
	s.initialized = false
	s.waiters = nil
	return nil
}
