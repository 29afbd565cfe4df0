package core

import "quanta/internal/clock"

// timedEntry records one thread parked on a wait queue with an absolute
// wake deadline. The scheduler sweeps these at the top of every
// schedule() pass; an expired entry whose thread is still on its queue
// is pulled off and made runnable with its timedOut flag set. The
// deadline only records intent; the scheduler acts on it at a safe
// point, the same discipline the preemption timer follows.
type timedEntry struct {
	t        *Thread
	deadline uint64
	wq       *WaitQueue
}

// BlockTimed parks the current thread on wq until it is woken by a
// WakeOne/WakeAll or until the absolute deadline (clock.Now units)
// passes, whichever comes first. It reports true iff the wakeup was the
// deadline. Caller must hold the critical section, exactly as for Block.
//
// The classic race, a waiter being dequeued by a poster/signaler while
// the deadline expires, resolves here by construction: only the expiry
// sweep sets timedOut, and the sweep re-verifies queue membership first
// (WaitQueue.RemoveSpecific returns nil for a thread a waker already
// removed), so a concurrent wakeup is always authoritative over the
// timeout.
func (s *Scheduler) BlockTimed(wq *WaitQueue, deadline uint64) bool {
	cur := s.Current
	if cur == nil {
		return false
	}
	cur.timedOut = false
	s.timed = append(s.timed, timedEntry{t: cur, deadline: deadline, wq: wq})
	wq.Add(cur)
	cur.State = Blocked
	s.releaseAndSchedule()

	for i := range s.timed {
		if s.timed[i].t == cur {
			s.timed = append(s.timed[:i], s.timed[i+1:]...)
			break
		}
	}
	return cur.timedOut
}

// expireTimed wakes every registered thread whose deadline has passed
// and which is still parked on its wait queue. Called from schedule()
// so expiry is checked on every dispatch, including the idle thread's
// yield loop — a fully blocked system still makes forward progress on
// deadlines because idle keeps re-entering the scheduler.
func (s *Scheduler) expireTimed() {
	if len(s.timed) == 0 {
		return
	}
	now := clock.Now()
	for i := range s.timed {
		e := &s.timed[i]
		if e.t.timedOut || now < e.deadline {
			continue
		}
		if e.wq.RemoveSpecific(e.t) != nil {
			e.t.timedOut = true
			s.Unblock(e.t)
		}
	}
}
