package core

import (
	"quanta/internal/clock"
	"quanta/internal/ctxswitch"
	"quanta/internal/trust"
)

// Scheduler is the process-wide runtime state: policy, current thread,
// idle thread, thread table, counters, timer, and the
// preemption-enabled/in-scheduler flags. It is a struct rather than
// package globals so tests can build isolated instances; the root
// package holds the single default instance.
type Scheduler struct {
	Policy Policy
	Table  *Table
	Config Config

	Current *Thread
	Idle    *Thread
	main    *Thread

	Timer *Timer

	preemptEnabled bool
	inScheduler    bool
	critical       criticalSection

	timed []timedEntry

	// deadStackFree holds the stack release of a detached thread that
	// exited: it cannot free its own stack while still executing on it,
	// so the release is parked here and served by the first code to run
	// on a different stack (switchTo's post-switch path, or a fresh
	// thread's entry thunk).
	deadStackFree func() error

	contextSwitches uint64
	scheduleCalls   uint64
	threadsCreated  uint64
}

// New constructs a Scheduler with the named policy and configuration.
// The idle thread and its context are wired up separately by
// lifecycle.go's Bootstrap, since idle's context creation shares
// machinery with ordinary thread creation.
func New(policyName string, cfg Config) (*Scheduler, error) {
	policy, err := newPolicy(policyName)
	if err != nil {
		return nil, err
	}
	policy.Init(cfg)
	s := &Scheduler{
		Policy:         policy,
		Table:          NewTable(),
		Config:         cfg,
		preemptEnabled: true,
	}
	s.Timer = NewTimer(s)
	return s, nil
}

// SetTimeslice reconfigures the round-robin/priority quantum (minimum
// 1ms) and, if the timer is running, restarts it at the new interval.
func (s *Scheduler) SetTimeslice(ns uint64) error {
	if ns < 1_000_000 {
		return errInvalidTimeslice{}
	}
	s.Config.TimesliceNS = ns
	switch p := s.Policy.(type) {
	case *roundRobinPolicy:
		p.cfg.TimesliceNS = ns
	case *priorityPolicy:
		p.cfg.TimesliceNS = ns
	}
	if s.Timer.Running() {
		return s.Timer.Start(ns)
	}
	return nil
}

func (s *Scheduler) GetTimeslice() uint64 { return s.Config.TimesliceNS }

type errInvalidTimeslice struct{}

func (errInvalidTimeslice) Error() string { return "core: timeslice below 1ms minimum" }

// Self is the "current thread" ambient reference. Nil before Bootstrap
// and after Shutdown.
func (s *Scheduler) Self() *Thread { return s.Current }

func (s *Scheduler) PreemptionEnabled() bool { return s.preemptEnabled }

func (s *Scheduler) SetPreemptionEnabled(v bool) { s.preemptEnabled = v }

func (s *Scheduler) ContextSwitches() uint64 { return s.contextSwitches }

func (s *Scheduler) ScheduleCalls() uint64 { return s.scheduleCalls }

func (s *Scheduler) ThreadsCreated() uint64 { return s.threadsCreated }

// DecayEvents reports the fixed-priority policy's informational
// timeslice-decay counter; zero under the other policies.
func (s *Scheduler) DecayEvents() uint64 {
	if p, ok := s.Policy.(*priorityPolicy); ok {
		return p.decayTicks
	}
	return 0
}

// ResetStats zeroes the best-effort counters. Per-thread accounting
// fields (total runtime, vruntime) are live scheduling state, not
// statistics, and are left alone.
func (s *Scheduler) ResetStats() {
	s.EnterCritical()
	s.contextSwitches = 0
	s.scheduleCalls = 0
	s.threadsCreated = 0
	s.Table.Each(func(t *Thread) { t.ContextSwitchesIn = 0 })
	s.LeaveCritical()
}

// Shutdown stops the preemption timer and releases policy state. It
// must be called from the main thread with no other user thread still
// live; threads left in the table keep their stacks. Tearing down a
// stack someone might still resume onto is worse than leaking it;
// join and detach own reclamation.
func (s *Scheduler) Shutdown() {
	s.Timer.Stop()
	s.EnterCritical()
	s.Policy.Shutdown()
	s.timed = nil
	if s.Idle != nil && s.Idle.stackFree != nil {
		s.Idle.stackFree()
	}
	s.Current = nil
	s.Idle = nil
	s.LeaveCritical()
}

// EnterCritical / LeaveCritical wrap the scheduler's single
// criticalSection instance: every mutation of scheduler, queue, or
// synchronization state runs with preemption suppressed. LeaveCritical
// serves a deferred tick synchronously on the outermost leave.
func (s *Scheduler) EnterCritical() {
	s.critical.Enter()
	if s.Current != nil {
		s.Current.InCriticalSect = true
	}
}

func (s *Scheduler) LeaveCritical() {
	s.critical.Leave(func() {
		s.Tick()
	})
	if !s.critical.Active() && s.Current != nil {
		s.Current.InCriticalSect = false
	}
}

// MarkPendingPreempt records a preempt deferred by the signal handler
// (internal/core/timer.go), which defers every tick it sees outside the
// scheduler; the next outermost LeaveCritical serves it.
func (s *Scheduler) MarkPendingPreempt() { s.critical.MarkPending() }

func (s *Scheduler) InScheduler() bool { return s.inScheduler }

// schedule is the core dispatch routine: pick the next runnable (idle
// if none), swap states, switch. Callers do their state changes under
// the critical section and drop it immediately before calling here
// (see releaseAndSchedule and Exit); Tick calls here from
// LeaveCritical's drain, after the depth has reached zero.
func (s *Scheduler) schedule() {
	s.scheduleCalls++
	s.inScheduler = true

	s.expireTimed()

	next := s.Policy.Dequeue()
	if next == nil {
		next = s.Idle
	}

	if next == s.Current {
		s.inScheduler = false
		return
	}

	prev := s.Current
	if prev != nil {
		switch prev.State {
		case Blocked, Terminated:
			// left running because it blocked or exited; state already
			// set by the caller (Block/exit).
		default:
			prev.State = Ready
		}
	}
	next.State = Running
	s.Current = next
	s.inScheduler = false

	s.switchTo(prev, next)
}

// switchTo performs the raw context switch and its bookkeeping: the
// context-switch counter, runtime accrual for the outgoing thread,
// start-time stamping for the incoming one. If next has never run, it
// is routed through the entry trampoline instead of a plain resume.
func (s *Scheduler) switchTo(prev, next *Thread) {
	now := clock.Now()
	if prev != nil && prev.StartTime != 0 {
		prev.TotalRuntime += now - prev.StartTime
	}
	next.StartTime = now
	next.ContextSwitchesIn++
	s.contextSwitches++

	if !next.Started {
		next.Started = true
		installEntryThunk(s, next)
	}

	var fromCtx *ctxswitch.Context
	if prev != nil {
		fromCtx = prev.Ctx
	}
	ctxswitch.Switch(fromCtx, next.Ctx)

	// Control is back on prev's stack (a later switch restored it); any
	// stack parked by a detached exit since then is safe to release now.
	s.reapDeadStack()
}

// reapDeadStack serves a pending detached-exit stack release. Must run
// on a stack other than the one being released.
func (s *Scheduler) reapDeadStack() {
	if f := s.deadStackFree; f != nil {
		s.deadStackFree = nil
		if err := f(); err != nil {
			trust.Warnf("core: freeing exited thread's stack: %v", err)
		}
	}
}

// releaseAndSchedule drops the critical section immediately before the
// actual context switch and reacquires it the instant this thread is
// dispatched again. Releasing first matters because the process-wide
// critical-section depth would otherwise still read nonzero the moment
// control lands in the next thread, leaving it unable to ever suppress
// preemption of its own accord. Every core routine that ends in an
// actual switch (yield, block, a tick-driven preemption) goes through
// this release/reacquire pair.
func (s *Scheduler) releaseAndSchedule() {
	s.critical.Leave(nil)
	if s.Current != nil {
		s.Current.InCriticalSect = false
	}
	s.schedule()
	s.EnterCritical()
}

// Yield gives up the CPU voluntarily: the policy's yield hook,
// re-enqueue, schedule. Idle never enters the run structure, but its
// yield still drives schedule(): that dispatch pass is where the
// timed-wait expiry sweep runs, and with every user thread blocked
// idle's loop is the only thing left to reach it.
func (s *Scheduler) Yield() {
	s.EnterCritical()

	cur := s.Current
	if cur == nil {
		s.LeaveCritical()
		return
	}
	if cur != s.Idle {
		s.Policy.OnYield(cur)
		cur.State = Ready
		s.Policy.Enqueue(cur)
	}
	s.releaseAndSchedule()
	s.LeaveCritical()
}

// Block marks current blocked, adds it to wq, and schedules away,
// reacquiring the critical section once this thread runs again. Callers
// enter the critical section themselves before calling Block and must
// call LeaveCritical themselves afterward; Block only manages the
// release/reacquire pair around the switch itself.
func (s *Scheduler) Block(wq *WaitQueue) {
	if s.Current == nil {
		trust.Fatalf("core: Block called with nil current thread")
	}
	wq.Add(s.Current)
	s.blockSelf()
}

// blockSelf marks current blocked and schedules away without touching
// any wait queue; used directly by Join, whose wakeup path is the
// joiner back-reference rather than a WaitQueue.
func (s *Scheduler) blockSelf() {
	if s.Current == nil {
		trust.Fatalf("core: blockSelf called with nil current thread")
	}
	s.Current.State = Blocked
	s.releaseAndSchedule()
}

// Unblock marks t ready and hands it to the policy. Caller must hold
// the critical section.
func (s *Scheduler) Unblock(t *Thread) {
	t.State = Ready
	s.Policy.Enqueue(t)
}

// WakeOne removes wq's head, if any, and unblocks it.
func (s *Scheduler) WakeOne(wq *WaitQueue) *Thread {
	t := wq.RemoveHead()
	if t != nil {
		s.Unblock(t)
	}
	return t
}

// WakeAll drains wq, unblocking every waiter.
func (s *Scheduler) WakeAll(wq *WaitQueue) int {
	n := 0
	for {
		t := wq.RemoveHead()
		if t == nil {
			break
		}
		s.Unblock(t)
		n++
	}
	return n
}

// Tick is the preemption-timer entry point: invoked only when the
// critical-section depth is already zero (its only caller is
// LeaveCritical's drain of a tick the timer handler marked pending, run
// after the outermost leave), so a preempting switch here calls
// schedule() directly rather than through releaseAndSchedule.
func (s *Scheduler) Tick() {
	cur := s.Current
	if cur == nil || cur == s.Idle {
		return
	}
	now := clock.Now()
	var elapsed uint64
	if cur.StartTime != 0 && now > cur.StartTime {
		elapsed = now - cur.StartTime
	}
	s.Policy.OnTick(cur, elapsed)
	if s.preemptEnabled && s.Policy.ShouldPreempt(cur) {
		cur.State = Ready
		s.Policy.Enqueue(cur)
		s.schedule()
	}
}
