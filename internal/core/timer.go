package core

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Timer is the preemption timer, driven by ITIMER_REAL/SIGALRM.
//
// Hosted approximation, stated plainly: SIGALRM delivery in a Go
// process is mediated by the runtime and a dedicated notification
// goroutine (os/signal), not a raw register-level interrupt of
// whichever OS thread is mid-execution of a raw-stack-switched user
// thread. Performing the actual context switch from that notification
// goroutine would save/restore registers on the wrong stack entirely.
// So the signal path here never calls schedule() itself: it only ever
// marks the pending-preempt flag (critical.MarkPending), the same
// deferral used when a critical section is active. The flag is served
// the next time the scheduler's own owning goroutine reaches an
// outermost LeaveCritical (see scheduler.go), which happens constantly
// in lock/wait/yield-heavy workloads. A user thread that never calls
// back into the scheduler between signals will not be preempted
// mid-loop; this is the one place true interrupt asynchrony is not
// reproducible in a hosted process.
type Timer struct {
	mu       sync.Mutex
	sched    *Scheduler
	running  bool
	interval time.Duration
	sigCh    chan os.Signal
	stopCh   chan struct{}
}

// NewTimer binds a Timer to sched. The timer is not started.
func NewTimer(sched *Scheduler) *Timer {
	return &Timer{sched: sched}
}

// Start begins firing every intervalNS nanoseconds. Calling Start while
// already running stops and restarts atomically with the new interval.
func (tm *Timer) Start(intervalNS uint64) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.running {
		tm.stopLocked()
	}

	interval := time.Duration(intervalNS)
	tm.interval = interval

	tm.sigCh = make(chan os.Signal, 4)
	tm.stopCh = make(chan struct{})
	signal.Notify(tm.sigCh, syscall.SIGALRM)

	it := unix.Itimerval{
		Interval: durationToTimeval(interval),
		Value:    durationToTimeval(interval),
	}
	if _, err := unix.Setitimer(unix.ITIMER_REAL, it); err != nil {
		signal.Stop(tm.sigCh)
		return err
	}

	tm.running = true
	go tm.loop(tm.sigCh, tm.stopCh)
	return nil
}

// Stop disables the timer. Safe to call when not running.
func (tm *Timer) Stop() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.stopLocked()
}

func (tm *Timer) stopLocked() {
	if !tm.running {
		return
	}
	var zero unix.Itimerval
	unix.Setitimer(unix.ITIMER_REAL, zero)
	signal.Stop(tm.sigCh)
	close(tm.stopCh)
	tm.running = false
}

func (tm *Timer) Running() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.running
}

func (tm *Timer) loop(sigCh chan os.Signal, stopCh chan struct{}) {
	for {
		select {
		case <-sigCh:
			tm.onFire()
		case <-stopCh:
			return
		}
	}
}

// onFire handles one timer expiry: ignore when the runtime is down or
// mid-dispatch, otherwise record intent. The direct-tick branch is
// replaced by mark-pending for the reasons given in the Timer doc
// comment above.
func (tm *Timer) onFire() {
	s := tm.sched
	if s == nil || s.Current == nil {
		return
	}
	if s.InScheduler() {
		return
	}
	s.MarkPendingPreempt()
}

func durationToTimeval(d time.Duration) unix.Timeval {
	sec := int64(d / time.Second)
	usec := int64((d % time.Second) / time.Microsecond)
	return unix.Timeval{Sec: sec, Usec: usec}
}
