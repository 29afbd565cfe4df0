package quanta_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"quanta"
	qsync "quanta/sync"
)

// withRuntime brings the runtime up under the named policy, disables
// timer preemption so interleavings are deterministic (every test here
// drives switching cooperatively through yields and blocking calls),
// runs fn, and tears the runtime down.
func withRuntime(t *testing.T, policy string, fn func(t *testing.T)) {
	t.Helper()
	if err := quanta.Init(policy); err != nil {
		t.Fatalf("Init(%q): %v", policy, err)
	}
	quanta.DisablePreemption()
	defer func() {
		if err := quanta.Shutdown(); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	}()
	fn(t)
}

func mustCreate(t *testing.T, entry func(any) any, arg any) *quanta.Thread {
	t.Helper()
	th, err := quanta.Create(entry, arg, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return th
}

func mustJoin(t *testing.T, th *quanta.Thread) any {
	t.Helper()
	ret, err := quanta.Join(th)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	return ret
}

// Four threads, 2500 locked increments each, yielding between
// iterations.
func TestParallelCounter(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		m := qsync.NewMutex(qsync.Normal)
		counter := 0

		worker := func(any) any {
			for i := 0; i < 2500; i++ {
				m.Lock()
				counter++
				m.Unlock()
				quanta.Yield()
			}
			return nil
		}

		var threads []*quanta.Thread
		for i := 0; i < 4; i++ {
			threads = append(threads, mustCreate(t, worker, nil))
		}
		for _, th := range threads {
			mustJoin(t, th)
		}
		if counter != 10000 {
			t.Fatalf("counter = %d, want 10000", counter)
		}
	})
}

// Condvar handshake through a shared flag.
func TestCondvarHandshake(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		m := qsync.NewMutex(qsync.Normal)
		c := qsync.NewCond()
		flag := false
		counter := 0

		waiter := mustCreate(t, func(any) any {
			m.Lock()
			for !flag {
				c.Wait(m)
			}
			counter++
			m.Unlock()
			return nil
		}, nil)

		signaler := mustCreate(t, func(any) any {
			quanta.Sleep(10)
			m.Lock()
			flag = true
			c.Signal()
			m.Unlock()
			return nil
		}, nil)

		mustJoin(t, waiter)
		mustJoin(t, signaler)
		if counter != 1 {
			t.Fatalf("counter = %d, want 1", counter)
		}
	})
}

// Four waiters released by one broadcast.
func TestBroadcastStorm(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		m := qsync.NewMutex(qsync.Normal)
		c := qsync.NewCond()
		flag := false
		counter := 0

		var waiters []*quanta.Thread
		for i := 0; i < 4; i++ {
			waiters = append(waiters, mustCreate(t, func(any) any {
				m.Lock()
				for !flag {
					c.Wait(m)
				}
				counter++
				m.Unlock()
				return nil
			}, nil))
		}
		caster := mustCreate(t, func(any) any {
			quanta.Sleep(10)
			m.Lock()
			flag = true
			c.Broadcast()
			m.Unlock()
			return nil
		}, nil)

		for _, w := range waiters {
			mustJoin(t, w)
		}
		mustJoin(t, caster)
		if counter != 4 {
			t.Fatalf("counter = %d, want 4", counter)
		}
	})
}

// Semaphore producer/consumer, 10 items.
func TestSemaphoreProducerConsumer(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		sem := qsync.NewSem(0)
		consumed := 0

		consumer := mustCreate(t, func(any) any {
			for i := 0; i < 10; i++ {
				if err := sem.Wait(); err != nil {
					t.Errorf("sem wait: %v", err)
				}
				consumed++
			}
			return nil
		}, nil)
		producer := mustCreate(t, func(any) any {
			for i := 0; i < 10; i++ {
				sem.Post()
				quanta.Yield()
			}
			return nil
		}, nil)

		mustJoin(t, consumer)
		mustJoin(t, producer)
		if consumed != 10 {
			t.Fatalf("consumed = %d, want 10", consumed)
		}
		if sem.Value() != 0 {
			t.Fatalf("sem value = %d, want 0", sem.Value())
		}
	})
}

// Dining philosophers with min/max fork ordering; no
// deadlock possible, five meals each.
func TestDiningPhilosophers(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		const n = 5
		forks := make([]*qsync.Mutex, n)
		for i := range forks {
			forks[i] = qsync.NewMutex(qsync.Normal)
		}
		meals := make([]int, n)

		philosopher := func(arg any) any {
			i := arg.(int)
			first, second := i, (i+1)%n
			if second < first {
				first, second = second, first
			}
			for m := 0; m < 5; m++ {
				forks[first].Lock()
				forks[second].Lock()
				meals[i]++
				forks[second].Unlock()
				forks[first].Unlock()
				quanta.Yield()
			}
			return nil
		}

		var threads []*quanta.Thread
		for i := 0; i < n; i++ {
			threads = append(threads, mustCreate(t, philosopher, i))
		}
		for _, th := range threads {
			mustJoin(t, th)
		}
		for i, m := range meals {
			if m != 5 {
				t.Fatalf("philosopher %d ate %d meals, want 5", i, m)
			}
		}
	})
}

// Under the fixed-priority policy, queued work drains
// highest level first.
func TestPriorityOrder(t *testing.T) {
	withRuntime(t, quanta.PolicyPriority, func(t *testing.T) {
		m := qsync.NewMutex(qsync.Normal)
		var log []int

		record := func(arg any) any {
			m.Lock()
			log = append(log, arg.(int))
			m.Unlock()
			return nil
		}

		var threads []*quanta.Thread
		for _, prio := range []int{10, 20, 30} {
			var a quanta.Attr
			a.Init()
			a.SetPriority(prio)
			th, err := quanta.Create(record, prio, &a)
			if err != nil {
				t.Fatalf("Create prio %d: %v", prio, err)
			}
			a.Destroy()
			threads = append(threads, th)
		}
		for _, th := range threads {
			mustJoin(t, th)
		}
		want := []int{30, 20, 10}
		for i := range want {
			if log[i] != want[i] {
				t.Fatalf("log = %v, want %v", log, want)
			}
		}
	})
}

func TestJoinSelfDeadlock(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		_, err := quanta.Join(quanta.Self())
		if !errors.Is(err, quanta.ErrDeadlockWouldOccur) {
			t.Fatalf("join self = %v, want deadlock-would-occur", err)
		}
	})
}

func TestJoinDetachedInvalid(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		var a quanta.Attr
		a.Init()
		a.SetDetachState(quanta.Detached)
		th, err := quanta.Create(func(any) any { return nil }, nil, &a)
		a.Destroy()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := quanta.Join(th); !errors.Is(err, quanta.ErrInvalidArgument) {
			t.Fatalf("join detached = %v, want invalid-argument", err)
		}
		// Let the detached thread run to completion before shutdown.
		quanta.Sleep(1)
	})
}

func TestDetachAfterCreate(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		done := false
		th := mustCreate(t, func(any) any { done = true; return nil }, nil)
		if err := quanta.Detach(th); err != nil {
			t.Fatalf("Detach: %v", err)
		}
		if err := quanta.Detach(th); !errors.Is(err, quanta.ErrInvalidArgument) {
			t.Fatalf("double detach = %v, want invalid-argument", err)
		}
		quanta.Sleep(1)
		if !done {
			t.Fatal("detached thread never ran")
		}
	})
}

func TestDestroyHeldMutexBusy(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		m := qsync.NewMutex(qsync.Normal)
		m.Lock()
		if err := m.Destroy(); !errors.Is(err, quanta.ErrBusy) {
			t.Fatalf("destroy held mutex = %v, want busy", err)
		}
		m.Unlock()
		if err := m.Destroy(); err != nil {
			t.Fatalf("destroy unlocked mutex: %v", err)
		}
	})
}

func TestErrorcheckDoubleLock(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		m := qsync.NewMutex(qsync.ErrorCheck)
		if err := m.Lock(); err != nil {
			t.Fatal(err)
		}
		if err := m.Lock(); !errors.Is(err, quanta.ErrDeadlockWouldOccur) {
			t.Fatalf("double lock = %v, want deadlock-would-occur", err)
		}
		if err := m.Unlock(); err != nil {
			t.Fatal(err)
		}
	})
}

func TestErrorcheckUnlockByNonOwner(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		m := qsync.NewMutex(qsync.ErrorCheck)
		th := mustCreate(t, func(any) any {
			m.Lock()
			quanta.Yield()
			m.Unlock()
			return nil
		}, nil)
		quanta.Yield() // let the worker take the lock
		if err := m.Unlock(); !errors.Is(err, quanta.ErrPermission) {
			t.Fatalf("unlock by non-owner = %v, want permission", err)
		}
		mustJoin(t, th)
	})
}

func TestRecursiveMutex(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		m := qsync.NewMutex(qsync.Recursive)
		m.Lock()
		m.Lock()
		m.Unlock()
		// Still held: another thread's TryLock must fail.
		th := mustCreate(t, func(any) any {
			return m.TryLock()
		}, nil)
		if ret := mustJoin(t, th); !errors.Is(ret.(error), quanta.ErrBusy) {
			t.Fatalf("trylock on recursively held mutex = %v, want busy", ret)
		}
		m.Unlock()
	})
}

func TestSemTryWaitZero(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		sem := qsync.NewSem(0)
		if err := sem.TryWait(); !errors.Is(err, quanta.ErrTryAgain) {
			t.Fatalf("trywait on zero = %v, want try-again", err)
		}
		sem.Post()
		if err := sem.TryWait(); err != nil {
			t.Fatalf("trywait on one = %v", err)
		}
	})
}

func TestTimedWaitPastDeadline(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		sem := qsync.NewSem(0)
		start := time.Now()
		err := sem.TimedWait(quanta.Now())
		if !errors.Is(err, quanta.ErrTimedOut) {
			t.Fatalf("timedwait past deadline = %v, want timed-out", err)
		}
		if time.Since(start) > time.Second {
			t.Fatal("past-deadline timedwait did not return promptly")
		}
	})
}

func TestSemTimedWaitExpires(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		sem := qsync.NewSem(0)
		err := sem.TimedWait(quanta.After(5 * time.Millisecond))
		if !errors.Is(err, quanta.ErrTimedOut) {
			t.Fatalf("timedwait = %v, want timed-out", err)
		}
	})
}

func TestSemTimedWaitSatisfiedByPost(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		sem := qsync.NewSem(0)
		poster := mustCreate(t, func(any) any {
			sem.Post()
			return nil
		}, nil)
		if err := sem.TimedWait(quanta.After(time.Second)); err != nil {
			t.Fatalf("timedwait = %v, want success", err)
		}
		mustJoin(t, poster)
	})
}

func TestCondTimedWaitExpires(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		m := qsync.NewMutex(qsync.Normal)
		c := qsync.NewCond()
		m.Lock()
		err := c.TimedWait(m, quanta.After(5*time.Millisecond))
		if !errors.Is(err, quanta.ErrTimedOut) {
			t.Fatalf("timedwait = %v, want timed-out", err)
		}
		// The mutex is held again on the timeout path.
		if err := m.Unlock(); err != nil {
			t.Fatalf("unlock after timeout: %v", err)
		}
	})
}

func TestRWLockReadersShareWritersExclude(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		l := qsync.NewRWLock()

		if err := l.RdLock(); err != nil {
			t.Fatal(err)
		}
		if err := l.TryRdLock(); err != nil {
			t.Fatalf("second reader refused: %v", err)
		}
		if err := l.TryWrLock(); !errors.Is(err, quanta.ErrBusy) {
			t.Fatalf("trywrlock with readers = %v, want busy", err)
		}
		l.Unlock()
		l.Unlock()

		if err := l.WrLock(); err != nil {
			t.Fatal(err)
		}
		if err := l.TryRdLock(); !errors.Is(err, quanta.ErrBusy) {
			t.Fatalf("tryrdlock with writer = %v, want busy", err)
		}
		if err := l.Unlock(); err != nil {
			t.Fatal(err)
		}
		if err := l.Unlock(); !errors.Is(err, quanta.ErrPermission) {
			t.Fatalf("unlock unheld = %v, want permission", err)
		}
	})
}

func TestRWLockWriterPreference(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		l := qsync.NewRWLock()
		var order []string

		l.RdLock()

		writer := mustCreate(t, func(any) any {
			l.WrLock()
			order = append(order, "writer")
			l.Unlock()
			return nil
		}, nil)
		quanta.Yield() // writer blocks behind the reader, raising pending_writers

		lateReader := mustCreate(t, func(any) any {
			l.RdLock()
			order = append(order, "reader")
			l.Unlock()
			return nil
		}, nil)
		quanta.Yield() // late reader must queue behind the pending writer

		l.Unlock() // releases the original read hold; writer goes first
		mustJoin(t, writer)
		mustJoin(t, lateReader)

		if len(order) != 2 || order[0] != "writer" || order[1] != "reader" {
			t.Fatalf("order = %v, want [writer reader]", order)
		}
	})
}

func TestExitRetvalHarvestedByJoin(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		th := mustCreate(t, func(arg any) any {
			quanta.Exit(arg.(int) * 2)
			return nil // unreachable
		}, 21)
		if ret := mustJoin(t, th); ret.(int) != 42 {
			t.Fatalf("retval = %v, want 42", ret)
		}
	})
}

func TestSelfEqualAndTID(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		self := quanta.Self()
		if self == nil {
			t.Fatal("Self returned nil after Init")
		}
		if !quanta.Equal(self, quanta.Self()) {
			t.Fatal("Self not equal to itself")
		}
		id, err := quanta.TID(self)
		if err != nil || id != 1 {
			t.Fatalf("main TID = %d, %v, want 1", id, err)
		}

		th := mustCreate(t, func(any) any {
			return quanta.Self()
		}, nil)
		if quanta.Equal(self, th) {
			t.Fatal("distinct threads compare equal")
		}
		ret := mustJoin(t, th)
		if !quanta.Equal(ret.(*quanta.Thread), th) {
			t.Fatal("Self inside the thread does not match its handle")
		}
	})
}

func TestSetGetName(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		self := quanta.Self()
		if err := quanta.SetName(self, "driver"); err != nil {
			t.Fatal(err)
		}
		name, err := quanta.GetName(self)
		if err != nil || name != "driver" {
			t.Fatalf("name = %q, %v", name, err)
		}
		if err := quanta.SetName(self, strings.Repeat("x", 40)); !errors.Is(err, quanta.ErrInvalidArgument) {
			t.Fatalf("overlong name = %v, want invalid-argument", err)
		}
	})
}

func TestSchedulerControls(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		if got := quanta.GetPolicy(); got != "round-robin" {
			t.Fatalf("policy = %q", got)
		}
		if err := quanta.SetTimeslice(500_000); !errors.Is(err, quanta.ErrInvalidArgument) {
			t.Fatalf("sub-ms timeslice = %v, want invalid-argument", err)
		}
		if err := quanta.SetTimeslice(2_000_000); err != nil {
			t.Fatal(err)
		}
		if got := quanta.GetTimeslice(); got != 2_000_000 {
			t.Fatalf("timeslice = %d", got)
		}

		self := quanta.Self()
		if err := quanta.SetPriority(self, 31); err != nil {
			t.Fatal(err)
		}
		if p, _ := quanta.GetPriority(self); p != 31 {
			t.Fatalf("priority = %d", p)
		}
		if err := quanta.SetPriority(self, 32); !errors.Is(err, quanta.ErrInvalidArgument) {
			t.Fatalf("priority 32 = %v, want invalid-argument", err)
		}
		if err := quanta.SetNice(self, -20); err != nil {
			t.Fatal(err)
		}
		if n, _ := quanta.GetNice(self); n != -20 {
			t.Fatalf("nice = %d", n)
		}
		if err := quanta.SetNice(self, 20); !errors.Is(err, quanta.ErrInvalidArgument) {
			t.Fatalf("nice 20 = %v, want invalid-argument", err)
		}
	})
}

func TestStatsAndDump(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		th := mustCreate(t, func(any) any {
			quanta.Yield()
			return nil
		}, nil)
		mustJoin(t, th)

		st := quanta.GetStats()
		if st.Policy != "round-robin" {
			t.Fatalf("stats policy = %q", st.Policy)
		}
		if st.ContextSwitches == 0 {
			t.Fatal("no context switches recorded after a join")
		}
		if st.ThreadsCreated != 1 {
			t.Fatalf("threads created = %d, want 1", st.ThreadsCreated)
		}

		var buf bytes.Buffer
		quanta.DebugDump(&buf)
		if !strings.Contains(buf.String(), "policy=round-robin") {
			t.Fatalf("dump missing header: %q", buf.String())
		}
		if !strings.Contains(buf.String(), "main") {
			t.Fatalf("dump missing main thread: %q", buf.String())
		}

		quanta.ResetStats()
		if quanta.GetStats().ContextSwitches != 0 {
			t.Fatal("ResetStats left counters nonzero")
		}
	})
}

func TestFairPolicyEndToEnd(t *testing.T) {
	withRuntime(t, quanta.PolicyFair, func(t *testing.T) {
		counter := 0
		var threads []*quanta.Thread
		for i := 0; i < 3; i++ {
			threads = append(threads, mustCreate(t, func(any) any {
				for j := 0; j < 100; j++ {
					counter++
					quanta.Yield()
				}
				return nil
			}, nil))
		}
		for _, th := range threads {
			mustJoin(t, th)
		}
		if counter != 300 {
			t.Fatalf("counter = %d, want 300", counter)
		}
	})
}

// Stress: 100 short-lived threads created and joined in a loop.
func TestShortLivedThreadChurn(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		for i := 0; i < 100; i++ {
			th := mustCreate(t, func(arg any) any { return arg }, i)
			if ret := mustJoin(t, th); ret.(int) != i {
				t.Fatalf("iteration %d returned %v", i, ret)
			}
		}
	})
}

// Stress: 10 threads, 1000 locked increments each.
func TestMutexStress(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		m := qsync.NewMutex(qsync.Normal)
		counter := 0
		var threads []*quanta.Thread
		for i := 0; i < 10; i++ {
			threads = append(threads, mustCreate(t, func(any) any {
				for j := 0; j < 1000; j++ {
					m.Lock()
					counter++
					m.Unlock()
				}
				return nil
			}, nil))
		}
		for _, th := range threads {
			mustJoin(t, th)
		}
		if counter != 10000 {
			t.Fatalf("counter = %d, want 10000", counter)
		}
	})
}

func TestDoubleInitRejected(t *testing.T) {
	withRuntime(t, quanta.PolicyRoundRobin, func(t *testing.T) {
		if err := quanta.Init(quanta.PolicyFair); !errors.Is(err, quanta.ErrInvalidArgument) {
			t.Fatalf("second Init = %v, want invalid-argument", err)
		}
		if !quanta.IsInitialized() {
			t.Fatal("runtime lost initialization state")
		}
	})
}

func TestUnknownPolicyRejected(t *testing.T) {
	if err := quanta.Init("lottery"); !errors.Is(err, quanta.ErrInvalidArgument) {
		t.Fatalf("unknown policy = %v, want invalid-argument", err)
	}
	if quanta.IsInitialized() {
		t.Fatal("runtime came up under an unknown policy")
	}
}
