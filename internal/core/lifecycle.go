package core

import (
	"quanta/internal/clock"
	"quanta/internal/ctxswitch"
	"quanta/internal/stackalloc"
	"quanta/internal/status"
	"quanta/internal/trust"
)

// Params is the validated subset of thread attributes that matter at
// creation time. The root package's public Attr type converts to this
// before calling Create.
type Params struct {
	Name      string
	StackSize uintptr
	Priority  int
	Nice      int
	Detach    DetachState
}

// DefaultParams returns the creation defaults: 64 KiB stack, priority
// 16, nice 0, joinable.
func DefaultParams() Params {
	return Params{
		StackSize: DefaultStack,
		Priority:  DefaultPrio,
		Nice:      0,
		Detach:    Joinable,
	}
}

func (p Params) validate() error {
	if p.StackSize < MinStackSize || p.StackSize > MaxStackSize {
		return status.New(status.InvalidArgument, "stack_size out of range")
	}
	if p.Priority < MinPriority || p.Priority > MaxPriority {
		return status.New(status.InvalidArgument, "priority out of range")
	}
	if p.Nice < MinNice || p.Nice > MaxNice {
		return status.New(status.InvalidArgument, "nice out of range")
	}
	if p.Detach != Joinable && p.Detach != Detached {
		return status.New(status.InvalidArgument, "invalid detach state")
	}
	if len(p.Name) >= MaxNameLen {
		return status.New(status.InvalidArgument, "name too long")
	}
	return nil
}

// Bootstrap prepares the two special threads: the idle thread, which
// lives in the scheduler for its whole lifetime and is never destroyed,
// and a control block for the calling host goroutine itself, which runs
// unguarded on the host's own stack until the first switch away from
// it. Must be called exactly once, before any other Scheduler method.
func (s *Scheduler) Bootstrap() error {
	main := &Thread{
		Name:       "main",
		State:      Running,
		Ctx:        &ctxswitch.Context{},
		mainThread: true,
		Started:    true,
		Priority:   DefaultPrio,
		Weight:     WeightForNice(0),
	}
	s.Current = main
	s.main = main
	// Main occupies a real table slot and gets id 1; id 0 stays
	// reserved for idle.
	s.Table.Insert(main)

	stack, err := stackalloc.New(DefaultStack)
	if err != nil {
		return status.New(status.OutOfMemory, err.Error())
	}
	idle := &Thread{
		Name:      "idle",
		State:     Ready,
		Ctx:       ctxswitch.Make(stack.Top),
		StackBase: stack.Base,
		StackSize: stack.Size,
		GuardBase: stack.GuardBase,
		stackFree: stack.Free,
		Priority:  MinPriority,
		Nice:      MaxNice,
		Weight:    WeightForNice(MaxNice),
		Detached:  true,
	}
	idle.body = func() {
		for {
			s.Yield()
		}
	}
	s.Idle = idle
	return nil
}

// Create allocates a stack, context, and control block for a new
// thread and enqueues it ready.
func (s *Scheduler) Create(entry EntryFunc, arg any, p Params) (*Thread, error) {
	if entry == nil {
		return nil, status.New(status.InvalidArgument, "nil entry function")
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	s.EnterCritical()
	defer s.LeaveCritical()

	stack, err := stackalloc.New(p.StackSize)
	if err != nil {
		return nil, status.New(status.OutOfMemory, err.Error())
	}
	ctx := ctxswitch.Make(stack.Top)

	th := &Thread{
		Name:      p.Name,
		State:     Ready,
		Ctx:       ctx,
		StackBase: stack.Base,
		StackSize: stack.Size,
		GuardBase: stack.GuardBase,
		stackFree: stack.Free,
		Entry:     entry,
		Arg:       arg,
		Priority:  p.Priority,
		Nice:      p.Nice,
		Weight:    WeightForNice(p.Nice),
		Detached:  p.Detach == Detached,
	}
	th.body = func() {
		ret := entry(arg)
		s.Exit(ret)
	}

	if !s.Table.Insert(th) {
		stack.Free()
		return nil, status.New(status.OutOfMemory, "thread table full")
	}

	s.Policy.Enqueue(th)
	s.threadsCreated++
	return th, nil
}

// SetName renames t, subject to the same length rule as creation.
func (s *Scheduler) SetName(t *Thread, name string) error {
	if t == nil {
		return status.New(status.InvalidArgument, "nil thread handle")
	}
	if len(name) >= MaxNameLen {
		return status.New(status.InvalidArgument, "name too long")
	}
	s.EnterCritical()
	t.Name = name
	s.LeaveCritical()
	return nil
}

// SetPriority changes t's fixed priority and lets the policy relocate
// it.
func (s *Scheduler) SetPriority(t *Thread, prio int) error {
	if t == nil {
		return status.New(status.InvalidArgument, "nil thread handle")
	}
	if prio < MinPriority || prio > MaxPriority {
		return status.New(status.InvalidArgument, "priority out of range")
	}
	s.EnterCritical()
	t.Priority = prio
	s.Policy.UpdatePriority(t)
	s.LeaveCritical()
	return nil
}

// SetNice changes t's nice value; the fair policy re-derives its weight.
func (s *Scheduler) SetNice(t *Thread, nice int) error {
	if t == nil {
		return status.New(status.InvalidArgument, "nil thread handle")
	}
	if nice < MinNice || nice > MaxNice {
		return status.New(status.InvalidArgument, "nice out of range")
	}
	s.EnterCritical()
	t.Nice = nice
	s.Policy.UpdatePriority(t)
	s.LeaveCritical()
	return nil
}

// installEntryThunk wires the package-global ctxswitch.EntryThunk to a
// closure over t immediately before the first switch into it. Only one
// raw-stack switch is ever in flight at a time, so the assignment made
// here is guaranteed to be consumed by the very next trampoline
// invocation before anything else touches EntryThunk. The wrapper runs
// entry and then calls Exit, which never returns control here.
//
// Preemption is already effectively re-enabled by the time this thunk
// runs: every path that reaches an actual context switch (Yield,
// Block, Tick's preempting branch) has already dropped the critical
// section's nesting depth to zero before calling schedule(), so the
// newly-started thread begins outside any suppression window without
// an explicit LeaveCritical call here.
func installEntryThunk(s *Scheduler, t *Thread) {
	if t.body == nil {
		trust.Fatalf("core: thread %d has no installed entry body", t.ID)
	}
	body := t.body
	ctxswitch.EntryThunk = func() {
		// A fresh thread's first instructions are the other "first code
		// on a different stack" path a detached exit can hand off to.
		s.reapDeadStack()
		body()
	}
}

// Exit terminates the calling thread with retval; it never returns.
func (s *Scheduler) Exit(retval any) {
	s.EnterCritical()

	cur := s.Current
	cur.Retval = retval
	cur.Exited = true
	cur.State = Terminated
	s.Policy.Remove(cur)

	if cur.Joiner != nil {
		s.Unblock(cur.Joiner)
	}
	if cur.Detached {
		// Still executing on this stack: drop the table entry now but
		// park the stack release for whoever runs next (see
		// reapDeadStack).
		s.Table.Remove(cur)
		s.deadStackFree = cur.stackFree
		cur.stackFree = nil
	}

	s.critical.Leave(nil)
	cur.InCriticalSect = false
	s.schedule()

	trust.Fatalf("core: Exit resumed after scheduling away, unreachable")
}

// destroyThread removes t from the thread table and releases its
// stack. t must already be Terminated and off every queue.
func (s *Scheduler) destroyThread(t *Thread) {
	s.Table.Remove(t)
	if t.stackFree != nil {
		if err := t.stackFree(); err != nil {
			trust.Warnf("core: freeing stack for thread %d: %v", t.ID, err)
		}
	}
}

// Join blocks until target exits, harvests its return value, and
// destroys it. The exited check loops because a wakeup here can be
// spurious relative to the target actually having exited.
func (s *Scheduler) Join(target *Thread) (any, error) {
	if target == nil {
		return nil, status.New(status.InvalidArgument, "nil thread handle")
	}

	s.EnterCritical()
	defer s.LeaveCritical()

	cur := s.Current
	if target == cur {
		return nil, status.New(status.DeadlockWouldOccur, "thread joined itself")
	}
	if target.Detached {
		return nil, status.New(status.InvalidArgument, "thread is detached")
	}
	if target.Joiner != nil && target.Joiner != cur {
		return nil, status.New(status.InvalidArgument, "thread already has a joiner")
	}

	for !target.Exited {
		target.Joiner = cur
		cur.WaitingOn = target
		s.blockSelf()
	}
	cur.WaitingOn = nil

	retval := target.Retval
	s.destroyThread(target)
	return retval, nil
}

// Detach marks t detached; if it has already exited, it is reclaimed
// here.
func (s *Scheduler) Detach(t *Thread) error {
	if t == nil {
		return status.New(status.InvalidArgument, "nil thread handle")
	}

	s.EnterCritical()
	defer s.LeaveCritical()

	if t.Detached {
		return status.New(status.InvalidArgument, "already detached")
	}
	if t.Joiner != nil {
		return status.New(status.InvalidArgument, "thread has a joiner")
	}
	t.Detached = true
	if t.Exited {
		s.destroyThread(t)
	}
	return nil
}

// Sleep busy-yields against an absolute deadline. A deadline-ordered
// sleep queue would stop the yield churn, but at the thread counts this
// runtime targets the churn is not measurable; timed blocking waits,
// where the thread genuinely cannot poll, go through BlockTimed
// instead.
func (s *Scheduler) Sleep(ms int64) {
	deadline := clock.Deadline(ms)
	for clock.Now() < deadline {
		s.Yield()
	}
}
