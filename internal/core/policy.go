package core

// Policy is the scheduler's pluggable dispatch surface. It has exactly
// three implementations in this package (roundRobinPolicy,
// priorityPolicy, fairPolicy), selected by name at Init time; nothing
// outside this package may implement it.
type Policy interface {
	Name() string

	// Init resets any policy-local state (run queues, trees, bitmaps).
	Init(cfg Config)

	// Shutdown releases policy-local state.
	Shutdown()

	// Enqueue marks t ready and inserts it into the policy's run
	// structure. t.State must already be Ready.
	Enqueue(t *Thread)

	// Dequeue removes and returns the next thread to run, or nil if the
	// policy has nothing runnable.
	Dequeue() *Thread

	// Remove extracts a specific thread from the run structure (used by
	// exit, to retract a thread that is being torn down). Returns false
	// if t was not queued under this policy.
	Remove(t *Thread) bool

	// OnYield is called when the running thread voluntarily gives up the
	// CPU, before it is re-enqueued.
	OnYield(t *Thread)

	// OnTick is called once per preemption-timer tick for the running
	// thread, with the nanoseconds elapsed since it started running.
	OnTick(t *Thread, elapsedNS uint64)

	// ShouldPreempt reports whether t (the currently running thread)
	// should be forced off the CPU right now.
	ShouldPreempt(t *Thread) bool

	// UpdatePriority is invoked after a thread's priority or nice value
	// changes, to let the policy relocate it within its run structure.
	UpdatePriority(t *Thread)
}

// Config groups the scheduler tunables so a host program can override
// them at Init time; see DefaultConfig.
type Config struct {
	// TimesliceNS is the round-robin/priority quantum. Default 10ms,
	// minimum 1ms.
	TimesliceNS uint64

	// TargetLatencyNS and MinGranularityNS parametrize the fair policy:
	// the window every runnable thread should get a turn within, and
	// the floor any single slice is allowed to shrink to.
	TargetLatencyNS  uint64
	MinGranularityNS uint64

	// PriorityLevels is carried with the other tunables but not
	// consulted: the fixed-priority policy always uses all 32 levels.
	// Default 16.
	PriorityLevels int
}

// newPolicy constructs one of the three closed Policy implementations
// by name. Unknown names report invalid-argument via the caller; core
// itself returns a plain error here.
func newPolicy(name string) (Policy, error) {
	switch name {
	case "round-robin", "":
		return newRoundRobinPolicy(), nil
	case "fixed-priority", "priority":
		return newPriorityPolicy(), nil
	case "fair":
		return newFairPolicy(), nil
	default:
		return nil, errUnknownPolicy{name}
	}
}

type errUnknownPolicy struct{ name string }

func (e errUnknownPolicy) Error() string {
	return "core: unknown scheduling policy " + e.name
}

// DefaultConfig returns the stock tunables: 10ms quantum, 20ms fair
// target latency, 1ms minimum granularity, PriorityLevels 16.
func DefaultConfig() Config {
	return Config{
		TimesliceNS:      10_000_000,
		TargetLatencyNS:  20_000_000,
		MinGranularityNS: 1_000_000,
		PriorityLevels:   16,
	}
}
