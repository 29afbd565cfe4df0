package quanta

import (
	"quanta/internal/core"
	"quanta/internal/status"
)

// Thread is an opaque handle to a user thread. The zero value is
// invalid; handles come from Create and Self.
type Thread struct {
	t *core.Thread
}

// Create starts a new user thread running entry(arg). attr may be nil
// for defaults (64 KiB stack, priority 16, nice 0, joinable). The
// thread is runnable immediately; whether it runs before Create returns
// depends on the policy and preemption.
func Create(entry func(arg any) any, arg any, attr *Attr) (*Thread, error) {
	if sched == nil {
		return nil, status.New(status.InvalidArgument, "runtime not initialized")
	}
	if entry == nil {
		return nil, status.New(status.InvalidArgument, "nil entry function")
	}
	p := core.DefaultParams()
	if attr != nil {
		if !attr.initialized {
			return nil, status.New(status.InvalidArgument, "attr not initialized")
		}
		p = attr.params
	}
	t, err := sched.Create(entry, arg, p)
	if err != nil {
		return nil, err
	}
	return &Thread{t: t}, nil
}

// Join blocks until h exits and returns its return value, destroying
// the thread. Errors: deadlock-would-occur on self-join, invalid on a
// nil/detached handle or one that already has a different joiner.
func Join(h *Thread) (any, error) {
	if sched == nil || h == nil || h.t == nil {
		return nil, status.New(status.InvalidArgument, "nil thread handle")
	}
	return sched.Join(h.t)
}

// Detach marks h detached so its resources are reclaimed at exit with
// no join rendezvous. Fails if already detached or a joiner is waiting.
func Detach(h *Thread) error {
	if sched == nil || h == nil || h.t == nil {
		return status.New(status.InvalidArgument, "nil thread handle")
	}
	return sched.Detach(h.t)
}

// Yield gives up the CPU to the next runnable thread, if any.
func Yield() {
	if sched == nil {
		return
	}
	sched.Yield()
}

// Exit terminates the calling thread with the given return value. It
// never returns. A joinable thread's retval is held until a Join
// harvests it; a detached thread's is discarded.
func Exit(retval any) {
	if sched == nil {
		panic("quanta: Exit before Init")
	}
	sched.Exit(retval)
}

// Self returns a handle to the calling thread.
func Self() *Thread {
	if sched == nil || sched.Current == nil {
		return nil
	}
	return &Thread{t: sched.Current}
}

// Equal reports whether two handles name the same thread.
func Equal(a, b *Thread) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.t == b.t
}

// Sleep busy-yields the calling thread for at least ms milliseconds.
func Sleep(ms int64) {
	if sched == nil {
		return
	}
	sched.Sleep(ms)
}

// TID returns h's thread id (1 for the main thread; 0 is reserved for
// idle), or 0 with an error for a nil handle.
func TID(h *Thread) (uint64, error) {
	if h == nil || h.t == nil {
		return 0, status.New(status.InvalidArgument, "nil thread handle")
	}
	return h.t.ID, nil
}

// SetName renames h; names are limited to 31 characters.
func SetName(h *Thread, name string) error {
	if sched == nil || h == nil || h.t == nil {
		return status.New(status.InvalidArgument, "nil thread handle")
	}
	return sched.SetName(h.t, name)
}

// GetName returns h's name.
func GetName(h *Thread) (string, error) {
	if h == nil || h.t == nil {
		return "", status.New(status.InvalidArgument, "nil thread handle")
	}
	return h.t.Name, nil
}
