package quanta

import (
	"quanta/internal/core"
	"quanta/internal/status"
)

// DetachState selects whether a thread can be joined.
type DetachState = core.DetachState

const (
	Joinable = core.Joinable
	Detached = core.Detached
)

// Attr is a thread-creation attribute set. Use like the POSIX shape the
// operation surface mirrors: Init, some setters, pass to Create,
// Destroy. Each setter validates its argument immediately, so a bad
// value surfaces at the set call rather than at Create.
type Attr struct {
	initialized bool
	params      core.Params
}

// Init prepares a with the default attribute values. Calling Init on an
// already-initialized Attr returns invalid-argument.
func (a *Attr) Init() error {
	if a.initialized {
		return status.New(status.InvalidArgument, "attr already initialized")
	}
	a.params = core.DefaultParams()
	a.initialized = true
	return nil
}

// Destroy invalidates a. A second Destroy returns invalid-argument.
func (a *Attr) Destroy() error {
	if !a.initialized {
		return status.New(status.InvalidArgument, "attr not initialized")
	}
	a.initialized = false
	a.params = core.Params{}
	return nil
}

func (a *Attr) check() error {
	if !a.initialized {
		return status.New(status.InvalidArgument, "attr not initialized")
	}
	return nil
}

// SetStackSize sets the stack size in bytes; valid range is
// [MinStackSize, MaxStackSize].
func (a *Attr) SetStackSize(size uintptr) error {
	if err := a.check(); err != nil {
		return err
	}
	if size < core.MinStackSize || size > core.MaxStackSize {
		return status.New(status.InvalidArgument, "stack_size out of range")
	}
	a.params.StackSize = size
	return nil
}

func (a *Attr) StackSize() (uintptr, error) {
	if err := a.check(); err != nil {
		return 0, err
	}
	return a.params.StackSize, nil
}

// SetPriority sets the fixed-priority level; valid range is [0, 31],
// 31 highest. Only the fixed-priority policy consults it.
func (a *Attr) SetPriority(prio int) error {
	if err := a.check(); err != nil {
		return err
	}
	if prio < core.MinPriority || prio > core.MaxPriority {
		return status.New(status.InvalidArgument, "priority out of range")
	}
	a.params.Priority = prio
	return nil
}

func (a *Attr) Priority() (int, error) {
	if err := a.check(); err != nil {
		return 0, err
	}
	return a.params.Priority, nil
}

// SetNice sets the fair-policy nice value; valid range is [-20, +19],
// lower means a larger CPU share.
func (a *Attr) SetNice(nice int) error {
	if err := a.check(); err != nil {
		return err
	}
	if nice < core.MinNice || nice > core.MaxNice {
		return status.New(status.InvalidArgument, "nice out of range")
	}
	a.params.Nice = nice
	return nil
}

func (a *Attr) Nice() (int, error) {
	if err := a.check(); err != nil {
		return 0, err
	}
	return a.params.Nice, nil
}

// SetDetachState selects Joinable or Detached.
func (a *Attr) SetDetachState(d DetachState) error {
	if err := a.check(); err != nil {
		return err
	}
	if d != Joinable && d != Detached {
		return status.New(status.InvalidArgument, "invalid detach state")
	}
	a.params.Detach = d
	return nil
}

func (a *Attr) DetachState() (DetachState, error) {
	if err := a.check(); err != nil {
		return Joinable, err
	}
	return a.params.Detach, nil
}

// SetName sets the thread's debug name; limited to 31 characters.
func (a *Attr) SetName(name string) error {
	if err := a.check(); err != nil {
		return err
	}
	if len(name) >= core.MaxNameLen {
		return status.New(status.InvalidArgument, "name too long")
	}
	a.params.Name = name
	return nil
}

func (a *Attr) Name() (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	return a.params.Name, nil
}
