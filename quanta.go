// Package quanta is a userspace M:1 threading runtime: many user
// threads multiplexed onto one OS thread through user-space context
// switching, with a signal-driven preemption timer, three pluggable
// scheduling policies (round-robin, fixed-priority, fair), and blocking
// synchronization primitives (quanta/sync).
//
// The hosting goroutine calls Init once and is thereafter thread id 1,
// the "main" user thread, running on its own host stack (id 0 is
// reserved for the idle thread). Every other
// thread created through Create runs on a raw mmap'd stack with a guard
// page at its low address. Init pins the calling goroutine to its OS
// thread for the life of the process; the Go scheduler must never
// migrate it while raw stack pointers are being swapped underneath it.
package quanta

import (
	"runtime"
	"time"

	"quanta/internal/clock"
	"quanta/internal/core"
	"quanta/internal/status"
	qsync "quanta/sync"
)

// Scheduling policy names accepted by Init.
const (
	PolicyRoundRobin = "round-robin"
	PolicyPriority   = "fixed-priority"
	PolicyFair       = "fair"
)

// Limits and defaults, mirrored from the scheduler core.
const (
	MaxThreads       = core.MaxThreads
	MinStackSize     = core.MinStackSize
	DefaultStackSize = core.DefaultStack
	MaxStackSize     = core.MaxStackSize
	MaxNameLen       = core.MaxNameLen
	MinPriority      = core.MinPriority
	MaxPriority      = core.MaxPriority
	DefaultPriority  = core.DefaultPrio
	MinNice          = core.MinNice
	MaxNice          = core.MaxNice
)

// Error sentinels for errors.Is; each operation's doc states which it
// can return.
var (
	ErrInvalidArgument    = status.ErrInvalidArgument
	ErrOutOfMemory        = status.ErrOutOfMemory
	ErrBusy               = status.ErrBusy
	ErrDeadlockWouldOccur = status.ErrDeadlockWouldOccur
	ErrPermission         = status.ErrPermission
	ErrTimedOut           = status.ErrTimedOut
	ErrTryAgain           = status.ErrTryAgain
	ErrNoSuchThread       = status.ErrNoSuchThread
)

// sched is the process-wide runtime instance. Nil until Init.
var sched *core.Scheduler

// Init brings the runtime up under the named policy (one of the Policy*
// constants; "" means round-robin) with default tunables, and starts
// the preemption timer. The calling goroutine becomes thread id 1. It
// is an error to call Init twice without an intervening Shutdown.
func Init(policy string) error {
	return InitWithConfig(policy, core.DefaultConfig())
}

// InitWithConfig is Init with explicit tunables.
func InitWithConfig(policy string, cfg core.Config) error {
	if sched != nil {
		return status.New(status.InvalidArgument, "runtime already initialized")
	}
	if cfg.TimesliceNS < 1_000_000 {
		return status.New(status.InvalidArgument, "timeslice below 1ms minimum")
	}

	s, err := core.New(policy, cfg)
	if err != nil {
		return status.New(status.InvalidArgument, err.Error())
	}

	// Pin before the first stack is mapped: a migration between Bootstrap
	// and the first switch would leave a saved stack pointer pointing
	// into a stack the new OS thread knows nothing about.
	runtime.LockOSThread()

	if err := s.Bootstrap(); err != nil {
		return err
	}
	if err := s.Timer.Start(cfg.TimesliceNS); err != nil {
		return status.New(status.InvalidArgument, err.Error())
	}

	sched = s
	qsync.Bind(s)
	return nil
}

// Shutdown stops the preemption timer and tears the runtime down. Must
// be called from the main thread after every other thread has been
// joined or detached-and-exited. The OS-thread pin is left in place;
// re-Init reuses it.
func Shutdown() error {
	if sched == nil {
		return status.New(status.InvalidArgument, "runtime not initialized")
	}
	sched.Shutdown()
	sched = nil
	qsync.Bind(nil)
	return nil
}

// IsInitialized reports whether the runtime is up.
func IsInitialized() bool { return sched != nil }

// Now returns the runtime's monotonic clock in nanoseconds. Timeouts
// throughout the API (sync.Sem.TimedWait, sync.Cond.TimedWait) are
// absolute deadlines on this clock.
func Now() uint64 { return clock.Now() }

// After returns an absolute deadline d from now, on the same clock as
// Now.
func After(d time.Duration) uint64 { return clock.Now() + uint64(d.Nanoseconds()) }

// GetPolicy returns the active policy's name, or "" before Init.
func GetPolicy() string {
	if sched == nil {
		return ""
	}
	return sched.Policy.Name()
}
