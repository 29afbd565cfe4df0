// Package status defines the runtime's error taxonomy: a single Status
// enum plus a RuntimeError wrapper compatible with errors.Is, so every
// operation can report one of a small closed set of failure kinds while
// still carrying call-site detail.
package status

import "fmt"

// Status is the result taxonomy every blocking and non-blocking operation
// in the runtime returns.
type Status int

const (
	Success Status = iota
	InvalidArgument
	OutOfMemory
	Busy
	DeadlockWouldOccur
	Permission
	TimedOut
	TryAgain
	NoSuchThread
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case InvalidArgument:
		return "invalid argument"
	case OutOfMemory:
		return "out of memory"
	case Busy:
		return "busy"
	case DeadlockWouldOccur:
		return "deadlock would occur"
	case Permission:
		return "permission denied"
	case TimedOut:
		return "timed out"
	case TryAgain:
		return "try again"
	case NoSuchThread:
		return "no such thread"
	default:
		return "unknown status"
	}
}

// RuntimeError adapts a Status to the standard error interface so
// callers can use errors.Is against the package-level sentinels below.
type RuntimeError struct {
	Status Status
	Detail string
}

func (e *RuntimeError) Error() string {
	if e.Detail == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Detail)
}

// Is makes errors.Is(err, status.ErrBusy) etc. work against any
// *RuntimeError sharing the same Status, regardless of Detail.
func (e *RuntimeError) Is(target error) bool {
	t, ok := target.(*RuntimeError)
	if !ok {
		return false
	}
	return e.Status == t.Status
}

// New constructs a RuntimeError. detail may be empty.
func New(s Status, detail string) *RuntimeError {
	return &RuntimeError{Status: s, Detail: detail}
}

// Sentinel errors for errors.Is comparisons; each carries no detail.
var (
	ErrInvalidArgument    = &RuntimeError{Status: InvalidArgument}
	ErrOutOfMemory        = &RuntimeError{Status: OutOfMemory}
	ErrBusy               = &RuntimeError{Status: Busy}
	ErrDeadlockWouldOccur = &RuntimeError{Status: DeadlockWouldOccur}
	ErrPermission         = &RuntimeError{Status: Permission}
	ErrTimedOut           = &RuntimeError{Status: TimedOut}
	ErrTryAgain           = &RuntimeError{Status: TryAgain}
	ErrNoSuchThread       = &RuntimeError{Status: NoSuchThread}
)
