package sync

import (
	"quanta/internal/core"
	"quanta/internal/status"
)

// RWLock is a writer-preferring read-write lock: either any number of
// readers or exactly one writer, with arriving readers held back
// whenever a writer is waiting. The trade-off: no writer starvation, at
// the price of possible reader starvation under continuous writer
// arrival.
type RWLock struct {
	initialized    bool
	readers        int
	writer         bool
	writerOwner    *core.Thread
	pendingWriters int
	readWaiters    *core.WaitQueue
	writeWaiters   *core.WaitQueue
}

// NewRWLock returns an explicitly-initialized read-write lock.
func NewRWLock() *RWLock {
	return &RWLock{
		initialized:  true,
		readWaiters:  core.NewWaitQueue(),
		writeWaiters: core.NewWaitQueue(),
	}
}

func (l *RWLock) ensureInit() {
	if !l.initialized {
		l.readWaiters = core.NewWaitQueue()
		l.writeWaiters = core.NewWaitQueue()
		l.initialized = true
	}
}

// RdLock acquires shared mode, blocking while a writer holds the lock
// or any writer is waiting (writer preference).
func (l *RWLock) RdLock() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	l.ensureInit()

	for l.writer || l.pendingWriters > 0 {
		sched.Block(l.readWaiters)
	}
	l.readers++
	return nil
}

// TryRdLock is the non-blocking variant of RdLock.
func (l *RWLock) TryRdLock() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	l.ensureInit()

	if l.writer || l.pendingWriters > 0 {
		return status.ErrBusy
	}
	l.readers++
	return nil
}

// WrLock acquires exclusive mode, blocking while any reader or writer
// holds the lock. The pending-writers count is raised for the whole
// wait so arriving readers queue behind this writer.
func (l *RWLock) WrLock() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	l.ensureInit()

	l.pendingWriters++
	for l.readers > 0 || l.writer {
		sched.Block(l.writeWaiters)
	}
	l.pendingWriters--
	l.writer = true
	l.writerOwner = sched.Self()
	return nil
}

// TryWrLock is the non-blocking variant of WrLock. It never touches the
// pending-writers count: a failed try must leave no trace.
func (l *RWLock) TryWrLock() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	l.ensureInit()

	if l.readers > 0 || l.writer {
		return status.ErrBusy
	}
	l.writer = true
	l.writerOwner = sched.Self()
	return nil
}

// Unlock releases whichever mode the caller holds. Releasing the writer
// wakes one waiting writer if any, otherwise the whole reader queue.
// Releasing the last reader wakes one waiting writer. A caller holding
// neither mode gets permission-denied.
func (l *RWLock) Unlock() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()
	l.ensureInit()

	cur := sched.Self()
	switch {
	case l.writer:
		if l.writerOwner != cur {
			return status.ErrPermission
		}
		l.writer = false
		l.writerOwner = nil
		if !l.writeWaiters.Empty() {
			sched.WakeOne(l.writeWaiters)
		} else {
			sched.WakeAll(l.readWaiters)
		}
	case l.readers > 0:
		l.readers--
		if l.readers == 0 {
			sched.WakeOne(l.writeWaiters)
		}
	default:
		return status.ErrPermission
	}
	return nil
}

// Destroy fails with busy while the lock is held in either mode or any
// thread is still queued on it.
func (l *RWLock) Destroy() error {
	sched.EnterCritical()
	defer sched.LeaveCritical()

	if l.writer || l.readers > 0 {
		return status.ErrBusy
	}
	if (l.readWaiters != nil && !l.readWaiters.Empty()) ||
		(l.writeWaiters != nil && !l.writeWaiters.Empty()) {
		return status.ErrBusy
	}
	l.initialized = false
	l.readWaiters = nil
	l.writeWaiters = nil
	return nil
}
