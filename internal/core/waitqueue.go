package core

// WaitQueue is a doubly-linked FIFO of blocked threads. Wake order is
// strictly arrival order. The links live in the Thread itself, so
// membership is O(1) to sever and a thread can only ever be on one
// queue.
type WaitQueue struct {
	head, tail *Thread
	count      int
}

// NewWaitQueue returns an empty wait queue.
func NewWaitQueue() *WaitQueue { return &WaitQueue{} }

// Empty reports whether the queue has no waiters.
func (q *WaitQueue) Empty() bool { return q.count == 0 }

// Len reports the number of waiters.
func (q *WaitQueue) Len() int { return q.count }

// Add appends t at the tail. t must not belong to any other queue; Add
// does not look at or change t.State.
func (q *WaitQueue) Add(t *Thread) {
	if t.queue != queueNone {
		panic("waitqueue: thread already queued")
	}
	t.qPrev, t.qNext = nil, nil
	t.queue = queueWait
	if q.tail == nil {
		q.head, q.tail = t, t
	} else {
		q.tail.qNext = t
		t.qPrev = q.tail
		q.tail = t
	}
	q.count++
}

// RemoveHead detaches and returns the head of the queue, or nil if empty.
func (q *WaitQueue) RemoveHead() *Thread {
	t := q.head
	if t == nil {
		return nil
	}
	q.unlink(t)
	return t
}

// RemoveSpecific unlinks t regardless of its position, returning t, or
// nil if t was not a member of this queue.
func (q *WaitQueue) RemoveSpecific(t *Thread) *Thread {
	if t == nil || t.queue != queueWait {
		return nil
	}
	// Confirm membership in *this* queue, not merely "some" wait queue.
	found := false
	for c := q.head; c != nil; c = c.qNext {
		if c == t {
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	q.unlink(t)
	return t
}

func (q *WaitQueue) unlink(t *Thread) {
	if t.qPrev == nil {
		q.head = t.qNext
	} else {
		t.qPrev.qNext = t.qNext
	}
	if t.qNext == nil {
		q.tail = t.qPrev
	} else {
		t.qNext.qPrev = t.qPrev
	}
	t.qPrev, t.qNext = nil, nil
	t.queue = queueNone
	q.count--
	if q.count < 0 {
		panic("waitqueue: invariant violated, negative count")
	}
}
