package core

import "quanta/internal/clock"

// fairPolicy: a vruntime-ordered run structure with a cached leftmost
// (lowest-vruntime) thread, CFS-style weights (tcb.go's weightTable),
// and target-latency/min-granularity timeslice sizing. The run
// structure is a plain ordered binary search tree keyed on VRuntime; at
// MaxThreads nodes the lack of rebalancing cannot produce visible
// dispatch-order differences, and the deletion code stays simple enough
// to audit.
type fairPolicy struct {
	root     *Thread
	leftmost *Thread
	n        int
	cfg      Config

	// minVRuntime is the floor used to seed newly ready threads so a
	// thread with no accumulated virtual time cannot win an unbounded
	// head start over threads that have been running.
	minVRuntime uint64
}

func newFairPolicy() *fairPolicy {
	return &fairPolicy{}
}

func (p *fairPolicy) Name() string { return "fair" }

func (p *fairPolicy) Init(cfg Config) {
	p.cfg = cfg
	p.root = nil
	p.leftmost = nil
	p.n = 0
	p.minVRuntime = 0
}

func (p *fairPolicy) Shutdown() {
	p.root = nil
	p.leftmost = nil
	p.n = 0
}

// timeslice sizes a quantum: TargetLatencyNS split evenly among
// runnable threads, floored at MinGranularityNS.
func (p *fairPolicy) timeslice() uint64 {
	n := uint64(p.n)
	if n == 0 {
		n = 1
	}
	ts := p.cfg.TargetLatencyNS / n
	if ts < p.cfg.MinGranularityNS {
		ts = p.cfg.MinGranularityNS
	}
	return ts
}

func (p *fairPolicy) Enqueue(t *Thread) {
	t.State = Ready
	if t.Weight == 0 {
		t.Weight = WeightForNice(t.Nice)
	}
	if t.VRuntime < p.minVRuntime {
		t.VRuntime = p.minVRuntime
	}
	t.treeLeft, t.treeRight, t.treeParent = nil, nil, nil
	p.insert(t)
	p.n++
	t.TimesliceRemain = p.timeslice()
}

func (p *fairPolicy) insert(t *Thread) {
	if p.root == nil {
		p.root = t
		p.leftmost = t
		return
	}
	cur := p.root
	isLeftmostPath := true
	for {
		if t.VRuntime < cur.VRuntime {
			if cur.treeLeft == nil {
				cur.treeLeft = t
				t.treeParent = cur
				if isLeftmostPath {
					p.leftmost = t
				}
				return
			}
			cur = cur.treeLeft
		} else {
			isLeftmostPath = false
			if cur.treeRight == nil {
				cur.treeRight = t
				t.treeParent = cur
				return
			}
			cur = cur.treeRight
		}
	}
}

// Dequeue removes and returns the leftmost (lowest-vruntime) thread:
// always run whoever has been served the least. The min-vruntime floor
// is advanced here, on every dispatch, to the tree's true minimum —
// max(old_min, leftmost.vruntime) — so it tracks the least-served
// runnable thread and never drifts past it.
func (p *fairPolicy) Dequeue() *Thread {
	t := p.leftmost
	if t == nil {
		return nil
	}
	if t.VRuntime > p.minVRuntime {
		p.minVRuntime = t.VRuntime
	}
	p.removeNode(t)
	return t
}

func (p *fairPolicy) Remove(t *Thread) bool {
	if !p.contains(t) {
		return false
	}
	p.removeNode(t)
	return true
}

func (p *fairPolicy) contains(t *Thread) bool {
	return t == p.root || t.treeParent != nil
}

// removeNode detaches t from the tree using standard BST deletion, then
// recomputes the leftmost cache from scratch. Recomputing is O(depth)
// and happens once per dequeue/remove.
func (p *fairPolicy) removeNode(t *Thread) {
	p.n--

	switch {
	case t.treeLeft == nil && t.treeRight == nil:
		p.replace(t, nil)
	case t.treeLeft == nil:
		p.replace(t, t.treeRight)
	case t.treeRight == nil:
		p.replace(t, t.treeLeft)
	default:
		succ := t.treeRight
		for succ.treeLeft != nil {
			succ = succ.treeLeft
		}
		if succ.treeParent != t {
			p.replace(succ, succ.treeRight)
			succ.treeRight = t.treeRight
			succ.treeRight.treeParent = succ
		}
		p.replace(t, succ)
		succ.treeLeft = t.treeLeft
		succ.treeLeft.treeParent = succ
	}

	t.treeLeft, t.treeRight, t.treeParent = nil, nil, nil

	if p.root == nil {
		p.leftmost = nil
		return
	}
	cur := p.root
	for cur.treeLeft != nil {
		cur = cur.treeLeft
	}
	p.leftmost = cur
}

// replace rewires child in place of old within old's parent, or as the
// new root if old had none.
func (p *fairPolicy) replace(old, child *Thread) {
	parent := old.treeParent
	if parent == nil {
		p.root = child
	} else if parent.treeLeft == old {
		parent.treeLeft = child
	} else {
		parent.treeRight = child
	}
	if child != nil {
		child.treeParent = parent
	}
}

// OnYield charges the yielding thread for the CPU time it consumed
// since it was dispatched, scaled by weight exactly as OnTick does.
// Without this a cooperatively-yielding thread would never accrue
// vruntime between timer ticks and the tree order would collapse to
// arrival order.
func (p *fairPolicy) OnYield(t *Thread) {
	const nice0Weight = 1024
	if t.StartTime == 0 {
		return
	}
	now := clock.Now()
	if now <= t.StartTime {
		return
	}
	if t.Weight == 0 {
		t.Weight = WeightForNice(t.Nice)
	}
	t.VRuntime += (now - t.StartTime) * nice0Weight / t.Weight
}

// OnTick advances t's vruntime by the elapsed wall time scaled by the
// nice-0 weight over t's own: heavier threads accrue virtual time
// slower and therefore keep the CPU longer.
func (p *fairPolicy) OnTick(t *Thread, elapsedNS uint64) {
	const nice0Weight = 1024
	if t.Weight == 0 {
		t.Weight = WeightForNice(t.Nice)
	}
	delta := elapsedNS * nice0Weight / t.Weight
	t.VRuntime += delta
	if elapsedNS >= t.TimesliceRemain {
		t.TimesliceRemain = 0
	} else {
		t.TimesliceRemain -= elapsedNS
	}
}

// ShouldPreempt compares the running thread's vruntime against the
// leftmost waiter's: preempt once the runner has outrun the leftmost
// waiter by more than MinGranularityNS worth of vruntime, or its slice
// is exhausted.
func (p *fairPolicy) ShouldPreempt(t *Thread) bool {
	if p.leftmost == nil {
		return false
	}
	if t.TimesliceRemain == 0 {
		return true
	}
	if t.VRuntime > p.leftmost.VRuntime+p.cfg.MinGranularityNS {
		return true
	}
	return false
}

// UpdatePriority re-derives Weight from Nice and, if t is currently
// queued, re-inserts it at its new tree position (its vruntime key is
// unaffected by a nice change; only future accrual rate changes).
func (p *fairPolicy) UpdatePriority(t *Thread) {
	newWeight := WeightForNice(t.Nice)
	if newWeight == t.Weight {
		return
	}
	t.Weight = newWeight
	if p.contains(t) {
		p.removeNode(t)
		p.n++
		p.insert(t)
	}
}
