package core

// roundRobinPolicy: a single FIFO run queue, a fixed timeslice reset on
// every enqueue, and preemption exactly when the timeslice reaches zero
// and another thread is waiting. Priority and nice are ignored
// entirely.
type roundRobinPolicy struct {
	runq *WaitQueue
	cfg  Config
}

func newRoundRobinPolicy() *roundRobinPolicy {
	return &roundRobinPolicy{runq: NewWaitQueue()}
}

func (p *roundRobinPolicy) Name() string { return "round-robin" }

func (p *roundRobinPolicy) Init(cfg Config) {
	p.cfg = cfg
	p.runq = NewWaitQueue()
}

func (p *roundRobinPolicy) Shutdown() { p.runq = NewWaitQueue() }

func (p *roundRobinPolicy) Enqueue(t *Thread) {
	t.State = Ready
	t.TimesliceRemain = p.cfg.TimesliceNS
	p.runq.Add(t)
}

func (p *roundRobinPolicy) Dequeue() *Thread {
	return p.runq.RemoveHead()
}

func (p *roundRobinPolicy) Remove(t *Thread) bool {
	return p.runq.RemoveSpecific(t) != nil
}

func (p *roundRobinPolicy) OnYield(t *Thread) {}

func (p *roundRobinPolicy) OnTick(t *Thread, elapsedNS uint64) {
	if elapsedNS >= t.TimesliceRemain {
		t.TimesliceRemain = 0
	} else {
		t.TimesliceRemain -= elapsedNS
	}
}

func (p *roundRobinPolicy) ShouldPreempt(t *Thread) bool {
	return t.TimesliceRemain == 0 && p.runq.Len() > 0
}

func (p *roundRobinPolicy) UpdatePriority(t *Thread) {}
