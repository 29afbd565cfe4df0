package core

// priorityPolicy: 32 FIFO levels plus an occupancy bitmap. Dispatch is
// strict highest-level-first; bit i of the bitmap is set exactly when
// level i's queue is non-empty, so finding the next level is a scan of
// one word. decayTicks counts ticks that leave the running thread's
// slice exhausted, as a fairness-pressure signal in the debug dump; it
// never affects which level Dequeue picks.
type priorityPolicy struct {
	levels     [PriorityLevels]*WaitQueue
	bitmap     uint32
	cfg        Config
	decayTicks uint64 // informational only
}

func newPriorityPolicy() *priorityPolicy {
	p := &priorityPolicy{}
	for i := range p.levels {
		p.levels[i] = NewWaitQueue()
	}
	return p
}

func (p *priorityPolicy) Name() string { return "fixed-priority" }

func (p *priorityPolicy) Init(cfg Config) {
	p.cfg = cfg
	p.bitmap = 0
	p.decayTicks = 0
	for i := range p.levels {
		p.levels[i] = NewWaitQueue()
	}
}

func (p *priorityPolicy) Shutdown() { p.Init(p.cfg) }

func clampLevel(pri int) int {
	if pri < MinPriority {
		return MinPriority
	}
	if pri > MaxPriority {
		return MaxPriority
	}
	return pri
}

func (p *priorityPolicy) Enqueue(t *Thread) {
	t.State = Ready
	lvl := clampLevel(t.Priority)
	t.level = lvl
	t.TimesliceRemain = p.cfg.TimesliceNS
	p.levels[lvl].Add(t)
	p.bitmap |= 1 << uint(lvl)
}

func (p *priorityPolicy) Dequeue() *Thread {
	for lvl := MaxPriority; lvl >= MinPriority; lvl-- {
		if p.bitmap&(1<<uint(lvl)) == 0 {
			continue
		}
		t := p.levels[lvl].RemoveHead()
		if p.levels[lvl].Empty() {
			p.bitmap &^= 1 << uint(lvl)
		}
		return t
	}
	return nil
}

func (p *priorityPolicy) Remove(t *Thread) bool {
	lvl := t.level
	if lvl < 0 || lvl >= PriorityLevels {
		return false
	}
	removed := p.levels[lvl].RemoveSpecific(t) != nil
	if removed && p.levels[lvl].Empty() {
		p.bitmap &^= 1 << uint(lvl)
	}
	return removed
}

func (p *priorityPolicy) OnYield(t *Thread) {}

func (p *priorityPolicy) OnTick(t *Thread, elapsedNS uint64) {
	if elapsedNS >= t.TimesliceRemain {
		t.TimesliceRemain = 0
	} else {
		t.TimesliceRemain -= elapsedNS
	}
	if t.TimesliceRemain == 0 {
		p.decayTicks++
	}
}

func (p *priorityPolicy) ShouldPreempt(t *Thread) bool {
	lvl := clampLevel(t.Priority)
	higherMask := ^uint32(0) << uint(lvl+1)
	if p.bitmap&higherMask != 0 {
		return true
	}
	if t.TimesliceRemain == 0 && !p.levels[lvl].Empty() {
		return true
	}
	return false
}

func (p *priorityPolicy) UpdatePriority(t *Thread) {
	oldLvl := t.level
	newLvl := clampLevel(t.Priority)
	if oldLvl == newLvl {
		return
	}
	if t.State == Ready && oldLvl >= 0 && oldLvl < PriorityLevels {
		if p.levels[oldLvl].RemoveSpecific(t) != nil {
			if p.levels[oldLvl].Empty() {
				p.bitmap &^= 1 << uint(oldLvl)
			}
			t.level = newLvl
			p.levels[newLvl].Add(t)
			p.bitmap |= 1 << uint(newLvl)
			return
		}
	}
	// Running (or otherwise not queued): relocation happens naturally
	// the next time it is enqueued.
	t.level = newLvl
}
