package core

// Table is the scheduler's fixed-capacity array of live threads,
// indexed by slot, with a packed occupancy bitset so slot allocation
// never touches empty entries.
type Table struct {
	slots    [MaxThreads]*Thread
	occupied [MaxThreads / 64]uint64
	count    int
	nextID   uint64
}

// NewTable returns an empty thread table.
func NewTable() *Table {
	return &Table{nextID: 1} // id 0 is reserved for the idle thread
}

func (t *Table) bitOn(i int) bool { return t.occupied[i>>6]&(1<<uint(i&63)) != 0 }
func (t *Table) bitSet(i int)     { t.occupied[i>>6] |= 1 << uint(i&63) }
func (t *Table) bitClear(i int)   { t.occupied[i>>6] &^= 1 << uint(i&63) }

// Insert finds a free slot and installs th, assigning it a fresh
// monotone ID. Returns false if the table is full.
func (t *Table) Insert(th *Thread) bool {
	for i := 0; i < MaxThreads; i++ {
		if !t.bitOn(i) {
			t.bitSet(i)
			t.slots[i] = th
			th.ID = t.nextID
			t.nextID++
			t.count++
			return true
		}
	}
	return false
}

// Remove frees th's slot. th must have no outstanding queue
// membership.
func (t *Table) Remove(th *Thread) {
	for i := 0; i < MaxThreads; i++ {
		if t.slots[i] == th {
			t.bitClear(i)
			t.slots[i] = nil
			t.count--
			return
		}
	}
}

// Find looks up a thread by ID, returning nil if it is not (or no longer)
// present.
func (t *Table) Find(id uint64) *Thread {
	for i := 0; i < MaxThreads; i++ {
		if t.bitOn(i) && t.slots[i].ID == id {
			return t.slots[i]
		}
	}
	return nil
}

// Len reports how many threads are currently tracked.
func (t *Table) Len() int { return t.count }

// Each calls fn for every live thread in the table, in slot order. fn
// must not mutate the table.
func (t *Table) Each(fn func(*Thread)) {
	for i := 0; i < MaxThreads; i++ {
		if t.bitOn(i) {
			fn(t.slots[i])
		}
	}
}
