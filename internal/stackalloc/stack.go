// Package stackalloc provisions guarded stack regions for user threads:
// an anonymous mmap per stack with the lowest page remapped PROT_NONE,
// so overflow faults instead of silently corrupting whatever the
// allocator placed below.
package stackalloc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const pageSize = 4096

// Stack is a guarded stack region: a usable region preceded by one
// PROT_NONE guard page at the low address.
type Stack struct {
	mapping   []byte // the full mmap'd region, guard page included
	GuardBase uintptr
	Base      uintptr // first usable byte
	Size      uintptr // usable size, excluding the guard page
	Top       uintptr // highest usable address + 1, the initial stack pointer
	guarded   bool
}

// New allocates a stack of the requested usable size. If the guard-page
// protection fails, the stack is returned unguarded rather than failing
// the creation outright.
func New(size uintptr) (*Stack, error) {
	if size == 0 {
		return nil, fmt.Errorf("stackalloc: zero size")
	}
	total := int(pageSize + roundUp(size, pageSize))
	mapping, err := unix.Mmap(-1, 0, total, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("stackalloc: mmap: %w", err)
	}

	mapBase := uintptr(unsafe.Pointer(&mapping[0]))
	base := mapBase + pageSize
	s := &Stack{
		mapping:   mapping,
		GuardBase: mapBase,
		Base:      base,
		Size:      size,
		Top:       base + size,
	}

	if err := unix.Mprotect(mapping[:pageSize], unix.PROT_NONE); err != nil {
		// Fall back to a plain, unguarded allocation rather than fail the
		// thread create call outright.
		s.guarded = false
		return s, nil
	}
	s.guarded = true
	return s, nil
}

// Guarded reports whether the low guard page is actually inaccessible.
func (s *Stack) Guarded() bool { return s.guarded }

// Free releases the mapping, guard page included.
func (s *Stack) Free() error {
	return unix.Munmap(s.mapping)
}

func roundUp(n, multiple uintptr) uintptr {
	if n%multiple == 0 {
		return n
	}
	return n + (multiple - n%multiple)
}
