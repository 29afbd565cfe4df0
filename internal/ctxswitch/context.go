// Package ctxswitch is the context primitive: capture of the live
// callee-saved register set and stack pointer into a Context, and
// resumption from a previously saved one, on amd64 (rbx, rbp, r12-r15
// plus rsp/return address per the SysV ABI).
//
// This is the one place in the module that is inherently outside
// ordinary memory safety: it manipulates the stack pointer and
// instruction pointer directly. Every call site is the scheduler core
// (internal/core), which makes its state changes under a critical
// section, drops it immediately before the switch, and always owns both
// Contexts involved.
package ctxswitch

import (
	"reflect"
	"unsafe"
)

// Context is the saved machine state of one suspended thread: the
// callee-saved register set plus the stack pointer. The entry point for
// a freshly made context is encoded as the initial return address
// pushed onto its stack by Make, not as a separate field.
type Context struct {
	rsp  uint64
	rbx  uint64
	rbp  uint64
	r12  uint64
	r13  uint64
	r14  uint64
	r15  uint64
	init bool
}

// trampoline is implemented in asm_amd64.s. It is the address pushed as
// the "return address" of a freshly made context; on first resume control
// lands here with no entry function or argument in registers, and it
// calls goTrampoline, which runs EntryThunk (a package-level Go func var)
// to dispatch into the scheduler's per-thread wrapper.
func trampoline()

// rawSwitch is implemented in asm_amd64.s. It saves the current
// callee-saved registers and rsp into `from` (if non-nil) and restores
// them from `to`, transferring control to wherever `to` last suspended
// (or, for a freshly made context, into trampoline).
func rawSwitch(from, to *Context)

// EntryThunk is called by the assembly trampoline on the very first
// resume of a freshly made context. The scheduler installs it
// immediately before each first switch as a closure over that thread's
// body, so no argument has to survive the trampoline.
var EntryThunk func()

// Make prepares a Context so that a future Switch into it begins
// executing the trampoline on the supplied stack. stackTop must be the
// highest usable address of the stack region (stacks grow down on
// amd64), 16-byte aligned per the amd64 SysV ABI.
func Make(stackTop uintptr) *Context {
	// Reserve one word and seed it with trampoline's address: rawSwitch
	// resumes a context with a bare RET, so the top of a freshly made
	// thread's stack must look exactly like the return address a CALL
	// would have pushed.
	sp := (stackTop &^ 0xf) - 8
	*(*uintptr)(unsafe.Pointer(sp)) = entryTrampolineAddr()
	return &Context{
		rsp:  uint64(sp),
		init: true,
	}
}

// goTrampoline is called from the assembly trampoline on a thread's
// very first resume. It must never return to its caller: the caller is
// assembly that only knows to spin if it does.
//
// Because this stack was never registered with the Go runtime as a
// goroutine stack, goTrampoline and EntryThunk must not recurse deeply
// enough to trigger a stack-growth check; internal/core sizes every
// thread's stack generously and keeps the wrapper's own frame minimal
// to stay within that budget. This is a limitation of building M:1 user
// threads on a runtime with no public coroutine primitive, not a
// correctness bug in the switch itself.
func goTrampoline() {
	if EntryThunk == nil {
		panic("ctxswitch: trampoline reached with no EntryThunk installed")
	}
	EntryThunk()
	panic("ctxswitch: entry wrapper returned past exit")
}

// Switch saves the caller's live state into from (nil on the very first
// switch, which restores without saving) and resumes to. On a later
// resumption of `from`, control returns from this call at this same
// call site.
func Switch(from, to *Context) {
	rawSwitch(from, to)
}

// entryTrampolineAddr returns the assembly trampoline's address, the
// value Make seeds into a freshly built Context's "return address" slot.
func entryTrampolineAddr() uintptr {
	return reflect.ValueOf(trampoline).Pointer()
}
