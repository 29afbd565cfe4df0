package core

import "testing"

func TestCriticalSectionNesting(t *testing.T) {
	var c criticalSection
	if c.Active() {
		t.Fatal("fresh section active")
	}
	c.Enter()
	c.Enter()
	if !c.Active() {
		t.Fatal("nested section not active")
	}
	c.Leave(nil)
	if !c.Active() {
		t.Fatal("inner leave deactivated the section")
	}
	c.Leave(nil)
	if c.Active() {
		t.Fatal("outermost leave left the section active")
	}
}

func TestCriticalSectionDrainsPendingOnOutermostLeave(t *testing.T) {
	var c criticalSection
	served := 0

	c.Enter()
	c.Enter()
	c.MarkPending()
	c.Leave(func() { served++ })
	if served != 0 {
		t.Fatal("pending served before the outermost leave")
	}
	c.Leave(func() { served++ })
	if served != 1 {
		t.Fatalf("pending served %d times, want 1", served)
	}

	// Flag is consumed: the next outermost leave serves nothing.
	c.Enter()
	c.Leave(func() { served++ })
	if served != 1 {
		t.Fatal("pending flag not consumed")
	}
}

func TestCriticalSectionUnderflowPanics(t *testing.T) {
	var c criticalSection
	defer func() {
		if recover() == nil {
			t.Fatal("underflow did not panic")
		}
	}()
	c.Leave(nil)
}
