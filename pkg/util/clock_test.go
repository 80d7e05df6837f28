package util

import (
	"testing"
	"time"
)

func fired(ch <-chan time.Time) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestManualClockAdvanceFiresAllWaiters(t *testing.T) {
	c := NewManualClock()

	a := c.After(time.Second)
	b := c.After(time.Minute)

	if fired(a) || fired(b) {
		t.Fatalf("timers fired before Advance")
	}

	c.Advance()

	if !fired(a) {
		t.Errorf("first timer did not fire")
	}
	if !fired(b) {
		t.Errorf("second timer did not fire")
	}
}

func TestManualClockTimersFireOnce(t *testing.T) {
	c := NewManualClock()

	a := c.After(time.Second)
	c.Advance()
	if !fired(a) {
		t.Fatalf("timer did not fire")
	}

	// A later timer needs its own Advance; the old channel stays quiet.
	b := c.After(time.Second)
	if fired(a) || fired(b) {
		t.Fatalf("timer fired without a pending Advance")
	}
	c.Advance()
	if !fired(b) {
		t.Errorf("second timer did not fire after Advance")
	}
}

func TestManualClockAdvanceBeforeAfter(t *testing.T) {
	c := NewManualClock()

	c.Advance()

	if !fired(c.After(time.Second)) {
		t.Errorf("banked Advance did not fire the next timer")
	}
	if fired(c.After(time.Second)) {
		t.Errorf("one banked Advance fired two timers")
	}
}
