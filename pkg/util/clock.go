package util

import (
	"sync"
	"time"
)

// Clock abstracts time so timeout-driven code can be tested deterministically.
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// ManualClock is a test clock: each After gets its own channel, fired by
// Advance. An Advance with no timer armed yet is credited to the next After,
// so tests need not race the code under test to the After call.
type ManualClock struct {
	mu      sync.Mutex
	waiters []chan time.Time
	credit  int
}

func NewManualClock() *ManualClock {
	return &ManualClock{}
}

func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	if c.credit > 0 {
		c.credit--
		ch <- time.Now()
	} else {
		c.waiters = append(c.waiters, ch)
	}
	c.mu.Unlock()
	return ch
}

func (c *ManualClock) Now() time.Time { return time.Now() }

// Advance fires every armed timer, or banks one credit if none is armed.
func (c *ManualClock) Advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.waiters) == 0 {
		c.credit++
		return
	}
	now := time.Now()
	for _, ch := range c.waiters {
		ch <- now
	}
	c.waiters = nil
}
