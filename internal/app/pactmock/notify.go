package pactmock

import (
	"sync"
	"time"
)

// consumptions signals waiters each time an interaction is consumed.
type consumptions struct {
	mu   sync.Mutex
	next chan struct{}
}

func newConsumptions() *consumptions {
	return &consumptions{next: make(chan struct{})}
}

// await returns a channel closed by the next consumption. Taking it before
// checking the registry means a consumption in between is not missed.
func (c *consumptions) await() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

func (c *consumptions) consumed() {
	c.mu.Lock()
	close(c.next)
	c.next = make(chan struct{})
	c.mu.Unlock()
}

// waitUntil checks done after every consumption and reports whether it held
// within timeout.
func (c *consumptions) waitUntil(done func() bool, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		next := c.await()
		if done() {
			return true
		}
		select {
		case <-next:
		case <-timer.C:
			return done()
		}
	}
}
