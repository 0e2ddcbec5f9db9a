package sensor

import (
	"sync"
	"time"
)

// cached holds the last value and its arrival time. Last value wins.
type cached[T any] struct {
	mu    sync.Mutex
	value T
	at    time.Time
	ok    bool
}

func (c *cached[T]) store(v T, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value, c.at, c.ok = v, at, true
}

// load returns the value if it is at most staleAfter old at now.
func (c *cached[T]) load(now time.Time, staleAfter time.Duration) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ok || now.Sub(c.at) > staleAfter {
		var zero T
		return zero, ErrStale
	}
	return c.value, nil
}
