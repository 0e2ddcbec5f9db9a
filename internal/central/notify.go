package central

import "sync"

// dispatcher runs application callbacks in order on its own goroutine, so
// a callback may call back into the Manager.
type dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{wake: make(chan struct{}, 1)}
}

func (d *dispatcher) push(fn func()) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		q := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, fn := range q {
			fn()
		}
		if len(q) == 0 {
			if closed {
				return
			}
			<-d.wake
		}
	}
}

// close lets queued callbacks finish and stops the goroutine. It does not
// wait.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}
