package central

import (
	"github.com/google/uuid"

	"github.com/bit-cook/ZSWatch/internal/ble"
)

// Events consumed by the manager's loop.
type (
	// call runs fn on the loop and closes done.
	call struct {
		fn   func()
		done chan struct{}
	}

	advEvent struct {
		session uuid.UUID
		adv     ble.Advertisement
	}

	scanDoneEvent struct {
		session uuid.UUID
		err     error
	}

	connectedEvent struct {
		link *link
		conn ble.Connection
		err  error
	}

	discoveredEvent struct {
		link *link
		err  error
	}

	linkLostEvent struct {
		link *link
	}

	notifyEvent struct {
		link *link
		data []byte
	}
)

// post queues ev, blocking until the loop accepts it or the manager closes.
func (m *Manager) post(ev any) {
	select {
	case m.events <- ev:
	case <-m.quit:
	}
}

// tryPost queues ev unless the queue is full.
func (m *Manager) tryPost(ev any) bool {
	select {
	case <-m.quit:
		return false
	default:
	}
	select {
	case m.events <- ev:
		return true
	default:
		return false
	}
}

// exec runs fn on the loop and waits for it.
func (m *Manager) exec(fn func()) error {
	select {
	case <-m.running:
	default:
		return ErrNotReady
	}

	done := make(chan struct{})
	select {
	case m.events <- call{fn: fn, done: done}:
	case <-m.quit:
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-m.stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	}
}

func (m *Manager) run() {
	defer close(m.stopped)
	for {
		select {
		case ev := <-m.events:
			m.handle(ev)
		case <-m.quit:
			return
		}
	}
}

func (m *Manager) handle(ev any) {
	switch ev := ev.(type) {
	case call:
		ev.fn()
		close(ev.done)
	case advEvent:
		m.onAdvertisement(ev)
	case scanDoneEvent:
		m.onScanDone(ev)
	case connectedEvent:
		m.onConnected(ev)
	case discoveredEvent:
		m.onDiscovered(ev)
	case linkLostEvent:
		m.onLinkLost(ev)
	case notifyEvent:
		m.onNotify(ev)
	default:
		m.log.Errorf("unknown event %T", ev)
	}
}
