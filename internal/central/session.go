package central

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bit-cook/ZSWatch/internal/ble"
)

// startScan opens a scan session. The radio scan waits for the previous
// one to wind down first.
func (m *Manager) startScan(category Category, onDiscovered DiscoveredFunc) {
	ctx, cancel := context.WithCancel(m.ctx)
	s := &scanSession{
		id:           uuid.New(),
		category:     category,
		onDiscovered: onDiscovered,
		cancel:       cancel,
	}
	m.session = s

	prev := m.scanDone
	done := make(chan struct{})
	m.scanDone = done

	log := m.log.WithFields(logrus.Fields{"session": s.id, "category": category})
	log.Info("scan started")

	go func() {
		defer close(done)
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				return
			}
		}
		err := m.adapter.Scan(ctx, func(adv ble.Advertisement) {
			if !m.tryPost(advEvent{session: s.id, adv: adv}) {
				log.Debug("event queue full, dropping advertisement")
			}
		})
		m.post(scanDoneEvent{session: s.id, err: err})
	}()
}

// endScan closes the scan session and drops its discovery callback.
func (m *Manager) endScan() {
	if m.session == nil {
		return
	}
	m.session.cancel()
	m.log.WithField("session", m.session.id).Info("scan stopped")
	m.session = nil
}

func (m *Manager) onAdvertisement(ev advEvent) {
	s := m.session
	if s == nil || s.id != ev.session {
		return
	}

	p, ok := classify(ev.adv, s.category)
	if !ok {
		return
	}

	log := m.log.WithFields(logrus.Fields{"address": p.Address, "name": p.Name, "rssi": p.RSSI})
	index, err := m.registry.add(p)
	switch {
	case errors.Is(err, errDuplicate):
		return
	case errors.Is(err, ErrRegistryFull):
		log.Warn("discovery list overflow, dropping peripheral")
		return
	}

	log.WithField("index", index).Debug("peripheral discovered")
	if cb := s.onDiscovered; cb != nil {
		name := p.Name
		m.dispatch.push(func() { cb(name) })
	}
}

func (m *Manager) onScanDone(ev scanDoneEvent) {
	if m.session == nil || m.session.id != ev.session {
		return
	}
	log := m.log.WithField("session", ev.session)
	if ev.err != nil {
		log.WithError(ev.err).Error("scan failed")
	} else {
		log.Info("scan ended by radio")
	}
	m.session.cancel()
	m.session = nil
}

// connect occupies category's slot with a new handle and dials p off the loop.
func (m *Manager) connect(category Category, p Peripheral) {
	m.nextLink++
	l := &link{
		id:       m.nextLink,
		category: category,
		address:  p.Address,
		name:     p.Name,
		done:     make(chan struct{}),
	}

	var ctx context.Context
	if m.connectTimeout > 0 {
		ctx, l.cancel = context.WithTimeout(m.ctx, m.connectTimeout)
	} else {
		ctx, l.cancel = context.WithCancel(m.ctx)
	}
	m.slots.occupy(category, l)
	prev := m.lastLink[category]
	m.lastLink[category] = l

	m.linkLog(l).Info("connecting")

	go func() {
		// The radio sees the previous link of this category go away
		// before it sees the new connect.
		if prev != nil {
			select {
			case <-prev.done:
			case <-ctx.Done():
				m.post(connectedEvent{link: l, err: errors.Wrap(ctx.Err(), "waiting for previous link")})
				return
			}
		}
		conn, err := m.adapter.Connect(ctx, l.address)
		if err == nil {
			conn.OnDisconnect(func() { m.post(linkLostEvent{link: l}) })
		}
		m.post(connectedEvent{link: l, conn: conn, err: err})
	}()
}

func (m *Manager) onConnected(ev connectedEvent) {
	l := ev.link
	l.dialed = true
	category, ok := m.slots.find(l)
	if !ok {
		// Superseded, disconnected or lost while connecting.
		if ev.err == nil && ev.conn != nil && !l.lost {
			m.linkLog(l).Debug("dropping link for released handle")
			m.disconnectAsync(l, ev.conn)
			return
		}
		l.finish()
		return
	}

	if ev.err != nil {
		m.linkLog(l).WithError(ev.err).Error("connect failed")
		m.slots.take(category)
		m.release(l)
		m.report(l, StatusNoDevice)
		return
	}

	l.conn = ev.conn
	m.slots[category].state = SlotConnected
	m.linkLog(l).Info("link up, discovering services")

	go m.discover(l, ev.conn)
}

// discover runs the service discovery session for l: it finds the
// category's measurement characteristic and subscribes to it. Notifications
// are routed through the loop.
func (m *Manager) discover(l *link, conn ble.Connection) {
	service, measurement := l.category.gatt()
	ch, err := conn.DiscoverCharacteristic(service, measurement)
	if err == nil {
		err = ch.Subscribe(func(data []byte) {
			m.post(notifyEvent{link: l, data: data})
		})
		err = errors.Wrap(err, "subscribe")
	}
	m.post(discoveredEvent{link: l, err: err})
}

func (m *Manager) onDiscovered(ev discoveredEvent) {
	l := ev.link
	category, ok := m.slots.find(l)
	if !ok {
		return
	}

	if ev.err != nil {
		log := m.linkLog(l).WithError(ev.err)
		if errors.Is(ev.err, ble.ErrServiceNotFound) || errors.Is(ev.err, ble.ErrCharacteristicNotFound) {
			log.Error("peripheral does not expose the expected service")
		} else {
			log.Error("service discovery failed")
		}
		m.slots.take(category)
		m.release(l)
		m.report(l, StatusNoDevice)
		return
	}

	if err := m.clients[category].Start(linkCharacteristic{l}); err != nil {
		m.linkLog(l).WithError(err).Error("category client failed to start")
		m.slots.take(category)
		m.release(l)
		m.report(l, StatusNoDevice)
		return
	}
	l.discovered = true

	m.linkLog(l).Info("connected")
	m.report(l, StatusConnected)
	m.endScan()
}

func (m *Manager) onLinkLost(ev linkLostEvent) {
	l := ev.link
	category, ok := m.slots.find(l)
	if !ok {
		return
	}

	m.linkLog(l).Warn("link lost")
	m.slots.take(category)
	m.clients[category].Stop()
	l.lost = true
	m.release(l)

	if l.discovered {
		m.report(l, StatusNotInRange)
	} else {
		m.report(l, StatusNoDevice)
	}
}

func (m *Manager) onNotify(ev notifyEvent) {
	l := ev.link
	if l.released || l.deliver == nil {
		return
	}
	l.deliver(ev.data)
}

// disconnect takes category's handle out of its slot, stops the category
// client and releases the handle. No status is reported.
func (m *Manager) disconnect(category Category) {
	l := m.slots.take(category)
	if l == nil {
		return
	}
	m.clients[category].Stop()
	m.release(l)
	m.linkLog(l).Info("disconnected")
}

// release cancels a pending connect or tears down the link. It runs once
// per handle.
func (m *Manager) release(l *link) {
	if l.released {
		return
	}
	l.released = true
	l.deliver = nil
	if l.cancel != nil {
		l.cancel()
	}
	switch {
	case l.lost:
		l.finish()
	case l.conn != nil:
		m.disconnectAsync(l, l.conn)
	case l.dialed:
		l.finish()
	}
	// A dial still in flight is finished by onConnected.
}

// disconnectAsync drops conn off the loop and finishes l once the radio
// call returns.
func (m *Manager) disconnectAsync(l *link, conn ble.Connection) {
	log := m.linkLog(l)
	go func() {
		defer l.finish()
		if err := conn.Disconnect(); err != nil {
			log.WithError(err).Debug("disconnect failed")
		}
	}()
}

func (m *Manager) report(l *link, status Status) {
	cb := m.onStatus[l.category]
	if cb == nil {
		return
	}
	name, category := l.name, l.category
	m.dispatch.push(func() { cb(name, category, status) })
}

func (m *Manager) linkLog(l *link) logrus.FieldLogger {
	return m.log.WithFields(logrus.Fields{
		"category": l.category,
		"address":  l.address,
		"link":     l.id,
	})
}

// linkCharacteristic hands a category client's notification handler to the
// link. The radio-side subscription already exists.
type linkCharacteristic struct {
	l *link
}

func (c linkCharacteristic) Subscribe(cb func([]byte)) error {
	c.l.deliver = cb
	return nil
}
