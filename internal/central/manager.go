// Package central discovers BLE peripherals by category and manages one
// connection per category.
//
// All state lives on a single goroutine. Radio callbacks and API calls are
// turned into events on one channel; blocking radio work runs in helper
// goroutines that post their results back. Application callbacks run in
// order on a separate goroutine.
package central

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bit-cook/ZSWatch/internal/ble"
	"github.com/bit-cook/ZSWatch/internal/sensor"
)

const eventQueueSize = 64

// DiscoveredFunc is called with the name of each newly listed peripheral.
// The index is the number of earlier calls in the same scan session.
type DiscoveredFunc func(name string)

// StatusFunc is called when a category's connection status changes.
type StatusFunc func(name string, category Category, status Status)

type scanSession struct {
	id           uuid.UUID
	category     Category
	onDiscovered DiscoveredFunc
	cancel       context.CancelFunc
}

// Manager is the central connection manager.
type Manager struct {
	adapter ble.Adapter
	log     logrus.FieldLogger

	connectTimeout time.Duration

	events   chan any
	running  chan struct{}
	quit     chan struct{}
	stopped  chan struct{}
	dispatch *dispatcher

	lifeMu  sync.Mutex
	started bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc

	// Owned by the loop.
	ready    bool
	registry *registry
	slots    slotTable
	session  *scanSession
	scanDone <-chan struct{}
	onStatus [NumCategories]StatusFunc
	nextLink uint64
	// lastLink is the newest handle per category; the next connect waits
	// for it to drop its radio link.
	lastLink [NumCategories]*link

	heartRate *sensor.HeartRateClient
	speed     *sensor.SpeedClient
	cadence   *sensor.CadenceClient
	clients   [NumCategories]sensor.Client
}

type options struct {
	log            logrus.FieldLogger
	now            func() time.Time
	capacity       int
	staleAfter     time.Duration
	connectTimeout time.Duration
	circumference  float64
}

// Option configures a Manager.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// WithClock sets the time source for measurement timestamps and staleness.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRegistryCapacity bounds how many peripherals one scan session lists.
func WithRegistryCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithStaleAfter sets how long a measurement stays valid.
func WithStaleAfter(d time.Duration) Option {
	return func(o *options) { o.staleAfter = d }
}

// WithConnectTimeout bounds each connect attempt. Zero leaves it to the
// radio stack.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

// WithWheelCircumference sets the wheel circumference in millimetres.
func WithWheelCircumference(mm float64) Option {
	return func(o *options) { o.circumference = mm }
}

// New returns a Manager for adapter. Call Start before use.
func New(adapter ble.Adapter, opts ...Option) *Manager {
	o := options{
		now:           time.Now,
		capacity:      DefaultRegistryCapacity,
		staleAfter:    sensor.DefaultStaleAfter,
		circumference: sensor.DefaultWheelCircumference,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.log = l
	}
	log := o.log.WithField("component", "central")

	sensorOpts := []sensor.Option{
		sensor.WithClock(o.now),
		sensor.WithStaleAfter(o.staleAfter),
		sensor.WithWheelCircumference(o.circumference),
		sensor.WithLogger(o.log.WithField("component", "sensor")),
	}

	m := &Manager{
		adapter:        adapter,
		log:            log,
		connectTimeout: o.connectTimeout,
		events:         make(chan any, eventQueueSize),
		running:        make(chan struct{}),
		quit:           make(chan struct{}),
		stopped:        make(chan struct{}),
		dispatch:       newDispatcher(),
		registry:       newRegistry(o.capacity),
		heartRate:      sensor.NewHeartRateClient(sensorOpts...),
		speed:          sensor.NewSpeedClient(sensorOpts...),
		cadence:        sensor.NewCadenceClient(sensorOpts...),
	}
	m.clients = [NumCategories]sensor.Client{
		HeartRateMonitor:     m.heartRate,
		CyclingSpeedSensor:   m.speed,
		CyclingCadenceSensor: m.cadence,
	}
	return m
}

// Start runs the event loop and enables the radio. ctx bounds every scan
// and connect the manager issues. If enabling fails the manager stays not
// ready and Start may be retried.
func (m *Manager) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	if m.closed {
		m.lifeMu.Unlock()
		return ErrClosed
	}
	if !m.started {
		m.started = true
		m.ctx, m.cancel = context.WithCancel(ctx)
		go m.dispatch.run()
		go m.run()
		close(m.running)
	}
	m.lifeMu.Unlock()

	if err := m.adapter.Enable(); err != nil {
		return errors.Wrap(err, "central: enable radio")
	}
	if err := m.exec(func() { m.ready = true }); err != nil {
		return err
	}
	m.log.Info("radio ready")
	return nil
}

// Close disconnects every category, stops scanning and stops the loop.
// Pending callbacks still run.
func (m *Manager) Close() error {
	m.lifeMu.Lock()
	if m.closed {
		m.lifeMu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	m.lifeMu.Unlock()

	if !started {
		return nil
	}

	err := m.exec(func() {
		m.endScan()
		for _, c := range Categories {
			m.disconnect(c)
		}
		m.ready = false
	})
	close(m.quit)
	<-m.stopped
	m.cancel()
	m.dispatch.close()
	return err
}

// ScanStart begins a scan session for category. It clears the discovery
// list and disconnects the category's current peripheral. onDiscovered
// fires for each newly listed peripheral until ScanStop or a successful
// connect; onStatus reports the category's connection status and outlives
// the session.
//
// The radio scan starts asynchronously. If the radio refuses to scan, the
// failure is logged, the session ends and ScanStart has already returned
// nil; no discovery callback fires for it.
func (m *Manager) ScanStart(category Category, onDiscovered DiscoveredFunc, onStatus StatusFunc) error {
	if !category.valid() {
		return ErrInvalidCategory
	}

	var err error
	execErr := m.exec(func() {
		if !m.ready {
			err = ErrNotReady
			return
		}
		m.disconnect(category)
		m.endScan()
		m.registry.reset()
		m.onStatus[category] = onStatus
		m.startScan(category, onDiscovered)
	})
	if execErr != nil {
		return execErr
	}
	return err
}

// ScanStop ends the scan session. An in-flight connect is not affected.
func (m *Manager) ScanStop() error {
	return m.exec(m.endScan)
}

// Connect connects category to the peripheral at index in the discovery
// list, disconnecting the category's current peripheral first. The outcome
// is reported through the status callback.
func (m *Manager) Connect(category Category, index int) error {
	if !category.valid() {
		return ErrInvalidCategory
	}

	var err error
	execErr := m.exec(func() {
		var p Peripheral
		p, err = m.registry.get(index)
		if err != nil {
			return
		}
		m.disconnect(category)
		m.connect(category, p)
	})
	if execErr != nil {
		return execErr
	}
	return err
}

// Disconnect releases category's peripheral. It is a no-op for an empty slot.
func (m *Manager) Disconnect(category Category) error {
	if !category.valid() {
		return ErrInvalidCategory
	}
	return m.exec(func() { m.disconnect(category) })
}

// Info returns the name of category's peripheral, or ErrNoDevice.
func (m *Manager) Info(category Category) (string, error) {
	if !category.valid() {
		return "", ErrInvalidCategory
	}

	var (
		name string
		err  error
	)
	execErr := m.exec(func() {
		s := m.slots[category]
		if s.state == SlotEmpty {
			err = ErrNoDevice
			return
		}
		name = s.link.name
	})
	if execErr != nil {
		return "", execErr
	}
	return name, err
}

// State returns the slot state of category.
func (m *Manager) State(category Category) (SlotState, error) {
	if !category.valid() {
		return SlotEmpty, ErrInvalidCategory
	}
	var st SlotState
	err := m.exec(func() { st = m.slots[category].state })
	return st, err
}

// Discovered returns the current discovery list in index order.
func (m *Manager) Discovered() ([]Peripheral, error) {
	var out []Peripheral
	err := m.exec(func() { out = m.registry.snapshot() })
	return out, err
}

// HeartRate returns the latest heart rate, or sensor.ErrStale.
func (m *Manager) HeartRate() (uint16, error) {
	return m.heartRate.BPM()
}

// HeartRateMeasurement returns the latest full heart rate measurement.
func (m *Manager) HeartRateMeasurement() (sensor.HeartRate, error) {
	return m.heartRate.Measurement()
}

// CyclingSpeed returns the latest cycling speed, or sensor.ErrStale.
func (m *Manager) CyclingSpeed() (sensor.Speed, error) {
	return m.speed.Speed()
}

// CyclingCadence returns the latest cadence, or sensor.ErrStale.
func (m *Manager) CyclingCadence() (sensor.Cadence, error) {
	return m.cadence.Cadence()
}
