// Package sensor implements the category clients that consume GATT
// measurement notifications and expose the latest value with a bounded
// staleness.
package sensor

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bit-cook/ZSWatch/internal/ble"
)

var (
	// ErrStale is returned by getters when no measurement arrived within the
	// staleness bound, or none arrived at all.
	ErrStale = errors.New("sensor: measurement stale or unavailable")
	// ErrMalformed is returned by parsers for truncated or inconsistent data.
	ErrMalformed = errors.New("sensor: malformed measurement")
)

const (
	// DefaultStaleAfter bounds how old a cached measurement may be.
	DefaultStaleAfter = 10 * time.Second
	// DefaultWheelCircumference is a 700x25c road wheel, in millimetres.
	DefaultWheelCircumference = 2105
)

// Client is a category client bound to one measurement characteristic.
type Client interface {
	// Start subscribes to ch. Measurements arrive asynchronously.
	Start(ch ble.Characteristic) error
	// OnNotify stores the measurement in data as received at now.
	OnNotify(data []byte, now time.Time) error
	// Stop releases the characteristic. It is safe to call when never started.
	Stop()
}

type options struct {
	now           func() time.Time
	staleAfter    time.Duration
	log           logrus.FieldLogger
	circumference float64
}

// Option configures a client.
type Option func(*options)

// WithClock sets the time source used for notifications and getters.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithStaleAfter sets the staleness bound.
func WithStaleAfter(d time.Duration) Option {
	return func(o *options) { o.staleAfter = d }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// WithWheelCircumference sets the wheel circumference in millimetres used
// to derive speed.
func WithWheelCircumference(mm float64) Option {
	return func(o *options) { o.circumference = mm }
}

func newOptions(opts []Option) options {
	o := options{
		now:           time.Now,
		staleAfter:    DefaultStaleAfter,
		circumference: DefaultWheelCircumference,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.log = l
	}
	return o
}

// binding tracks the characteristic a client is subscribed to. Each Start
// opens a new generation so late notifications from a previous link are
// discarded.
type binding struct {
	name string
	log  logrus.FieldLogger
	now  func() time.Time

	mu      sync.Mutex
	gen     uint64
	running bool
	ch      ble.Characteristic
}

func (b *binding) start(ch ble.Characteristic, onNotify func([]byte, time.Time) error) error {
	if ch == nil {
		return errors.Errorf("sensor: %s: nil characteristic", b.name)
	}
	b.mu.Lock()
	b.gen++
	gen := b.gen
	b.running = true
	b.ch = ch
	b.mu.Unlock()

	err := ch.Subscribe(func(data []byte) {
		b.mu.Lock()
		live := b.running && b.gen == gen
		b.mu.Unlock()
		if !live {
			return
		}
		if err := onNotify(data, b.now()); err != nil {
			b.log.WithError(err).WithField("len", len(data)).Debug("dropping notification")
		}
	})
	if err != nil {
		b.stop()
		return errors.Wrapf(err, "sensor: %s: subscribe", b.name)
	}
	return nil
}

func (b *binding) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	b.ch = nil
}

// Running reports whether the client is bound to a characteristic.
func (b *binding) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}
