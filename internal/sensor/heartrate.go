package sensor

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	"github.com/bit-cook/ZSWatch/internal/ble"
)

// Heart Rate Measurement flags.
const (
	hrFlagUint16   = 0x01
	hrFlagContact  = 0x06
	hrFlagEnergy   = 0x08
	hrFlagRRPeriod = 0x10
)

// ContactStatus is the sensor contact feature of a heart rate measurement.
type ContactStatus uint8

const (
	ContactUnsupported ContactStatus = iota
	ContactNotDetected
	ContactDetected
)

// MarshalText encodes the status by name.
func (c ContactStatus) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c ContactStatus) String() string {
	switch c {
	case ContactNotDetected:
		return "not-detected"
	case ContactDetected:
		return "detected"
	default:
		return "unsupported"
	}
}

// HeartRate is one decoded Heart Rate Measurement.
type HeartRate struct {
	BPM     uint16        `json:"bpm"`
	Contact ContactStatus `json:"contact"`
	// EnergyExpended is in kilojoules; valid when HasEnergy is set.
	EnergyExpended uint16          `json:"energy_kj,omitempty"`
	HasEnergy      bool            `json:"-"`
	RRIntervals    []time.Duration `json:"rr_intervals,omitempty"`
}

// ParseHeartRate decodes a Heart Rate Measurement characteristic value.
func ParseHeartRate(b []byte) (HeartRate, error) {
	var m HeartRate
	if len(b) < 2 {
		return m, errors.Wrapf(ErrMalformed, "heart rate: %d bytes", len(b))
	}
	flags := b[0]
	i := 1

	if flags&hrFlagUint16 != 0 {
		if len(b) < i+2 {
			return m, errors.Wrap(ErrMalformed, "heart rate: truncated uint16 value")
		}
		m.BPM = binary.LittleEndian.Uint16(b[i:])
		i += 2
	} else {
		m.BPM = uint16(b[i])
		i++
	}

	switch flags & hrFlagContact {
	case 0x04:
		m.Contact = ContactNotDetected
	case 0x06:
		m.Contact = ContactDetected
	}

	if flags&hrFlagEnergy != 0 {
		if len(b) < i+2 {
			return m, errors.Wrap(ErrMalformed, "heart rate: truncated energy expended")
		}
		m.EnergyExpended = binary.LittleEndian.Uint16(b[i:])
		m.HasEnergy = true
		i += 2
	}

	if flags&hrFlagRRPeriod != 0 {
		rest := b[i:]
		if len(rest)%2 != 0 {
			return m, errors.Wrap(ErrMalformed, "heart rate: odd RR-interval length")
		}
		for j := 0; j < len(rest); j += 2 {
			rr := binary.LittleEndian.Uint16(rest[j:])
			m.RRIntervals = append(m.RRIntervals, time.Duration(rr)*time.Second/1024)
		}
	}

	return m, nil
}

// HeartRateClient is the heart-rate monitor category client.
type HeartRateClient struct {
	binding
	opts  options
	cache cached[HeartRate]
}

// NewHeartRateClient returns a stopped client.
func NewHeartRateClient(opts ...Option) *HeartRateClient {
	o := newOptions(opts)
	return &HeartRateClient{
		binding: binding{name: "heart-rate", log: o.log, now: o.now},
		opts:    o,
	}
}

func (c *HeartRateClient) Start(ch ble.Characteristic) error {
	return c.start(ch, c.OnNotify)
}

func (c *HeartRateClient) OnNotify(data []byte, now time.Time) error {
	m, err := ParseHeartRate(data)
	if err != nil {
		return err
	}
	c.cache.store(m, now)
	return nil
}

func (c *HeartRateClient) Stop() {
	c.stop()
}

// Measurement returns the latest measurement, or ErrStale.
func (c *HeartRateClient) Measurement() (HeartRate, error) {
	return c.cache.load(c.opts.now(), c.opts.staleAfter)
}

// BPM returns the latest heart rate value, or ErrStale.
func (c *HeartRateClient) BPM() (uint16, error) {
	m, err := c.Measurement()
	if err != nil {
		return 0, err
	}
	return m.BPM, nil
}

var _ Client = (*HeartRateClient)(nil)
