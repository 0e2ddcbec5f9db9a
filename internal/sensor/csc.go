package sensor

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bit-cook/ZSWatch/internal/ble"
)

// CSC Measurement flags.
const (
	cscFlagWheel = 0x01
	cscFlagCrank = 0x02
)

// idleSamples is how many notifications without a new revolution event
// are tolerated before the rate is reported as zero.
const idleSamples = 3

// CSCMeasurement is one decoded CSC Measurement. Event times are in
// 1/1024 s and wrap every 64 s.
type CSCMeasurement struct {
	HasWheel       bool
	WheelRevs      uint32
	WheelEventTime uint16
	HasCrank       bool
	CrankRevs      uint16
	CrankEventTime uint16
}

// ParseCSC decodes a CSC Measurement characteristic value.
func ParseCSC(b []byte) (CSCMeasurement, error) {
	var m CSCMeasurement
	if len(b) < 1 {
		return m, errors.Wrap(ErrMalformed, "csc: empty")
	}
	flags := b[0]
	i := 1

	if flags&cscFlagWheel != 0 {
		if len(b) < i+6 {
			return m, errors.Wrap(ErrMalformed, "csc: truncated wheel data")
		}
		m.HasWheel = true
		m.WheelRevs = binary.LittleEndian.Uint32(b[i:])
		m.WheelEventTime = binary.LittleEndian.Uint16(b[i+4:])
		i += 6
	}
	if flags&cscFlagCrank != 0 {
		if len(b) < i+4 {
			return m, errors.Wrap(ErrMalformed, "csc: truncated crank data")
		}
		m.HasCrank = true
		m.CrankRevs = binary.LittleEndian.Uint16(b[i:])
		m.CrankEventTime = binary.LittleEndian.Uint16(b[i+2:])
	}
	return m, nil
}

// revRate derives revolutions per minute from consecutive cumulative
// counters.
type revRate struct {
	have bool
	revs uint32
	evt  uint16
	rpm  float64
	idle int
}

func (r *revRate) reset() {
	*r = revRate{}
}

// update folds in a sample. mask is the counter width (0xffff for 16-bit
// counters). It reports false while no rate can be derived yet.
func (r *revRate) update(revs uint32, evt uint16, mask uint32) (float64, bool) {
	if !r.have {
		r.have, r.revs, r.evt = true, revs, evt
		return 0, false
	}
	dRevs := (revs - r.revs) & mask
	dt := evt - r.evt
	r.revs, r.evt = revs, evt

	if dt == 0 {
		if dRevs != 0 {
			return 0, false
		}
		r.idle++
		if r.idle >= idleSamples {
			r.rpm = 0
		}
		return r.rpm, true
	}
	r.idle = 0
	r.rpm = float64(dRevs) * 60 * 1024 / float64(dt)
	return r.rpm, true
}

// Speed is the cycling speed derived from wheel revolutions.
type Speed struct {
	KMH              float64 `json:"kmh"`
	WheelRevolutions uint32  `json:"wheel_revolutions"`
}

// SpeedClient is the cycling speed sensor category client.
type SpeedClient struct {
	binding
	opts  options
	cache cached[Speed]

	rateMu sync.Mutex
	rate   revRate
}

// NewSpeedClient returns a stopped client.
func NewSpeedClient(opts ...Option) *SpeedClient {
	o := newOptions(opts)
	return &SpeedClient{
		binding: binding{name: "cycling-speed", log: o.log, now: o.now},
		opts:    o,
	}
}

func (c *SpeedClient) Start(ch ble.Characteristic) error {
	c.rateMu.Lock()
	c.rate.reset()
	c.rateMu.Unlock()
	return c.start(ch, c.OnNotify)
}

func (c *SpeedClient) OnNotify(data []byte, now time.Time) error {
	m, err := ParseCSC(data)
	if err != nil {
		return err
	}
	if !m.HasWheel {
		return errors.Wrap(ErrMalformed, "csc: no wheel data")
	}

	c.rateMu.Lock()
	rpm, ok := c.rate.update(m.WheelRevs, m.WheelEventTime, 0xffffffff)
	c.rateMu.Unlock()
	if !ok {
		return nil
	}
	c.cache.store(Speed{
		KMH:              rpm * c.opts.circumference * 60 / 1e6,
		WheelRevolutions: m.WheelRevs,
	}, now)
	return nil
}

func (c *SpeedClient) Stop() {
	c.stop()
}

// Speed returns the latest speed, or ErrStale.
func (c *SpeedClient) Speed() (Speed, error) {
	return c.cache.load(c.opts.now(), c.opts.staleAfter)
}

// Cadence is the pedalling cadence derived from crank revolutions.
type Cadence struct {
	RPM              float64 `json:"rpm"`
	CrankRevolutions uint16  `json:"crank_revolutions"`
}

// CadenceClient is the cycling cadence sensor category client.
type CadenceClient struct {
	binding
	opts  options
	cache cached[Cadence]

	rateMu sync.Mutex
	rate   revRate
}

// NewCadenceClient returns a stopped client.
func NewCadenceClient(opts ...Option) *CadenceClient {
	o := newOptions(opts)
	return &CadenceClient{
		binding: binding{name: "cycling-cadence", log: o.log, now: o.now},
		opts:    o,
	}
}

func (c *CadenceClient) Start(ch ble.Characteristic) error {
	c.rateMu.Lock()
	c.rate.reset()
	c.rateMu.Unlock()
	return c.start(ch, c.OnNotify)
}

func (c *CadenceClient) OnNotify(data []byte, now time.Time) error {
	m, err := ParseCSC(data)
	if err != nil {
		return err
	}
	if !m.HasCrank {
		return errors.Wrap(ErrMalformed, "csc: no crank data")
	}

	c.rateMu.Lock()
	rpm, ok := c.rate.update(uint32(m.CrankRevs), m.CrankEventTime, 0xffff)
	c.rateMu.Unlock()
	if !ok {
		return nil
	}
	c.cache.store(Cadence{RPM: rpm, CrankRevolutions: m.CrankRevs}, now)
	return nil
}

func (c *CadenceClient) Stop() {
	c.stop()
}

// Cadence returns the latest cadence, or ErrStale.
func (c *CadenceClient) Cadence() (Cadence, error) {
	return c.cache.load(c.opts.now(), c.opts.staleAfter)
}

var (
	_ Client = (*SpeedClient)(nil)
	_ Client = (*CadenceClient)(nil)
)
