package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/bit-cook/ZSWatch/internal/sensor"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event types.
const (
	eventDiscovered = "discovered"
	eventStatus     = "status"
	eventHeartRate  = "heart_rate"
	eventSpeed      = "speed"
	eventCadence    = "cadence"
)

// event is one line of command output.
type event struct {
	Time     time.Time `json:"time"`
	Type     string    `json:"type"`
	Category string    `json:"category,omitempty"`
	Index    *int      `json:"index,omitempty"`
	Name     string    `json:"name,omitempty"`
	Status   string    `json:"status,omitempty"`

	HeartRate *sensor.HeartRate `json:"heart_rate,omitempty"`
	Speed     *sensor.Speed     `json:"speed,omitempty"`
	Cadence   *sensor.Cadence   `json:"cadence,omitempty"`
}

func (e event) text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-10s", e.Time.Format("15:04:05.000"), e.Type)
	switch e.Type {
	case eventDiscovered:
		fmt.Fprintf(&b, " [%d] %s", *e.Index, displayName(e.Name))
	case eventStatus:
		fmt.Fprintf(&b, " %s %s: %s", e.Category, displayName(e.Name), e.Status)
	case eventHeartRate:
		fmt.Fprintf(&b, " %d bpm", e.HeartRate.BPM)
		if e.HeartRate.Contact != sensor.ContactUnsupported {
			fmt.Fprintf(&b, " (contact %s)", e.HeartRate.Contact)
		}
		if len(e.HeartRate.RRIntervals) > 0 {
			fmt.Fprintf(&b, " rr=%v", e.HeartRate.RRIntervals)
		}
	case eventSpeed:
		fmt.Fprintf(&b, " %.1f km/h (%d revs)", e.Speed.KMH, e.Speed.WheelRevolutions)
	case eventCadence:
		fmt.Fprintf(&b, " %.0f rpm (%d revs)", e.Cadence.RPM, e.Cadence.CrankRevolutions)
	}
	return b.String()
}

func displayName(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}

// printer writes events to the terminal and, optionally, appends them to a
// JSON lines journal.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	asJSON  bool
	journal io.WriteCloser
}

func newPrinter(out io.Writer, asJSON bool, journalPath string) (*printer, error) {
	p := &printer{out: out, asJSON: asJSON}
	if journalPath == "" {
		return p, nil
	}

	if err := os.MkdirAll(filepath.Dir(journalPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating events dir")
	}
	f, err := os.OpenFile(journalPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "opening events file")
	}
	p.journal = f
	return p, nil
}

func (p *printer) emit(e event) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	var line []byte
	if p.asJSON || p.journal != nil {
		b, err := json.Marshal(e)
		if err != nil {
			return errors.Wrap(err, "encoding event")
		}
		line = append(b, '\n')
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.asJSON {
		if _, err := p.out.Write(line); err != nil {
			return err
		}
	} else if _, err := fmt.Fprintln(p.out, e.text()); err != nil {
		return err
	}

	if p.journal != nil {
		if _, err := p.journal.Write(line); err != nil {
			return errors.Wrap(err, "writing events file")
		}
	}
	return nil
}

func (p *printer) Close() error {
	if p.journal == nil {
		return nil
	}
	return p.journal.Close()
}
