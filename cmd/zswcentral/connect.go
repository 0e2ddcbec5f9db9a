package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bit-cook/ZSWatch/internal/central"
	"github.com/bit-cook/ZSWatch/internal/sensor"
)

var (
	errNotFound   = errors.New("peripheral not found")
	errLinkFailed = errors.New("connection failed")
	errLinkLost   = errors.New("connection lost")
)

// ConnectCmd connects one category and prints its measurements.
type ConnectCmd struct {
	Category     string        `arg:"" help:"Category to connect: hr, speed or cadence."`
	Target       string        `arg:"" optional:"" help:"Discovery index or device address (default: first found)."`
	Reconnect    bool          `help:"Reconnect with exponential backoff when the link is lost."`
	ReconnectMax int           `default:"30" help:"Maximum reconnect delay in seconds."`
	Interval     time.Duration `default:"1s" help:"Measurement print interval."`
}

func (c *ConnectCmd) Run(g *Globals) error {
	category, err := central.ParseCategory(c.Category)
	if err != nil {
		return err
	}
	if c.Interval <= 0 {
		return errors.New("--interval must be > 0")
	}

	a, err := g.setup()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.mgr.Start(ctx); err != nil {
		return err
	}

	statusCh := make(chan central.Status, 8)
	onStatus := func(name string, cat central.Category, st central.Status) {
		if err := a.out.emit(event{Type: eventStatus, Category: cat.String(), Name: name, Status: st.String()}); err != nil {
			a.log.WithError(err).Warn("writing event")
		}
		select {
		case statusCh <- st:
		default:
		}
	}

	log := a.log.WithField("category", category)
	target := c.Target
	for attempt := 0; ; {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, c.ReconnectMax)
			log.WithFields(logrus.Fields{"attempt": attempt + 1, "delay": delay}).Info("reconnect backoff")
			if sleepCtx(ctx, delay) != nil {
				return nil
			}
		}

		p, err := c.connect(ctx, a, category, target, onStatus, statusCh)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			attempt = 0
			// Reconnect to the same device, not whichever shows up first.
			target = p.Address.String()
			log.WithField("name", p.DisplayName()).Info("Connected. Ctrl+C to quit.")
			err = c.monitor(ctx, a, category, statusCh)
			if ctx.Err() != nil {
				return nil
			}
		}

		if !c.Reconnect {
			return err
		}
		log.WithError(err).Warn("link down")
		attempt++
	}
}

// connect scans for target and connects to it, returning once the status
// callback reports the outcome.
func (c *ConnectCmd) connect(ctx context.Context, a *app, category central.Category, target string,
	onStatus central.StatusFunc, statusCh <-chan central.Status) (central.Peripheral, error) {
	var none central.Peripheral

	found := make(chan struct{}, 1)
	err := a.mgr.ScanStart(category, func(string) {
		select {
		case found <- struct{}{}:
		default:
		}
	}, onStatus)
	if err != nil {
		return none, err
	}

	var timeout <-chan time.Time
	if d := a.cfg.Scan.Duration; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}

	var (
		idx  int
		list []central.Peripheral
	)
	for {
		list, err = a.mgr.Discovered()
		if err != nil {
			return none, err
		}
		var ok bool
		if idx, ok = resolveTarget(list, target); ok {
			break
		}
		select {
		case <-ctx.Done():
			return none, ctx.Err()
		case <-timeout:
			if err := a.mgr.ScanStop(); err != nil {
				return none, err
			}
			if target == "" {
				return none, errNotFound
			}
			return none, errors.Wrap(errNotFound, target)
		case <-found:
		}
	}

	drain(statusCh)
	p := list[idx]
	if err := a.mgr.Connect(category, idx); err != nil {
		return none, err
	}

	for {
		select {
		case <-ctx.Done():
			return none, ctx.Err()
		case st := <-statusCh:
			if st == central.StatusConnected {
				return p, nil
			}
			return none, errors.Wrapf(errLinkFailed, "%s (%s)", p.DisplayName(), p.Address)
		}
	}
}

// monitor prints measurements every interval until the link drops or ctx
// is done.
func (c *ConnectCmd) monitor(ctx context.Context, a *app, category central.Category, statusCh <-chan central.Status) error {
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-statusCh:
			if st != central.StatusConnected {
				return errLinkLost
			}
		case <-ticker.C:
			ev, err := measurement(a.mgr, category)
			if errors.Is(err, sensor.ErrStale) {
				a.log.WithField("category", category).Debug("no fresh measurement")
				continue
			}
			if err != nil {
				return err
			}
			if err := a.out.emit(ev); err != nil {
				a.log.WithError(err).Warn("writing event")
			}
		}
	}
}

// measurementSource is the read side of the manager used by monitor.
type measurementSource interface {
	HeartRateMeasurement() (sensor.HeartRate, error)
	CyclingSpeed() (sensor.Speed, error)
	CyclingCadence() (sensor.Cadence, error)
}

func measurement(src measurementSource, category central.Category) (event, error) {
	ev := event{Category: category.String()}
	switch category {
	case central.HeartRateMonitor:
		m, err := src.HeartRateMeasurement()
		if err != nil {
			return ev, err
		}
		ev.Type, ev.HeartRate = eventHeartRate, &m
	case central.CyclingSpeedSensor:
		s, err := src.CyclingSpeed()
		if err != nil {
			return ev, err
		}
		ev.Type, ev.Speed = eventSpeed, &s
	case central.CyclingCadenceSensor:
		s, err := src.CyclingCadence()
		if err != nil {
			return ev, err
		}
		ev.Type, ev.Cadence = eventCadence, &s
	default:
		return ev, central.ErrInvalidCategory
	}
	return ev, nil
}

func drain(ch <-chan central.Status) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
