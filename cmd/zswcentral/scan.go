package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bit-cook/ZSWatch/internal/central"
)

// ScanCmd lists the peripherals of one category.
type ScanCmd struct {
	Category string        `arg:"" optional:"" default:"hr" help:"Category to scan for: hr, speed or cadence."`
	Duration time.Duration `help:"Scan duration; overrides scan.duration."`
}

func (c *ScanCmd) Run(g *Globals) error {
	category, err := central.ParseCategory(c.Category)
	if err != nil {
		return err
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

	// The discovery callback runs on a single goroutine, so n needs no lock.
	n := 0
	err = a.mgr.ScanStart(category, func(name string) {
		i := n
		n++
		if err := a.out.emit(event{Type: eventDiscovered, Category: category.String(), Index: &i, Name: name}); err != nil {
			a.log.WithError(err).Warn("writing event")
		}
	}, nil)
	if err != nil {
		return err
	}

	d := c.Duration
	if d == 0 {
		d = a.cfg.Scan.Duration
	}
	a.log.WithField("category", category).Infof("Scanning (%s). Ctrl+C to stop.", durationOrForever(d))

	var timeout <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	}

	if err := a.mgr.ScanStop(); err != nil {
		return err
	}
	list, err := a.mgr.Discovered()
	if err != nil {
		return err
	}
	if !g.JSON {
		printPeripherals(list)
	}
	return nil
}

func printPeripherals(list []central.Peripheral) {
	if len(list) == 0 {
		fmt.Fprintln(os.Stderr, "No peripherals found.")
		return
	}
	fmt.Printf("%-5s %-30s %-20s %s\n", "INDEX", "NAME", "ADDRESS", "RSSI")
	for i, p := range list {
		fmt.Printf("%-5d %-30s %-20s %d\n", i, p.DisplayName(), p.Address, p.RSSI)
	}
}
