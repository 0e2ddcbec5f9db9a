package main

import (
	"context"
	"strconv"
	"time"

	"github.com/bit-cook/ZSWatch/internal/ble"
	"github.com/bit-cook/ZSWatch/internal/central"
)

// backoffDelay returns the reconnection delay for attempt n, capped at maxSeconds.
func backoffDelay(attempt int, maxSeconds int) time.Duration {
	max := time.Duration(maxSeconds) * time.Second
	if attempt >= 31 {
		return max
	}
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if delay > max {
		return max
	}
	return delay
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// resolveTarget picks a discovery list index for target: an empty target
// selects the first entry, a number selects that index and anything else is
// matched against the peripheral addresses.
func resolveTarget(list []central.Peripheral, target string) (int, bool) {
	if target == "" {
		return 0, len(list) > 0
	}
	if i, err := strconv.Atoi(target); err == nil {
		return i, i >= 0 && i < len(list)
	}
	addr := ble.NewAddress(target)
	for i, p := range list {
		if p.Address == addr {
			return i, true
		}
	}
	return 0, false
}
