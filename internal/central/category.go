package central

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/bit-cook/ZSWatch/internal/ble"
)

// Category is a peripheral role. Categories are dense and index the slot
// table.
type Category int

const (
	HeartRateMonitor Category = iota
	CyclingSpeedSensor
	CyclingCadenceSensor
)

// NumCategories is the number of supported categories.
const NumCategories = 3

// Categories lists every category in index order.
var Categories = [NumCategories]Category{HeartRateMonitor, CyclingSpeedSensor, CyclingCadenceSensor}

func (c Category) valid() bool {
	return c >= 0 && int(c) < NumCategories
}

func (c Category) String() string {
	switch c {
	case HeartRateMonitor:
		return "heart-rate"
	case CyclingSpeedSensor:
		return "cycling-speed"
	case CyclingCadenceSensor:
		return "cycling-cadence"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	if !c.valid() {
		return nil, errors.Wrapf(ErrInvalidCategory, "%d", int(c))
	}
	return []byte(c.String()), nil
}

// ParseCategory accepts a category name or its short alias.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heart-rate", "hr":
		return HeartRateMonitor, nil
	case "cycling-speed", "speed":
		return CyclingSpeedSensor, nil
	case "cycling-cadence", "cadence":
		return CyclingCadenceSensor, nil
	}
	return 0, errors.Wrapf(ErrInvalidCategory, "%q", s)
}

// gatt returns the service advertised by and discovered on peripherals of
// this category, and its measurement characteristic. Speed and cadence
// sensors share one service.
func (c Category) gatt() (service, measurement ble.UUID) {
	if c == HeartRateMonitor {
		return ble.HeartRateServiceUUID, ble.HeartRateMeasurementUUID
	}
	return ble.CyclingSpeedCadenceServiceUUID, ble.CyclingSpeedCadenceMeasurementUUID
}

// Status is the coarse connection status reported to the application.
type Status int

const (
	StatusNoDevice Status = iota
	// StatusNotInRange means the peripheral was connected and the link was lost.
	StatusNotInRange
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusNoDevice:
		return "no-device"
	case StatusNotInRange:
		return "not-in-range"
	case StatusConnected:
		return "connected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SlotState is the lifecycle state of a category's connection slot.
type SlotState int

const (
	SlotEmpty SlotState = iota
	SlotConnecting
	SlotConnected
)

func (s SlotState) String() string {
	switch s {
	case SlotEmpty:
		return "empty"
	case SlotConnecting:
		return "connecting"
	case SlotConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
