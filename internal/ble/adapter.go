// Package ble abstracts the host Bluetooth Low Energy stack used by the
// central manager. It exposes scanning, link creation and the minimal GATT
// client surface needed to subscribe to a sensor's measurement characteristic.
package ble

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

//go:generate mockgen -source=adapter.go -destination=blemock/adapter.go -package=blemock

var (
	// ErrServiceNotFound is returned by DiscoverCharacteristic when the peer
	// does not expose the requested primary service.
	ErrServiceNotFound = errors.New("ble: service not found")
	// ErrCharacteristicNotFound is returned by DiscoverCharacteristic when the
	// service exists but lacks the requested characteristic.
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found")
)

// Address identifies a remote device. It is a MAC address on Linux and
// Windows and a CoreBluetooth UUID on macOS. Addresses are normalized to
// lower case so they compare equal regardless of the stack's formatting.
type Address string

// NewAddress normalizes s into an Address.
func NewAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

func (a Address) String() string { return string(a) }

// Advertisement is a single advertising report delivered by the radio.
type Advertisement struct {
	Address Address
	RSSI    int16
	// Connectable is false for ADV_SCAN_IND / ADV_NONCONN_IND reports.
	Connectable bool
	// Payload holds the raw AD structures (length, type, data records).
	Payload []byte
}

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	// It returns ErrServiceNotFound or ErrCharacteristicNotFound (possibly
	// wrapped) when the peer lacks either.
	DiscoverCharacteristic(serviceUUID, charUUID UUID) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan reports every advertisement to handler until ctx is cancelled.
	// It returns nil (or ctx.Err()) on cancellation and a non-nil error when
	// the scan could not be started or aborted on its own.
	Scan(ctx context.Context, handler func(Advertisement)) error
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, addr Address) (Connection, error)
}
