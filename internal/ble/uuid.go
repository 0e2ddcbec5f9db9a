package ble

import "fmt"

// UUID is a 16-bit Bluetooth SIG assigned number. Every service and
// characteristic the central manager uses is SIG-assigned.
type UUID uint16

// Assigned numbers used by the supported sensor categories.
const (
	HeartRateServiceUUID               UUID = 0x180D
	HeartRateMeasurementUUID           UUID = 0x2A37
	CyclingSpeedCadenceServiceUUID     UUID = 0x1816
	CyclingSpeedCadenceMeasurementUUID UUID = 0x2A5B
)

// String returns the full 128-bit form built on the Bluetooth base UUID.
func (u UUID) String() string {
	return fmt.Sprintf("0000%04x-0000-1000-8000-00805f9b34fb", uint16(u))
}
