// Package goble implements ble.Adapter on top of the go-ble HCI stack. It
// talks to the controller over a raw HCI socket and therefore only works on
// Linux, usually with CAP_NET_ADMIN/CAP_NET_RAW.
package goble

import (
	"encoding/binary"
	"strconv"
	"strings"

	goble "github.com/go-ble/ble"
	"github.com/pkg/errors"

	"github.com/bit-cook/ZSWatch/internal/ble"
	"github.com/bit-cook/ZSWatch/internal/ble/advert"
)

// ErrAdapterInvalidID is returned when the adapter id is not of the form
// "hciN" (or a bare index).
var ErrAdapterInvalidID = errors.New("goble: the bluetooth adapter ID is invalid")

// deviceID converts "hci1" (or "1") to 1. An empty id selects hci0.
func deviceID(id string) (int, error) {
	if id == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(id), "hci"))
	if err != nil || n < 0 {
		return 0, errors.Wrapf(ErrAdapterInvalidID, "%q", id)
	}
	return n, nil
}

// toAdvertisement rebuilds an AD payload from go-ble's decoded report. go-ble
// does not hand out the raw PDU.
func toAdvertisement(a goble.Advertisement) ble.Advertisement {
	var services []uint16
	for _, u := range a.Services() {
		if len(u) == 2 {
			services = append(services, binary.LittleEndian.Uint16(u))
		}
	}
	fields := []advert.Field{advert.Services16(services...)}
	if name := a.LocalName(); name != "" {
		fields = append(fields, advert.CompleteName(name))
	}
	// go-ble merges scan responses into the report, so allow more than 31 bytes.
	p, err := advert.NewExtendedPacket(fields...)
	if err != nil {
		p, _ = advert.NewExtendedPacket(advert.Services16(services...))
	}

	return ble.Advertisement{
		Address:     ble.NewAddress(a.Addr().String()),
		RSSI:        int16(a.RSSI()),
		Connectable: a.Connectable(),
		Payload:     p.Bytes(),
	}
}
