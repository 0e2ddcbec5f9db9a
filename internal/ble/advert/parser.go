// Package advert decodes and builds Bluetooth LE advertising payloads
// (sequences of length/type/data AD structures).
package advert

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// https://www.bluetooth.com/specifications/assigned-numbers/ (Generic Access Profile)
const (
	typeFlags      byte = 0x01
	typeUUID16Inc  byte = 0x02
	typeUUID16Comp byte = 0x03
	typeNameShort  byte = 0x08
	typeNameComp   byte = 0x09
	typeTxPower    byte = 0x0a
	typeMfgData    byte = 0xff
)

// MaxLegacyLength is the largest legacy advertising (or scan response) payload.
const MaxLegacyLength = 31

var (
	// ErrEmptyPayload is returned for a nil or zero-length payload.
	ErrEmptyPayload = errors.New("advert: nil/empty payload")
	// ErrNotFit is returned by the builder when a field would overflow the packet.
	ErrNotFit = errors.New("advert: field does not fit into packet")
)

// Fields holds the AD structures the central manager cares about.
type Fields struct {
	Flags    byte
	HasFlags bool
	// Name is the complete local name, or the shortened one if no complete
	// name was advertised.
	Name      string
	NameShort bool
	// Services lists 16-bit service UUIDs from both the incomplete and the
	// complete list, in payload order.
	Services []uint16
	TxPower  int8
	HasTx    bool
	// Malformed counts records that were skipped because their length did
	// not fit their type (for example an odd-length UUID-16 list).
	Malformed int
}

// HasService reports whether u was advertised.
func (f Fields) HasService(u uint16) bool {
	for _, s := range f.Services {
		if s == u {
			return true
		}
	}
	return false
}

// Parse decodes payload. A zero length record ends the payload. When a
// record's length runs past the buffer it returns the fields decoded before
// the break together with the error.
func Parse(payload []byte) (Fields, error) {
	var f Fields
	if len(payload) == 0 {
		return f, ErrEmptyPayload
	}

	for i := 0; i < len(payload); {
		//length @ offset 0
		//type @ offset 1
		//data @ 2 - length
		length := int(payload[i])
		if length == 0 {
			// Early termination; the remainder is zero padding.
			return f, nil
		}
		if i+length >= len(payload) {
			return f, errors.Errorf("advert: buffer overflow: want %v, have %v, idx %v", i+length+1, len(payload), i)
		}

		typ := payload[i+1]
		data := payload[i+2 : i+1+length]
		switch typ {
		case typeFlags:
			if len(data) >= 1 {
				f.Flags = data[0]
				f.HasFlags = true
			}
		case typeUUID16Inc, typeUUID16Comp:
			if len(data) == 0 || len(data)%2 != 0 {
				f.Malformed++
				break
			}
			for j := 0; j < len(data); j += 2 {
				f.Services = append(f.Services, binary.LittleEndian.Uint16(data[j:]))
			}
		case typeNameComp:
			f.Name = validName(data)
			f.NameShort = false
		case typeNameShort:
			// A complete name always wins over a shortened one.
			if f.Name == "" {
				f.Name = validName(data)
				f.NameShort = true
			}
		case typeTxPower:
			if len(data) >= 1 {
				f.TxPower = int8(data[0])
				f.HasTx = true
			}
		}

		i += length + 1
	}

	return f, nil
}

// validName converts a raw name to a string, dropping invalid UTF-8.
func validName(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	r := make([]rune, 0, len(b))
	for len(b) > 0 {
		c, size := utf8.DecodeRune(b)
		if c != utf8.RuneError {
			r = append(r, c)
		}
		b = b[size:]
	}
	return string(r)
}
