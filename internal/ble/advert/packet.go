package advert

import "encoding/binary"

// Packet is an advertising payload under construction.
type Packet struct {
	b     []byte
	limit int
}

// Field is an advertising field which can be appended to a packet.
type Field func(p *Packet) error

// NewPacket returns a legacy (31 byte) advertising Packet holding fields.
func NewPacket(fields ...Field) (*Packet, error) {
	return newPacket(MaxLegacyLength, fields...)
}

// NewExtendedPacket is NewPacket without the legacy size limit. Host stacks
// that merge advertising and scan response data may report more than 31 bytes.
func NewExtendedPacket(fields ...Field) (*Packet, error) {
	return newPacket(0xff, fields...)
}

func newPacket(limit int, fields ...Field) (*Packet, error) {
	p := &Packet{b: make([]byte, 0, MaxLegacyLength), limit: limit}
	for _, f := range fields {
		if err := f(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Bytes returns the bytes of the packet.
func (p *Packet) Bytes() []byte {
	return p.b
}

// Len returns the length of the packet.
func (p *Packet) Len() int {
	return len(p.b)
}

// Append appends a field to the packet. It returns ErrNotFit if the field
// doesn't fit into the packet, and leaves the packet intact.
func (p *Packet) Append(f Field) error {
	return f(p)
}

func (p *Packet) append(typ byte, b []byte) error {
	if p.Len()+1+1+len(b) > p.limit {
		return ErrNotFit
	}
	p.b = append(p.b, byte(len(b)+1))
	p.b = append(p.b, typ)
	p.b = append(p.b, b...)
	return nil
}

// Flags is a flags field.
func Flags(f byte) Field {
	return func(p *Packet) error {
		return p.append(typeFlags, []byte{f})
	}
}

// ShortName is a shortened local name.
func ShortName(n string) Field {
	return func(p *Packet) error {
		return p.append(typeNameShort, []byte(n))
	}
}

// CompleteName is a complete local name.
func CompleteName(n string) Field {
	return func(p *Packet) error {
		return p.append(typeNameComp, []byte(n))
	}
}

// Services16 is a complete list of 16-bit service UUIDs. It appends nothing
// when uuids is empty.
func Services16(uuids ...uint16) Field {
	return func(p *Packet) error {
		if len(uuids) == 0 {
			return nil
		}
		b := make([]byte, 2*len(uuids))
		for i, u := range uuids {
			binary.LittleEndian.PutUint16(b[2*i:], u)
		}
		return p.append(typeUUID16Comp, b)
	}
}

// ManufacturerData is manufacturer specific data.
func ManufacturerData(id uint16, b []byte) Field {
	return func(p *Packet) error {
		d := append([]byte{uint8(id), uint8(id >> 8)}, b...)
		return p.append(typeMfgData, d)
	}
}

// Raw appends the bytes to the current packet.
func Raw(b []byte) Field {
	return func(p *Packet) error {
		if p.Len()+len(b) > p.limit {
			return ErrNotFit
		}
		p.b = append(p.b, b...)
		return nil
	}
}
