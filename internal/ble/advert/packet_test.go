package advert

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestNewPacketRoundTrip(t *testing.T) {
	p, err := NewPacket(Flags(0x06), Services16(0x1816), CompleteName("Wahoo CADENCE"))
	if err != nil {
		t.Fatalf("NewPacket() error: %v", err)
	}

	want := []byte{
		0x02, 0x01, 0x06,
		0x03, 0x03, 0x16, 0x18,
		0x0e, 0x09, 'W', 'a', 'h', 'o', 'o', ' ', 'C', 'A', 'D', 'E', 'N', 'C', 'E',
	}
	if !bytes.Equal(p.Bytes(), want) {
		t.Fatalf("Bytes() = % x, want % x", p.Bytes(), want)
	}

	f, err := Parse(p.Bytes())
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if f.Name != "Wahoo CADENCE" || !f.HasService(0x1816) {
		t.Errorf("Parse() = %+v", f)
	}
}

func TestServices16Empty(t *testing.T) {
	p, err := NewPacket(Services16())
	if err != nil {
		t.Fatalf("NewPacket() error: %v", err)
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
}

func TestNewPacketNotFit(t *testing.T) {
	_, err := NewPacket(CompleteName(strings.Repeat("x", 30)))
	if !errors.Is(err, ErrNotFit) {
		t.Fatalf("NewPacket() error = %v, want ErrNotFit", err)
	}

	p, err := NewExtendedPacket(CompleteName(strings.Repeat("x", 30)))
	if err != nil {
		t.Fatalf("NewExtendedPacket() error: %v", err)
	}
	if p.Len() != 32 {
		t.Errorf("Len() = %d, want 32", p.Len())
	}
}

func TestAppendLeavesPacketIntact(t *testing.T) {
	p, err := NewPacket(ShortName("HRM"))
	if err != nil {
		t.Fatalf("NewPacket() error: %v", err)
	}
	before := append([]byte(nil), p.Bytes()...)

	if err := p.Append(ManufacturerData(0x0059, make([]byte, 30))); !errors.Is(err, ErrNotFit) {
		t.Fatalf("Append() error = %v, want ErrNotFit", err)
	}
	if !bytes.Equal(p.Bytes(), before) {
		t.Errorf("Bytes() = % x, want % x", p.Bytes(), before)
	}
}
