package ble

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/bit-cook/ZSWatch/internal/ble/advert"
)

// knownServices are the 16-bit services whose presence is probed when the
// host stack does not expose the raw advertising payload (BlueZ, CoreBluetooth).
var knownServices = []UUID{HeartRateServiceUUID, CyclingSpeedCadenceServiceUUID}

// TinyGoAdapter wraps tinygo-org/bluetooth (BlueZ on Linux, CoreBluetooth on
// macOS, WinRT on Windows). On macOS, BLE device addresses are CoreBluetooth
// UUIDs, not MAC addresses.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter
	log     logrus.FieldLogger

	connections connTable
}

// connTable tracks live connections by peer address. Several categories may
// hold a link to the same peripheral, so an address maps to a list.
type connTable struct {
	mu    sync.Mutex
	conns map[Address][]*tinyGoConnection
}

func (t *connTable) add(addr Address, c *tinyGoConnection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns == nil {
		t.conns = make(map[Address][]*tinyGoConnection)
	}
	t.conns[addr] = append(t.conns[addr], c)
}

func (t *connTable) remove(addr Address, c *tinyGoConnection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.conns[addr]
	for i, x := range list {
		if x == c {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(t.conns, addr)
		return
	}
	t.conns[addr] = list
}

// drop removes every connection to addr and fires their disconnect
// callbacks.
func (t *connTable) drop(addr Address) {
	t.mu.Lock()
	list := t.conns[addr]
	delete(t.conns, addr)
	t.mu.Unlock()

	for _, c := range list {
		c.fireDisconnect()
	}
}

// NewTinyGoAdapter creates an adapter for the given host controller id
// (e.g. "hci0"). An empty id selects the default adapter.
func NewTinyGoAdapter(id string, log logrus.FieldLogger) (*TinyGoAdapter, error) {
	a, err := newHostAdapter(id)
	if err != nil {
		return nil, err
	}
	return &TinyGoAdapter{
		adapter: a,
		log:     log.WithField("component", "tinygo"),
	}, nil
}

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return errors.Wrap(err, "ble: enable adapter")
	}

	// Register the adapter-level connect/disconnect handler. tinygo/bluetooth
	// fires it with connected=false when a peripheral drops the link.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		a.connections.drop(NewAddress(device.Address.String()))
	})

	return nil
}

func (a *TinyGoAdapter) Scan(ctx context.Context, handler func(Advertisement)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if err := a.adapter.StopScan(); err != nil && !strings.Contains(err.Error(), "no scan in progress") {
				a.log.WithError(err).Warn("failed to stop scan")
			}
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		if ctx.Err() != nil {
			return
		}
		handler(Advertisement{
			Address: NewAddress(result.Address.String()),
			RSSI:    result.RSSI,
			// tinygo does not expose the advertising PDU type.
			Connectable: true,
			Payload:     scanPayload(result),
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "ble: scan")
	}
	return nil
}

// scanPayload returns the raw advertising payload when the stack provides
// it, otherwise an equivalent payload rebuilt from the parsed fields.
func scanPayload(result bluetooth.ScanResult) []byte {
	if raw := result.Bytes(); len(raw) > 0 {
		return raw
	}

	var services []uint16
	for _, u := range knownServices {
		if result.HasServiceUUID(bluetooth.New16BitUUID(uint16(u))) {
			services = append(services, uint16(u))
		}
	}
	fields := []advert.Field{advert.Services16(services...)}
	if name := result.LocalName(); name != "" {
		fields = append(fields, advert.CompleteName(name))
	}
	p, err := advert.NewPacket(fields...)
	if err != nil {
		// The name did not fit a legacy PDU; keep the services.
		p, _ = advert.NewPacket(advert.Services16(services...))
	}
	return p.Bytes()
}

func (a *TinyGoAdapter) Connect(ctx context.Context, addr Address) (Connection, error) {
	var target bluetooth.Address
	target.Set(addr.String())

	params := bluetooth.ConnectionParams{}
	if deadline, ok := ctx.Deadline(); ok {
		params.ConnectionTimeout = bluetooth.NewDuration(time.Until(deadline))
	}

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// We wrap it to also respect ctx cancellation.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(target, params)
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		// The underlying Connect cannot be cancelled; drop the link if it
		// completes after we gave up.
		go func() {
			if result := <-ch; result.err == nil {
				if err := result.device.Disconnect(); err != nil {
					a.log.WithError(err).WithField("address", addr).Warn("failed to drop late connection")
				}
			}
		}()
		return nil, errors.Wrapf(ctx.Err(), "ble: connect to %s", addr)
	case result := <-ch:
		if result.err != nil {
			return nil, errors.Wrapf(result.err, "ble: connect to %s", addr)
		}
		conn := &tinyGoConnection{device: result.device, addr: addr, table: &a.connections}

		// Track this connection so the adapter-level disconnect handler
		// can find it and fire its OnDisconnect callback.
		a.connections.add(addr, conn)

		return conn, nil
	}
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	device bluetooth.Device
	addr   Address
	table  *connTable

	mu           sync.Mutex
	disconnectCb func()
}

func (c *tinyGoConnection) DiscoverCharacteristic(serviceUUID, charUUID UUID) (Characteristic, error) {
	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{bluetooth.New16BitUUID(uint16(serviceUUID))})
	if err != nil {
		return nil, errors.Wrap(err, "ble: discover services")
	}
	if len(svcs) == 0 {
		return nil, errors.Wrapf(ErrServiceNotFound, "service %s", serviceUUID)
	}

	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{bluetooth.New16BitUUID(uint16(charUUID))})
	if err != nil {
		return nil, errors.Wrap(err, "ble: discover characteristics")
	}
	if len(chars) == 0 {
		return nil, errors.Wrapf(ErrCharacteristicNotFound, "characteristic %s", charUUID)
	}

	return &tinyGoCharacteristic{char: chars[0]}, nil
}

func (c *tinyGoConnection) Disconnect() error {
	if c.table != nil {
		c.table.remove(c.addr, c)
	}
	if err := c.device.Disconnect(); err != nil {
		return errors.Wrapf(err, "ble: disconnect %s", c.addr)
	}
	return nil
}

func (c *tinyGoConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *tinyGoConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type tinyGoCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *tinyGoCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		// The stack may reuse buf after the callback returns.
		data := make([]byte, len(buf))
		copy(data, buf)
		cb(data)
	})
}
