//go:build linux

package goble

import (
	"context"
	"sync"
	"time"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bit-cook/ZSWatch/internal/ble"
)

const dialTimeout = 20 * time.Second

// Adapter is a ble.Adapter backed by a go-ble HCI device.
type Adapter struct {
	id  int
	log logrus.FieldLogger

	mu     sync.Mutex
	device goble.Device
}

// NewAdapter returns an adapter for the controller named id ("hci0").
// The HCI device is opened by Enable.
func NewAdapter(id string, log logrus.FieldLogger) (*Adapter, error) {
	n, err := deviceID(id)
	if err != nil {
		return nil, err
	}
	return &Adapter{id: n, log: log.WithField("component", "goble")}, nil
}

func (a *Adapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device != nil {
		a.log.Debug("reusing existing BLE device")
		return nil
	}
	device, err := linux.NewDevice(goble.OptDeviceID(a.id), goble.OptDialerTimeout(dialTimeout))
	if err != nil {
		return errors.Wrapf(err, "goble: open hci%d", a.id)
	}
	a.device = device
	return nil
}

// Close releases the HCI device. Existing connections are not torn down.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return nil
	}
	device := a.device
	a.device = nil
	return device.Stop()
}

func (a *Adapter) dev() (goble.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.device == nil {
		return nil, errors.New("goble: adapter not enabled")
	}
	return a.device, nil
}

func (a *Adapter) Scan(ctx context.Context, handler func(ble.Advertisement)) error {
	device, err := a.dev()
	if err != nil {
		return err
	}

	err = device.Scan(ctx, true, func(adv goble.Advertisement) {
		handler(toAdvertisement(adv))
	})
	if err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "goble: scan")
	}
	return nil
}

func (a *Adapter) Connect(ctx context.Context, addr ble.Address) (ble.Connection, error) {
	device, err := a.dev()
	if err != nil {
		return nil, err
	}

	client, err := device.Dial(ctx, goble.NewAddr(addr.String()))
	if err != nil {
		return nil, errors.Wrapf(err, "goble: dial %s", addr)
	}

	c := &connection{client: client, done: make(chan struct{})}
	go c.watch()
	return c, nil
}

var _ ble.Adapter = (*Adapter)(nil)

type connection struct {
	client goble.Client
	done   chan struct{}

	mu           sync.Mutex
	disconnectCb func()
	local        bool
}

// watch reports a peer-initiated link loss.
func (c *connection) watch() {
	select {
	case <-c.client.Disconnected():
	case <-c.done:
		return
	}
	c.mu.Lock()
	cb, local := c.disconnectCb, c.local
	c.mu.Unlock()
	if cb != nil && !local {
		cb()
	}
}

func (c *connection) DiscoverCharacteristic(serviceUUID, charUUID ble.UUID) (ble.Characteristic, error) {
	services, err := c.client.DiscoverServices([]goble.UUID{goble.UUID16(uint16(serviceUUID))})
	if err != nil {
		return nil, errors.Wrap(err, "goble: discover services")
	}
	if len(services) == 0 {
		return nil, errors.Wrapf(ble.ErrServiceNotFound, "service %s", serviceUUID)
	}

	want := goble.UUID16(uint16(charUUID))
	chars, err := c.client.DiscoverCharacteristics([]goble.UUID{want}, services[0])
	if err != nil {
		return nil, errors.Wrap(err, "goble: discover characteristics")
	}
	for _, ch := range chars {
		if !ch.UUID.Equal(want) {
			continue
		}
		// The CCCD must be known before Subscribe can write it.
		if _, err := c.client.DiscoverDescriptors(nil, ch); err != nil {
			return nil, errors.Wrap(err, "goble: discover descriptors")
		}
		return &characteristic{client: c.client, char: ch}, nil
	}
	return nil, errors.Wrapf(ble.ErrCharacteristicNotFound, "characteristic %s", charUUID)
}

func (c *connection) Disconnect() error {
	c.mu.Lock()
	if c.local {
		c.mu.Unlock()
		return nil
	}
	c.local = true
	c.mu.Unlock()
	close(c.done)

	// The link may already be gone; cancelling is still required.
	subErr := c.client.ClearSubscriptions()
	if err := c.client.CancelConnection(); err != nil {
		return errors.Wrap(err, "goble: cancel connection")
	}
	return errors.Wrap(subErr, "goble: clear subscriptions")
}

func (c *connection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

type characteristic struct {
	client goble.Client
	char   *goble.Characteristic
}

func (c *characteristic) Subscribe(cb func([]byte)) error {
	err := c.client.Subscribe(c.char, false, func(req []byte) {
		data := make([]byte, len(req))
		copy(data, req)
		cb(data)
	})
	if err != nil {
		return errors.Wrap(err, "goble: subscribe")
	}
	return nil
}
