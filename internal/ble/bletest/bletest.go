// Package bletest provides an in-memory radio for tests. Scans, connect
// requests and link events are driven explicitly by the test.
package bletest

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/bit-cook/ZSWatch/internal/ble"
	"github.com/bit-cook/ZSWatch/internal/ble/advert"
)

// Characteristic records its subscriber so the test can push notifications.
type Characteristic struct {
	mu           sync.Mutex
	callback     func([]byte)
	SubscribeErr error
}

func (c *Characteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeErr != nil {
		return c.SubscribeErr
	}
	c.callback = cb
	return nil
}

// Subscribed reports whether a subscriber is registered.
func (c *Characteristic) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callback != nil
}

// SimulateNotification sends a notification to the subscriber.
func (c *Characteristic) SimulateNotification(data []byte) {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(data)
	}
}

type charKey struct {
	service, char ble.UUID
}

// Conn simulates a BLE connection exposing a fixed GATT table.
type Conn struct {
	Address ble.Address

	mu           sync.Mutex
	chars        map[charKey]*Characteristic
	services     map[ble.UUID]bool
	discoverErr  error
	gate         chan struct{}
	disconnectCb func()
	disconnects  int
	holdDrop     chan struct{}
	dropOnWatch  bool
	calls        *callLog
}

// NewConn returns a connection with an empty GATT table.
func NewConn(addr ble.Address) *Conn {
	return &Conn{
		Address:  addr,
		chars:    make(map[charKey]*Characteristic),
		services: make(map[ble.UUID]bool),
	}
}

// WithCharacteristic adds service/char to the GATT table and returns the
// characteristic for later notifications.
func (c *Conn) WithCharacteristic(service, char ble.UUID) *Characteristic {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := &Characteristic{}
	c.services[service] = true
	c.chars[charKey{service, char}] = ch
	return ch
}

// FailDiscovery makes DiscoverCharacteristic return err.
func (c *Conn) FailDiscovery(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discoverErr = err
}

// HoldDiscovery makes DiscoverCharacteristic block until the returned
// function is called.
func (c *Conn) HoldDiscovery() (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.gate = gate
	c.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (c *Conn) DiscoverCharacteristic(service, char ble.UUID) (ble.Characteristic, error) {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discoverErr != nil {
		return nil, c.discoverErr
	}
	if !c.services[service] {
		return nil, errors.Wrapf(ble.ErrServiceNotFound, "service %s", service)
	}
	ch, ok := c.chars[charKey{service, char}]
	if !ok {
		return nil, errors.Wrapf(ble.ErrCharacteristicNotFound, "characteristic %s", char)
	}
	return ch, nil
}

// HoldDisconnect makes Disconnect block until the returned function is
// called.
func (c *Conn) HoldDisconnect() (release func()) {
	gate := make(chan struct{})
	c.mu.Lock()
	c.holdDrop = gate
	c.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// DropWhenWatched makes the peer drop the link as soon as a disconnect
// callback is registered, before the caller has seen the connect result.
func (c *Conn) DropWhenWatched() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropOnWatch = true
}

func (c *Conn) Disconnect() error {
	c.mu.Lock()
	gate := c.holdDrop
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}

	c.mu.Lock()
	c.disconnects++
	calls := c.calls
	c.mu.Unlock()
	calls.record("disconnect " + c.Address.String())
	return nil
}

// Disconnected reports whether Disconnect was called at least once.
func (c *Conn) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects > 0
}

// Disconnects returns how many times Disconnect was called.
func (c *Conn) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *Conn) OnDisconnect(cb func()) {
	c.mu.Lock()
	c.disconnectCb = cb
	drop := c.dropOnWatch
	c.mu.Unlock()
	if drop && cb != nil {
		cb()
	}
}

// SimulateDisconnect triggers the disconnect callback as if the peer
// dropped the link.
func (c *Conn) SimulateDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// HeartRateConn returns a connection exposing the Heart Rate Service.
func HeartRateConn(addr ble.Address) (*Conn, *Characteristic) {
	c := NewConn(addr)
	return c, c.WithCharacteristic(ble.HeartRateServiceUUID, ble.HeartRateMeasurementUUID)
}

// CyclingConn returns a connection exposing the Cycling Speed and Cadence Service.
func CyclingConn(addr ble.Address) (*Conn, *Characteristic) {
	c := NewConn(addr)
	return c, c.WithCharacteristic(ble.CyclingSpeedCadenceServiceUUID, ble.CyclingSpeedCadenceMeasurementUUID)
}

// callLog records radio calls in the order they reach the adapter.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) record(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// ConnectRequest is a pending Adapter.Connect call.
type ConnectRequest struct {
	Address ble.Address
	Ctx     context.Context

	calls  *callLog
	result chan connectResult
}

type connectResult struct {
	conn ble.Connection
	err  error
}

// Accept completes the request with conn. A *Conn's Disconnect calls are
// recorded in the adapter's call log from then on.
func (r *ConnectRequest) Accept(conn ble.Connection) {
	if c, ok := conn.(*Conn); ok {
		c.mu.Lock()
		c.calls = r.calls
		c.mu.Unlock()
	}
	r.result <- connectResult{conn: conn}
}

// Fail completes the request with err.
func (r *ConnectRequest) Fail(err error) {
	r.result <- connectResult{err: err}
}

// Adapter is a scriptable ble.Adapter.
type Adapter struct {
	EnableErr error
	ScanErr   error

	mu       sync.Mutex
	handler  func(ble.Advertisement)
	scans    int
	started  int
	enabled  bool
	scanCtx  context.Context
	connects chan *ConnectRequest
	calls    callLog
}

// NewAdapter returns an adapter whose Connect calls are queued on Connects.
func NewAdapter() *Adapter {
	return &Adapter{connects: make(chan *ConnectRequest, 16)}
}

// Calls returns the connect and disconnect calls seen so far, in order, as
// "connect <address>" and "disconnect <address>".
func (a *Adapter) Calls() []string {
	return a.calls.snapshot()
}

func (a *Adapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.EnableErr != nil {
		return a.EnableErr
	}
	a.enabled = true
	return nil
}

// Scan registers handler until ctx is cancelled.
func (a *Adapter) Scan(ctx context.Context, handler func(ble.Advertisement)) error {
	a.mu.Lock()
	a.scanCtx = ctx
	if a.ScanErr != nil {
		a.mu.Unlock()
		return a.ScanErr
	}
	a.handler = handler
	a.scans++
	a.started++
	a.mu.Unlock()

	<-ctx.Done()

	a.mu.Lock()
	// A newer scan may already have replaced the handler.
	a.scans--
	if a.scans == 0 {
		a.handler = nil
	}
	a.mu.Unlock()
	return nil
}

// Scanning reports whether a scan is in progress.
func (a *Adapter) Scanning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scans > 0
}

// ScanCount returns how many scans have been started.
func (a *Adapter) ScanCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

// LastScanContext returns the context of the most recent Scan call, or nil.
func (a *Adapter) LastScanContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanCtx
}

// Enabled reports whether Enable succeeded.
func (a *Adapter) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Advertise delivers adv to the running scan. It returns false when no scan
// is in progress.
func (a *Adapter) Advertise(adv ble.Advertisement) bool {
	a.mu.Lock()
	h := a.handler
	a.mu.Unlock()
	if h == nil {
		return false
	}
	h(adv)
	return true
}

func (a *Adapter) Connect(ctx context.Context, addr ble.Address) (ble.Connection, error) {
	a.calls.record("connect " + addr.String())
	req := &ConnectRequest{Address: addr, Ctx: ctx, calls: &a.calls, result: make(chan connectResult, 1)}
	a.connects <- req

	select {
	case <-ctx.Done():
		// Drop a link that is accepted after the caller gave up.
		go func() {
			if r := <-req.result; r.err == nil && r.conn != nil {
				_ = r.conn.Disconnect()
			}
		}()
		return nil, ctx.Err()
	case r := <-req.result:
		return r.conn, r.err
	}
}

// Connects delivers every Connect call in order.
func (a *Adapter) Connects() <-chan *ConnectRequest {
	return a.connects
}

var (
	_ ble.Adapter        = (*Adapter)(nil)
	_ ble.Connection     = (*Conn)(nil)
	_ ble.Characteristic = (*Characteristic)(nil)
)

// Advert builds a connectable advertisement carrying name and the given
// 16-bit services.
func Advert(addr, name string, services ...ble.UUID) ble.Advertisement {
	u := make([]uint16, len(services))
	for i, s := range services {
		u[i] = uint16(s)
	}
	fields := []advert.Field{advert.Flags(0x06), advert.Services16(u...)}
	if name != "" {
		fields = append(fields, advert.CompleteName(name))
	}
	p, err := advert.NewExtendedPacket(fields...)
	if err != nil {
		panic(err)
	}
	return ble.Advertisement{
		Address:     ble.NewAddress(addr),
		RSSI:        -60,
		Connectable: true,
		Payload:     p.Bytes(),
	}
}
