package central_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/mock/gomock"

	"github.com/bit-cook/ZSWatch/internal/ble"
	"github.com/bit-cook/ZSWatch/internal/ble/blemock"
	"github.com/bit-cook/ZSWatch/internal/ble/bletest"
	"github.com/bit-cook/ZSWatch/internal/central"
	"github.com/bit-cook/ZSWatch/internal/sensor"
)

type statusReport struct {
	Name     string
	Category central.Category
	Status   central.Status
}

// recorder collects application callbacks.
type recorder struct {
	mu         sync.Mutex
	discovered []string
	statuses   []statusReport
}

func (r *recorder) onDiscovered(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovered = append(r.discovered, name)
}

func (r *recorder) onStatus(name string, c central.Category, s central.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, statusReport{name, c, s})
}

func (r *recorder) Discovered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.discovered...)
}

func (r *recorder) Statuses() []statusReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]statusReport(nil), r.statuses...)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) SetMillis(ms int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = epoch.Add(time.Duration(ms) * time.Millisecond)
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(GinkgoWriter)
	l.SetLevel(logrus.DebugLevel)
	return l
}

func addr(i int) string {
	return fmt.Sprintf("aa:bb:cc:dd:ee:%02x", i)
}

var _ = Describe("Manager", func() {
	var (
		adapter *bletest.Adapter
		m       *central.Manager
		rec     *recorder
		clk     *clock
		opts    []central.Option
	)

	BeforeEach(func() {
		adapter = bletest.NewAdapter()
		rec = &recorder{}
		clk = &clock{t: epoch}
		opts = []central.Option{central.WithLogger(testLogger()), central.WithClock(clk.Now)}
	})

	JustBeforeEach(func() {
		m = central.New(adapter, opts...)
		Expect(m.Start(context.Background())).To(Succeed())
		DeferCleanup(func() {
			Expect(m.Close()).To(Succeed())
		})
	})

	// scan starts a session and waits for its radio scan, which begins
	// once the previous one has wound down.
	scan := func(c central.Category) {
		before := adapter.ScanCount()
		Expect(m.ScanStart(c, rec.onDiscovered, rec.onStatus)).To(Succeed())
		Eventually(adapter.ScanCount).Should(Equal(before + 1))
	}

	advertise := func(adv ble.Advertisement) {
		Expect(adapter.Advertise(adv)).To(BeTrue())
	}

	nextConnect := func() *bletest.ConnectRequest {
		var req *bletest.ConnectRequest
		Eventually(adapter.Connects()).Should(Receive(&req))
		return req
	}

	// connectHR scans, lists one heart rate sensor at index 0 and connects to it.
	connectHR := func(name string) (*bletest.Conn, *bletest.Characteristic) {
		scan(central.HeartRateMonitor)
		advertise(bletest.Advert(addr(1), name, ble.HeartRateServiceUUID))
		Eventually(rec.Discovered).Should(ContainElement(name))

		Expect(m.Connect(central.HeartRateMonitor, 0)).To(Succeed())
		req := nextConnect()
		conn, ch := bletest.HeartRateConn(req.Address)
		req.Accept(conn)

		Eventually(rec.Statuses).Should(ContainElement(statusReport{name, central.HeartRateMonitor, central.StatusConnected}))
		return conn, ch
	}

	Describe("scanning", func() {
		It("lists a heart rate sensor and reports its name", func() {
			scan(central.HeartRateMonitor)
			advertise(bletest.Advert(addr(1), "HR-Sensor", ble.HeartRateServiceUUID))

			Eventually(rec.Discovered).Should(Equal([]string{"HR-Sensor"}))
			Expect(m.Discovered()).To(Equal([]central.Peripheral{{
				Name:     "HR-Sensor",
				Address:  ble.NewAddress(addr(1)),
				Category: central.HeartRateMonitor,
				RSSI:     -60,
			}}))
		})

		It("lists each address once", func() {
			scan(central.HeartRateMonitor)
			for i := 0; i < 5; i++ {
				advertise(bletest.Advert(addr(1), "HR-Sensor", ble.HeartRateServiceUUID))
			}
			advertise(bletest.Advert(addr(2), "Other", ble.HeartRateServiceUUID))

			Eventually(rec.Discovered).Should(Equal([]string{"HR-Sensor", "Other"}))
			Consistently(rec.Discovered, 100*time.Millisecond).Should(HaveLen(2))
		})

		It("ignores peripherals of other categories", func() {
			scan(central.HeartRateMonitor)
			advertise(bletest.Advert(addr(1), "Cadence", ble.CyclingSpeedCadenceServiceUUID))
			advertise(bletest.Advert(addr(2), "HR", ble.HeartRateServiceUUID))

			Eventually(rec.Discovered).Should(Equal([]string{"HR"}))
		})

		It("drops the sixth peripheral without touching the first five", func() {
			scan(central.HeartRateMonitor)
			for i := 0; i < 6; i++ {
				advertise(bletest.Advert(addr(i), fmt.Sprintf("HR-%d", i), ble.HeartRateServiceUUID))
			}

			Eventually(rec.Discovered).Should(HaveLen(5))
			Consistently(rec.Discovered, 100*time.Millisecond).Should(HaveLen(5))

			list, err := m.Discovered()
			Expect(err).NotTo(HaveOccurred())
			for i, p := range list {
				Expect(p.Name).To(Equal(fmt.Sprintf("HR-%d", i)))
			}
			Expect(m.Connect(central.HeartRateMonitor, 5)).To(MatchError(central.ErrInvalidIndex))
		})

		It("clears the list when a new session starts", func() {
			scan(central.HeartRateMonitor)
			advertise(bletest.Advert(addr(1), "HR", ble.HeartRateServiceUUID))
			Eventually(rec.Discovered).Should(HaveLen(1))

			scan(central.HeartRateMonitor)
			Expect(m.Discovered()).To(BeEmpty())
			Expect(m.Connect(central.HeartRateMonitor, 0)).To(MatchError(central.ErrInvalidIndex))
		})

		It("stops processing advertisements after ScanStop", func() {
			scan(central.HeartRateMonitor)
			Expect(m.ScanStop()).To(Succeed())
			Eventually(adapter.Scanning).Should(BeFalse())

			Expect(adapter.Advertise(bletest.Advert(addr(1), "HR", ble.HeartRateServiceUUID))).To(BeFalse())
			Expect(m.Discovered()).To(BeEmpty())
		})

		It("ends the session when the radio refuses to scan", func() {
			adapter.ScanErr = errors.New("operation not permitted")
			Expect(m.ScanStart(central.HeartRateMonitor, rec.onDiscovered, rec.onStatus)).To(Succeed())

			Eventually(adapter.LastScanContext).ShouldNot(BeNil())
			Eventually(adapter.LastScanContext().Done()).Should(BeClosed())
			Expect(adapter.Scanning()).To(BeFalse())
			Expect(m.Discovered()).To(BeEmpty())
			Expect(rec.Discovered()).To(BeEmpty())
		})

		It("lets a callback call back into the manager", func() {
			connected := make(chan error, 1)
			Expect(m.ScanStart(central.HeartRateMonitor, func(string) {
				connected <- m.Connect(central.HeartRateMonitor, 0)
			}, rec.onStatus)).To(Succeed())
			Eventually(adapter.ScanCount).Should(Equal(1))

			advertise(bletest.Advert(addr(1), "HR", ble.HeartRateServiceUUID))
			Eventually(connected).Should(Receive(BeNil()))
			Expect(nextConnect().Address).To(Equal(ble.NewAddress(addr(1))))
		})
	})

	Describe("connecting", func() {
		It("connects, discovers and reports connected", func() {
			conn, ch := connectHR("HR-Sensor")

			Expect(m.State(central.HeartRateMonitor)).To(Equal(central.SlotConnected))
			Expect(m.Info(central.HeartRateMonitor)).To(Equal("HR-Sensor"))
			Expect(ch.Subscribed()).To(BeTrue())
			Expect(conn.Disconnected()).To(BeFalse())

			// A successful connect ends the scan session.
			Eventually(adapter.Scanning).Should(BeFalse())
		})

		It("holds the slot while the link is pending", func() {
			scan(central.HeartRateMonitor)
			advertise(bletest.Advert(addr(1), "HR-Sensor", ble.HeartRateServiceUUID))
			Eventually(rec.Discovered).Should(HaveLen(1))

			Expect(m.Connect(central.HeartRateMonitor, 0)).To(Succeed())
			nextConnect()
			Expect(m.State(central.HeartRateMonitor)).To(Equal(central.SlotConnecting))
			Expect(m.Info(central.HeartRateMonitor)).To(Equal("HR-Sensor"))
		})

		It("reports no device when the link fails", func() {
			scan(central.HeartRateMonitor)
			advertise(bletest.Advert(addr(1), "HR-Sensor", ble.HeartRateServiceUUID))
			Eventually(rec.Discovered).Should(HaveLen(1))

			Expect(m.Connect(central.HeartRateMonitor, 0)).To(Succeed())
			nextConnect().Fail(errors.New("connection failed to be established"))

			Eventually(rec.Statuses).Should(Equal([]statusReport{{"HR-Sensor", central.HeartRateMonitor, central.StatusNoDevice}}))
			Expect(m.State(central.HeartRateMonitor)).To(Equal(central.SlotEmpty))
			_, err := m.Info(central.HeartRateMonitor)
			Expect(err).To(MatchError(central.ErrNoDevice))
		})

		It("tears the link down when the service is missing", func() {
			scan(central.HeartRateMonitor)
			advertise(bletest.Advert(addr(1), "Fake HR", ble.HeartRateServiceUUID))
			Eventually(rec.Discovered).Should(HaveLen(1))

			Expect(m.Connect(central.HeartRateMonitor, 0)).To(Succeed())
			req := nextConnect()
			conn := bletest.NewConn(req.Address)
			req.Accept(conn)

			Eventually(rec.Statuses).Should(Equal([]statusReport{{"Fake HR", central.HeartRateMonitor, central.StatusNoDevice}}))
			Eventually(conn.Disconnected).Should(BeTrue())
			Expect(m.State(central.HeartRateMonitor)).To(Equal(central.SlotEmpty))
		})

		It("rejects an invalid index or category", func() {
			scan(central.HeartRateMonitor)
			Expect(m.Connect(central.HeartRateMonitor, 0)).To(MatchError(central.ErrInvalidIndex))
			Expect(m.Connect(central.HeartRateMonitor, -1)).To(MatchError(central.ErrInvalidIndex))
			Expect(m.Connect(central.Category(3), 0)).To(MatchError(central.ErrInvalidCategory))
			Expect(m.Disconnect(central.Category(-1))).To(MatchError(central.ErrInvalidCategory))
			_, err := m.Info(central.Category(7))
			Expect(err).To(MatchError(central.ErrInvalidCategory))
		})

		It("disconnects the current peripheral before connecting the next", func() {
			scan(central.HeartRateMonitor)
			advertise(bletest.Advert(addr(1), "A", ble.HeartRateServiceUUID))
			advertise(bletest.Advert(addr(2), "B", ble.HeartRateServiceUUID))
			Eventually(rec.Discovered).Should(HaveLen(2))

			Expect(m.Connect(central.HeartRateMonitor, 1)).To(Succeed())
			reqB := nextConnect()
			connB, _ := bletest.HeartRateConn(reqB.Address)
			reqB.Accept(connB)
			Eventually(rec.Statuses).Should(ContainElement(statusReport{"B", central.HeartRateMonitor, central.StatusConnected}))

			release := connB.HoldDisconnect()
			Expect(m.Connect(central.HeartRateMonitor, 0)).To(Succeed())
			Expect(m.Info(central.HeartRateMonitor)).To(Equal("A"))

			// No connect reaches the radio while B is still being dropped.
			Consistently(adapter.Connects(), 100*time.Millisecond).ShouldNot(Receive())
			release()

			reqA := nextConnect()
			Expect(reqA.Address).To(Equal(ble.NewAddress(addr(1))))
			Expect(adapter.Calls()).To(Equal([]string{
				"connect " + addr(2),
				"disconnect " + addr(2),
				"connect " + addr(1),
			}))

			// The superseded link reports nothing.
			Consistently(rec.Statuses, 100*time.Millisecond).Should(HaveLen(1))
		})

		It("orders the radio calls of repeated supersedes", func() {
			scan(central.HeartRateMonitor)
			advertise(bletest.Advert(addr(1), "A", ble.HeartRateServiceUUID))
			advertise(bletest.Advert(addr(2), "B", ble.HeartRateServiceUUID))
			Eventually(rec.Discovered).Should(HaveLen(2))

			var want []string
			for i := 0; i < 20; i++ {
				idx := i % 2
				a := addr(idx + 1)
				Expect(m.Connect(central.HeartRateMonitor, idx)).To(Succeed())
				req := nextConnect()
				Expect(req.Address).To(Equal(ble.NewAddress(a)))
				conn, _ := bletest.HeartRateConn(req.Address)
				req.Accept(conn)
				Eventually(m.State).WithArguments(central.HeartRateMonitor).Should(Equal(central.SlotConnected))

				if i > 0 {
					prev := addr((i-1)%2 + 1)
					want = append(want, "disconnect "+prev)
				}
				want = append(want, "connect "+a)
			}
			Expect(adapter.Calls()).To(Equal(want))
		})

		It("reports no device when the peer drops the link before the connect result", func() {
			scan(central.HeartRateMonitor)
			advertise(bletest.Advert(addr(1), "HR-Sensor", ble.HeartRateServiceUUID))
			Eventually(rec.Discovered).Should(HaveLen(1))

			Expect(m.Connect(central.HeartRateMonitor, 0)).To(Succeed())
			req := nextConnect()
			conn, ch := bletest.HeartRateConn(req.Address)
			conn.DropWhenWatched()
			req.Accept(conn)

			Eventually(rec.Statuses).Should(Equal([]statusReport{{"HR-Sensor", central.HeartRateMonitor, central.StatusNoDevice}}))
			Eventually(m.State).WithArguments(central.HeartRateMonitor).Should(Equal(central.SlotEmpty))
			_, err := m.Info(central.HeartRateMonitor)
			Expect(err).To(MatchError(central.ErrNoDevice))

			// The dead link is neither disconnected nor discovered.
			Consistently(conn.Disconnects, 100*time.Millisecond).Should(Equal(0))
			Expect(ch.Subscribed()).To(BeFalse())
			Expect(rec.Statuses()).To(HaveLen(1))

			// The next connect is not held up by the lost link.
			Expect(m.Connect(central.HeartRateMonitor, 0)).To(Succeed())
			Expect(nextConnect().Address).To(Equal(ble.NewAddress(addr(1))))
		})

		It("drops a link that completes after being superseded", func() {
			scan(central.HeartRateMonitor)
			advertise(bletest.Advert(addr(1), "A", ble.HeartRateServiceUUID))
			advertise(bletest.Advert(addr(2), "B", ble.HeartRateServiceUUID))
			Eventually(rec.Discovered).Should(HaveLen(2))

			Expect(m.Connect(central.HeartRateMonitor, 0)).To(Succeed())
			first := nextConnect()
			Expect(m.Connect(central.HeartRateMonitor, 1)).To(Succeed())
			second := nextConnect()
			Eventually(first.Ctx.Done()).Should(BeClosed())

			late, _ := bletest.HeartRateConn(first.Address)
			first.Accept(late)
			Eventually(late.Disconnected).Should(BeTrue())

			connB, _ := bletest.HeartRateConn(second.Address)
			second.Accept(connB)
			Eventually(rec.Statuses).Should(Equal([]statusReport{{"B", central.HeartRateMonitor, central.StatusConnected}}))
			Expect(m.Info(central.HeartRateMonitor)).To(Equal("B"))
		})

		Context("with a connect timeout", func() {
			BeforeEach(func() {
				opts = append(opts, central.WithConnectTimeout(50*time.Millisecond))
			})

			It("gives up and reports no device", func() {
				scan(central.HeartRateMonitor)
				advertise(bletest.Advert(addr(1), "HR", ble.HeartRateServiceUUID))
				Eventually(rec.Discovered).Should(HaveLen(1))

				Expect(m.Connect(central.HeartRateMonitor, 0)).To(Succeed())
				req := nextConnect()
				_, hasDeadline := req.Ctx.Deadline()
				Expect(hasDeadline).To(BeTrue())

				Eventually(rec.Statuses).Should(Equal([]statusReport{{"HR", central.HeartRateMonitor, central.StatusNoDevice}}))
				Expect(m.State(central.HeartRateMonitor)).To(Equal(central.SlotEmpty))
			})
		})
	})

	Describe("disconnecting", func() {
		It("is idempotent and reports nothing", func() {
			conn, _ := connectHR("HR-Sensor")

			Expect(m.Disconnect(central.HeartRateMonitor)).To(Succeed())
			Expect(m.Disconnect(central.HeartRateMonitor)).To(Succeed())

			Expect(m.State(central.HeartRateMonitor)).To(Equal(central.SlotEmpty))
			_, err := m.Info(central.HeartRateMonitor)
			Expect(err).To(MatchError(central.ErrNoDevice))
			Eventually(conn.Disconnects).Should(Equal(1))
			Consistently(conn.Disconnects, 100*time.Millisecond).Should(Equal(1))
			Expect(rec.Statuses()).To(HaveLen(1))
		})

		It("is a no-op for an empty slot", func() {
			Expect(m.Disconnect(central.CyclingSpeedSensor)).To(Succeed())
			Expect(m.State(central.CyclingSpeedSensor)).To(Equal(central.SlotEmpty))
		})

		It("reports not in range when the peer drops the link", func() {
			conn, ch := connectHR("HR-Sensor")
			ch.SimulateNotification([]byte{0x00, 64})
			Eventually(m.HeartRate).Should(Equal(uint16(64)))

			conn.SimulateDisconnect()

			Eventually(rec.Statuses).Should(ContainElement(statusReport{"HR-Sensor", central.HeartRateMonitor, central.StatusNotInRange}))
			Expect(m.State(central.HeartRateMonitor)).To(Equal(central.SlotEmpty))
			Expect(conn.Disconnects()).To(Equal(0))

			// The category client is stopped.
			ch.SimulateNotification([]byte{0x00, 99})
			Consistently(m.HeartRate, 100*time.Millisecond).Should(Equal(uint16(64)))
		})

		It("ignores link loss of a released handle", func() {
			conn, _ := connectHR("HR-Sensor")
			Expect(m.Disconnect(central.HeartRateMonitor)).To(Succeed())
			conn.SimulateDisconnect()

			Consistently(rec.Statuses, 100*time.Millisecond).Should(HaveLen(1))
		})

		It("releases the category's slot when a new scan starts", func() {
			conn, _ := connectHR("HR-Sensor")
			scan(central.HeartRateMonitor)

			Expect(m.State(central.HeartRateMonitor)).To(Equal(central.SlotEmpty))
			Eventually(conn.Disconnected).Should(BeTrue())
		})
	})

	Describe("categories", func() {
		It("keeps each category's slot independent", func() {
			hrConn, _ := connectHR("HR-Sensor")

			scan(central.CyclingCadenceSensor)
			advertise(bletest.Advert(addr(9), "Cadence", ble.CyclingSpeedCadenceServiceUUID))
			Eventually(rec.Discovered).Should(ContainElement("Cadence"))
			Expect(m.Connect(central.CyclingCadenceSensor, 0)).To(Succeed())
			req := nextConnect()
			req.Fail(errors.New("connection failed to be established"))

			Eventually(rec.Statuses).Should(ContainElement(statusReport{"Cadence", central.CyclingCadenceSensor, central.StatusNoDevice}))
			Expect(m.State(central.HeartRateMonitor)).To(Equal(central.SlotConnected))
			Expect(m.Info(central.HeartRateMonitor)).To(Equal("HR-Sensor"))
			Expect(hrConn.Disconnected()).To(BeFalse())
		})

		It("derives cadence from a CSC sensor", func() {
			scan(central.CyclingCadenceSensor)
			advertise(bletest.Advert(addr(3), "Cadence", ble.CyclingSpeedCadenceServiceUUID))
			Eventually(rec.Discovered).Should(HaveLen(1))

			Expect(m.Connect(central.CyclingCadenceSensor, 0)).To(Succeed())
			req := nextConnect()
			conn, ch := bletest.CyclingConn(req.Address)
			req.Accept(conn)
			Eventually(rec.Statuses).Should(ContainElement(statusReport{"Cadence", central.CyclingCadenceSensor, central.StatusConnected}))

			ch.SimulateNotification([]byte{0x02, 10, 0, 0x00, 0x00})
			ch.SimulateNotification([]byte{0x02, 11, 0, 0x00, 0x04})

			Eventually(func() (float64, error) {
				c, err := m.CyclingCadence()
				return c.RPM, err
			}).Should(BeNumerically("~", 60, 0.001))
		})
	})

	Describe("heart rate", func() {
		It("returns a fresh value and fails once it is stale", func() {
			_, ch := connectHR("HR-Sensor")

			clk.SetMillis(1000)
			ch.SimulateNotification([]byte{0x00, 72})
			Eventually(m.HeartRate).Should(Equal(uint16(72)))

			clk.SetMillis(5000)
			Expect(m.HeartRate()).To(Equal(uint16(72)))

			clk.SetMillis(12000)
			_, err := m.HeartRate()
			Expect(err).To(MatchError(sensor.ErrStale))
		})

		It("keeps the last value after a disconnect", func() {
			_, ch := connectHR("HR-Sensor")
			ch.SimulateNotification([]byte{0x00, 64})
			Eventually(m.HeartRate).Should(Equal(uint16(64)))

			Expect(m.Disconnect(central.HeartRateMonitor)).To(Succeed())
			Expect(m.HeartRate()).To(Equal(uint16(64)))
		})
	})

	Describe("closing", func() {
		It("disconnects everything and rejects further calls", func() {
			conn, _ := connectHR("HR-Sensor")
			Expect(m.Close()).To(Succeed())

			Eventually(conn.Disconnected).Should(BeTrue())
			Expect(m.ScanStart(central.HeartRateMonitor, nil, nil)).To(MatchError(central.ErrClosed))
			Expect(m.Start(context.Background())).To(MatchError(central.ErrClosed))
		})
	})
})

var _ = Describe("Manager radio failures", func() {
	var (
		ctrl    *gomock.Controller
		adapter *blemock.MockAdapter
		m       *central.Manager
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		adapter = blemock.NewMockAdapter(ctrl)
		m = central.New(adapter, central.WithLogger(testLogger()))
		DeferCleanup(func() {
			Expect(m.Close()).To(Succeed())
			ctrl.Finish()
		})
	})

	It("is not ready before Start", func() {
		Expect(m.ScanStart(central.HeartRateMonitor, nil, nil)).To(MatchError(central.ErrNotReady))
	})

	It("stays not ready when the radio cannot be enabled", func() {
		adapter.EXPECT().Enable().Return(errors.New("bluez: adapter hci0 not found"))

		Expect(m.Start(context.Background())).To(HaveOccurred())
		Expect(m.ScanStart(central.HeartRateMonitor, nil, nil)).To(MatchError(central.ErrNotReady))
		Expect(m.Discovered()).To(BeEmpty())
	})

	It("tears the link down when subscribing fails", func() {
		conn := blemock.NewMockConnection(ctrl)
		char := blemock.NewMockCharacteristic(ctrl)
		scanning := make(chan func(ble.Advertisement), 1)
		disconnected := make(chan struct{})
		rec := &recorder{}

		adapter.EXPECT().Enable().Return(nil)
		adapter.EXPECT().Scan(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, h func(ble.Advertisement)) error {
			scanning <- h
			<-ctx.Done()
			return nil
		})
		adapter.EXPECT().Connect(gomock.Any(), ble.NewAddress(addr(1))).Return(conn, nil)
		conn.EXPECT().OnDisconnect(gomock.Any())
		conn.EXPECT().DiscoverCharacteristic(ble.HeartRateServiceUUID, ble.HeartRateMeasurementUUID).Return(char, nil)
		char.EXPECT().Subscribe(gomock.Any()).Return(errors.New("att: insufficient authentication"))
		conn.EXPECT().Disconnect().DoAndReturn(func() error {
			close(disconnected)
			return nil
		})

		Expect(m.Start(context.Background())).To(Succeed())
		Expect(m.ScanStart(central.HeartRateMonitor, rec.onDiscovered, rec.onStatus)).To(Succeed())

		var h func(ble.Advertisement)
		Eventually(scanning).Should(Receive(&h))
		h(bletest.Advert(addr(1), "HR", ble.HeartRateServiceUUID))
		Eventually(rec.Discovered).Should(HaveLen(1))

		Expect(m.Connect(central.HeartRateMonitor, 0)).To(Succeed())
		Eventually(rec.Statuses).Should(Equal([]statusReport{{"HR", central.HeartRateMonitor, central.StatusNoDevice}}))
		Eventually(disconnected).Should(BeClosed())
		Expect(m.State(central.HeartRateMonitor)).To(Equal(central.SlotEmpty))
	})
})
