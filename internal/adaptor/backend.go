package adaptor

import (
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"

	"netsim/internal/bleadv"
	"netsim/internal/capture"
	"netsim/internal/eventbus"
)

// beaconHistoryCap bounds the BeaconBackend's recent-tick ring buffer
// (spec.md §4.F beacon tick); large enough to cover several seconds at the
// fastest advertising interval (ModeLowLatency, 100ms) without growing
// unbounded across a long-lived beacon.
const beaconHistoryCap = 64

// passthroughBackend is a minimal in-process stand-in for the opaque
// rootcanal/hostapd+slirp/pica back-ends: it just counts packets per PHY
// and echoes nothing back, which is all the distance-only radio model
// (spec.md §1 Non-goals) needs to exercise the adaptor contract.
type passthroughBackend struct {
	phy     string
	txCount atomic.Uint32
	rxCount atomic.Uint32
}

// NewPassthroughBackend returns a Backend that records traffic for a single
// named PHY, used by the Wi-Fi and UWB chip kinds (Bluetooth chips use
// NewBluetoothBackend).
func NewPassthroughBackend(phy string) Backend {
	return &passthroughBackend{phy: phy}
}

func (b *passthroughBackend) HandleRequest([]byte, capture.PacketType) error {
	b.txCount.Add(1)
	return nil
}

func (b *passthroughBackend) Reset() {
	b.txCount.Store(0)
	b.rxCount.Store(0)
}

func (b *passthroughBackend) Stats(uptime time.Duration) []eventbus.RadioStat {
	return []eventbus.RadioStat{{
		Kind:     b.phy,
		TxCount:  b.txCount.Load(),
		RxCount:  b.rxCount.Load(),
		Duration: uptime.Seconds(),
	}}
}

func (b *passthroughBackend) Close() error { return nil }

// BluetoothBackend drives both the BLE and Classic PHYs rootcanal exposes on
// a single chip (spec.md §4.G get_stats: "one entry per PHY, e.g. BLE and
// Classic for Bluetooth").
type BluetoothBackend struct {
	le      atomic.Uint32
	classic atomic.Uint32
	rxLe    atomic.Uint32
	rxClassic atomic.Uint32
}

// NewBluetoothBackend returns the dual-PHY Bluetooth back-end.
func NewBluetoothBackend() *BluetoothBackend {
	return &BluetoothBackend{}
}

func (b *BluetoothBackend) HandleRequest(_ []byte, pt capture.PacketType) error {
	if pt == capture.PacketTypeAcl || pt == capture.PacketTypeCommand || pt == capture.PacketTypeEvent {
		b.classic.Add(1)
	} else {
		b.le.Add(1)
	}
	return nil
}

func (b *BluetoothBackend) Reset() {
	b.le.Store(0)
	b.classic.Store(0)
	b.rxLe.Store(0)
	b.rxClassic.Store(0)
}

func (b *BluetoothBackend) Stats(uptime time.Duration) []eventbus.RadioStat {
	return []eventbus.RadioStat{
		{Kind: "BLE", TxCount: b.le.Load(), RxCount: b.rxLe.Load(), Duration: uptime.Seconds()},
		{Kind: "CLASSIC", TxCount: b.classic.Load(), RxCount: b.rxClassic.Load(), Duration: uptime.Seconds()},
	}
}

func (b *BluetoothBackend) Close() error { return nil }

// BeaconBackend drives the in-process BLE advertise tick engine of
// spec.md §4.F: HandleRequest is a no-op (the beacon only ever transmits),
// and Stats reports the single BLE PHY.
type BeaconBackend struct {
	beacon  *bleadv.Beacon
	sent    atomic.Uint32
	history mpmc.RichOverlappedRingBuffer[time.Time]
}

// NewBeaconBackend wraps a bleadv.Beacon as an adaptor Backend.
func NewBeaconBackend(beacon *bleadv.Beacon) *BeaconBackend {
	return &BeaconBackend{
		beacon:  beacon,
		history: mpmc.NewOverlappedRingBuffer[time.Time](beaconHistoryCap),
	}
}

func (b *BeaconBackend) HandleRequest([]byte, capture.PacketType) error { return nil }

func (b *BeaconBackend) Reset() {
	b.sent.Store(0)
	for !b.history.IsEmpty() {
		if _, err := b.history.Dequeue(); err != nil {
			break
		}
	}
}

// RecentTicks returns the timestamps of up to the last beaconHistoryCap
// advertising PDUs this beacon emitted, oldest first. Used by tests
// asserting tick cadence. Draining is
// destructive: a second call before the next tick sees nothing the first
// call already dequeued.
func (b *BeaconBackend) RecentTicks() []time.Time {
	var out []time.Time
	for !b.history.IsEmpty() {
		ts, err := b.history.Dequeue()
		if err != nil {
			break
		}
		out = append(out, ts)
	}
	return out
}

func (b *BeaconBackend) Stats(uptime time.Duration) []eventbus.RadioStat {
	return []eventbus.RadioStat{{Kind: "BLE", TxCount: b.sent.Load(), Duration: uptime.Seconds()}}
}

func (b *BeaconBackend) Close() error { return nil }

// Tick drives the wrapped beacon and counts any PDU it emits.
func (b *BeaconBackend) Tick(now time.Time) (*bleadv.AdvertisingPdu, error) {
	pdu, err := b.beacon.Tick(now)
	if err != nil {
		return nil, err
	}
	if pdu != nil {
		b.sent.Add(1)
		if _, err := b.history.EnqueueM(now); err != nil {
			return pdu, nil
		}
	}
	return pdu, nil
}

// MockBackend records every call verbatim for use in tests.
type MockBackend struct {
	Requests [][]byte
	Resets   int
}

// NewMockBackend returns a Backend suitable for registry/adaptor unit tests.
func NewMockBackend() *MockBackend { return &MockBackend{} }

func (m *MockBackend) HandleRequest(payload []byte, _ capture.PacketType) error {
	m.Requests = append(m.Requests, append([]byte(nil), payload...))
	return nil
}

func (m *MockBackend) Reset() { m.Resets++ }

func (m *MockBackend) Stats(uptime time.Duration) []eventbus.RadioStat {
	return []eventbus.RadioStat{{Kind: "MOCK", TxCount: uint32(len(m.Requests)), Duration: uptime.Seconds()}}
}

func (m *MockBackend) Close() error { return nil }
