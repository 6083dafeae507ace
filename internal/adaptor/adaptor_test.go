package adaptor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsim/internal/bleadv"
	"netsim/internal/capture"
	"netsim/internal/chipkind"
	"netsim/internal/idgen"
	"netsim/internal/ieee80211"
)

func newTestAdaptor(t *testing.T, kind chipkind.Kind) (*Adaptor, *MockBackend, *capture.Registry) {
	t.Helper()
	reg := capture.NewRegistry(t.TempDir(), nil)
	chipID := idgen.ChipId(1000)
	reg.OnChipAdded(chipID, "dev", kind)
	_, err := reg.Patch(chipID, capture.StateOn)
	require.NoError(t, err)

	backend := NewMockBackend()
	a := New(chipID, kind, backend, reg)
	return a, backend, reg
}

func TestHandleRequestDeliversAndCaptures(t *testing.T) {
	a, backend, reg := newTestAdaptor(t, chipkind.Bluetooth)

	err := a.HandleRequest([]byte{1, 2, 3}, capture.PacketTypeAcl)
	require.NoError(t, err)

	assert.Len(t, backend.Requests, 1)
	assert.Equal(t, int64(1), reg.List()[0].Records)
}

func TestHandleResponseCapturesControllerToHost(t *testing.T) {
	a, _, reg := newTestAdaptor(t, chipkind.Bluetooth)

	a.HandleResponse([]byte{9, 9}, capture.PacketTypeEvent)

	assert.Equal(t, int64(1), reg.List()[0].Records)
}

func TestPatchOnlyConsultsMatchingKind(t *testing.T) {
	a, _, _ := newTestAdaptor(t, chipkind.Bluetooth)

	err := a.Patch(PatchRequest{Wifi: &WifiSettings{Ssid: "ignored"}})
	require.NoError(t, err)
	assert.Nil(t, a.Get().Wifi)

	err = a.Patch(PatchRequest{Bluetooth: &BluetoothSettings{LowEnergy: true}})
	require.NoError(t, err)
	require.NotNil(t, a.Get().Bluetooth)
	assert.True(t, a.Get().Bluetooth.LowEnergy)
}

func TestResetZerosBackendCounters(t *testing.T) {
	a, backend, _ := newTestAdaptor(t, chipkind.Bluetooth)
	_ = a.HandleRequest([]byte{1}, capture.PacketTypeAcl)
	require.Len(t, backend.Requests, 1)

	a.Reset()
	assert.Equal(t, 1, backend.Resets)
	assert.True(t, a.Get().PowerOn)
}

func TestGetStatsReturnsBackendStats(t *testing.T) {
	a, _, _ := newTestAdaptor(t, chipkind.Bluetooth)
	_ = a.HandleRequest([]byte{1}, capture.PacketTypeAcl)

	stats := a.GetStats()
	require.Len(t, stats, 1)
	assert.Equal(t, "MOCK", stats[0].Kind)
	assert.Equal(t, uint32(1), stats[0].TxCount)
}

func TestBluetoothBackendSeparatesLeAndClassicPhys(t *testing.T) {
	b := NewBluetoothBackend()
	require.NoError(t, b.HandleRequest(nil, capture.PacketTypeAcl))
	require.NoError(t, b.HandleRequest(nil, capture.PacketTypeIso))

	stats := b.Stats(0)
	require.Len(t, stats, 2)
	byKind := map[string]uint32{stats[0].Kind: stats[0].TxCount, stats[1].Kind: stats[1].TxCount}
	assert.Equal(t, uint32(1), byKind["CLASSIC"])
	assert.Equal(t, uint32(1), byKind["BLE"])
}

func TestBeaconBackendRecordsTickHistory(t *testing.T) {
	beacon := &bleadv.Beacon{
		Address: ieee80211.MacAddress{1, 2, 3, 4, 5, 6},
		Mode:    bleadv.ModeLowLatency,
	}
	b := NewBeaconBackend(beacon)

	t0 := time.Now()
	pdu, err := b.Tick(t0)
	require.NoError(t, err)
	require.NotNil(t, pdu)

	t1 := t0.Add(200 * time.Millisecond)
	pdu, err = b.Tick(t1)
	require.NoError(t, err)
	require.NotNil(t, pdu)

	ticks := b.RecentTicks()
	require.Len(t, ticks, 2)
	assert.Equal(t, t0, ticks[0])
	assert.Equal(t, t1, ticks[1])

	// RecentTicks drains the buffer; a subsequent call with no new ticks
	// reports nothing until the next Tick.
	assert.Empty(t, b.RecentTicks())
}

func TestBeaconBackendResetClearsHistory(t *testing.T) {
	beacon := &bleadv.Beacon{Address: ieee80211.MacAddress{9, 9, 9, 9, 9, 9}, Mode: bleadv.ModeLowLatency}
	b := NewBeaconBackend(beacon)
	_, err := b.Tick(time.Now())
	require.NoError(t, err)

	b.Reset()
	assert.Empty(t, b.RecentTicks())
}
