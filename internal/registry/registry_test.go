package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsim/internal/adaptor"
	"netsim/internal/chipkind"
	"netsim/internal/eventbus"
	"netsim/internal/idgen"
)

func mockAdaptorFactory(chipID idgen.ChipId, kind chipkind.Kind) (*adaptor.Adaptor, error) {
	return adaptor.New(chipID, kind, adaptor.NewMockBackend(), nil), nil
}

func newTestDevices(t *testing.T) (*Devices, *eventbus.Bus, *eventbus.Subscriber) {
	t.Helper()
	bus := eventbus.New()
	sub := bus.Subscribe(32)
	return New(bus, mockAdaptorFactory), bus, sub
}

func TestAddChipCreatesDeviceAndChipsWithSpecIds(t *testing.T) {
	d, _, sub := newTestDevices(t)

	devID1, chipID1, err := d.AddChip("host:1", "phone1", chipkind.Bluetooth, "bt0")
	require.NoError(t, err)
	devID2, chipID2, err := d.AddChip("host:1", "phone1", chipkind.Wifi, "wifi0")
	require.NoError(t, err)

	assert.Equal(t, idgen.DeviceId(1), devID1)
	assert.Equal(t, devID1, devID2)
	assert.Equal(t, idgen.ChipId(1000), chipID1)
	assert.Equal(t, idgen.ChipId(1001), chipID2)

	devices := d.ListDevice()
	require.Len(t, devices, 1)
	assert.Equal(t, 2, devices[0].Chips.Len())

	var chipAdded int
	draining := true
	for draining {
		select {
		case e := <-sub.C():
			if e.Kind == eventbus.ChipAdded {
				chipAdded++
			}
		default:
			draining = false
		}
	}
	assert.Equal(t, 2, chipAdded)
}

func TestAddChipDuplicateKindNameFails(t *testing.T) {
	d, _, _ := newTestDevices(t)
	_, _, err := d.AddChip("host:1", "phone1", chipkind.Bluetooth, "bt0")
	require.NoError(t, err)

	_, _, err = d.AddChip("host:1", "phone1", chipkind.Bluetooth, "bt0")
	require.Error(t, err)
	var dup *DuplicateChipError
	assert.ErrorAs(t, err, &dup)
}

func TestPatchDeviceByExactName(t *testing.T) {
	d, _, _ := newTestDevices(t)
	_, _, err := d.AddChip("host:1", "phone1", chipkind.Bluetooth, "bt0")
	require.NoError(t, err)

	visible := false
	pos := Position{X: 1.1, Y: 2.2, Z: 3.3}
	_, err = d.PatchDevice(nil, "phone1", DevicePatch{Visible: &visible, Position: &pos})
	require.NoError(t, err)

	devices := d.ListDevice()
	require.Len(t, devices, 1)
	assert.False(t, devices[0].Visible)
	assert.InDelta(t, 1.1, devices[0].Position.X, 0.001)
}

func TestPatchDeviceAmbiguousSubstringFails(t *testing.T) {
	d, _, _ := newTestDevices(t)
	_, _, err := d.AddChip("host:1", "phoneA", chipkind.Bluetooth, "bt0")
	require.NoError(t, err)
	_, _, err = d.AddChip("host:2", "phoneB", chipkind.Bluetooth, "bt0")
	require.NoError(t, err)

	_, err = d.PatchDevice(nil, "phone", DevicePatch{})
	require.Error(t, err)
	var amb *AmbiguousMatchError
	assert.ErrorAs(t, err, &amb)
}

func TestPatchDeviceUniqueSubstringMatches(t *testing.T) {
	d, _, _ := newTestDevices(t)
	_, _, err := d.AddChip("host:1", "phoneA", chipkind.Bluetooth, "bt0")
	require.NoError(t, err)

	visible := false
	_, err = d.PatchDevice(nil, "honeA", DevicePatch{Visible: &visible})
	require.NoError(t, err)
	assert.False(t, d.ListDevice()[0].Visible)
}

func TestRemoveChipLastChipRemovesDevice(t *testing.T) {
	d, _, sub := newTestDevices(t)
	_, chipID, err := d.AddChip("host:1", "phone1", chipkind.Bluetooth, "bt0")
	require.NoError(t, err)

	_, err = d.DeleteChip(chipID)
	require.NoError(t, err)
	assert.Empty(t, d.ListDevice())

	var sawDeviceRemoved, sawChipRemoved bool
	draining := true
	for draining {
		select {
		case e := <-sub.C():
			if e.Kind == eventbus.DeviceRemoved {
				sawDeviceRemoved = true
			}
			if e.Kind == eventbus.ChipRemoved {
				sawChipRemoved = true
				assert.Equal(t, 0, e.RemainingNonBuiltinDevices)
			}
		default:
			draining = false
		}
	}
	assert.True(t, sawDeviceRemoved)
	assert.True(t, sawChipRemoved)
}

func TestCreateDeviceRequiresBuiltinChips(t *testing.T) {
	d, _, _ := newTestDevices(t)
	_, err := d.CreateDevice(CreateDeviceRequest{Chips: []CreateChipRequest{{Kind: chipkind.Wifi}}})
	assert.Error(t, err)
}

func TestCreateDeviceDefaultsNameAndPublishesEvents(t *testing.T) {
	d, _, sub := newTestDevices(t)
	devID, err := d.CreateDevice(CreateDeviceRequest{Chips: []CreateChipRequest{{Kind: chipkind.BluetoothBeacon}}})
	require.NoError(t, err)

	devices := d.ListDevice()
	require.Len(t, devices, 1)
	assert.Equal(t, fmt.Sprintf("device-%d", devID), devices[0].Name)
	assert.True(t, devices[0].Builtin)

	var sawDeviceAdded, sawChipAdded bool
	draining := true
	for draining {
		select {
		case e := <-sub.C():
			if e.Kind == eventbus.DeviceAdded {
				sawDeviceAdded = true
			}
			if e.Kind == eventbus.ChipAdded {
				sawChipAdded = true
			}
		default:
			draining = false
		}
	}
	assert.True(t, sawDeviceAdded)
	assert.True(t, sawChipAdded)
}

func TestGetDistanceComputesEuclidean(t *testing.T) {
	d, _, _ := newTestDevices(t)
	_, chipA, err := d.AddChip("host:1", "a", chipkind.Bluetooth, "bt0")
	require.NoError(t, err)
	_, chipB, err := d.AddChip("host:2", "b", chipkind.Bluetooth, "bt0")
	require.NoError(t, err)

	pos := Position{X: 1, Y: 4, Z: 5}
	_, err = d.PatchDevice(nil, "b", DevicePatch{Position: &pos})
	require.NoError(t, err)

	dist, err := d.GetDistance(chipA, chipB)
	require.NoError(t, err)
	assert.InDelta(t, 6.4807, dist, 0.001) // sqrt(1+16+25)
}

func TestResetRestoresDefaultsAndZeroesCounters(t *testing.T) {
	d, _, sub := newTestDevices(t)
	_, chipID, err := d.AddChip("host:1", "a", chipkind.Bluetooth, "bt0")
	require.NoError(t, err)

	visible := false
	pos := Position{X: 9, Y: 9, Z: 9}
	_, err = d.PatchDevice(nil, "a", DevicePatch{Visible: &visible, Position: &pos})
	require.NoError(t, err)

	d.Reset()

	devices := d.ListDevice()
	require.Len(t, devices, 1)
	assert.True(t, devices[0].Visible)
	assert.Equal(t, Position{}, devices[0].Position)

	chip, ok := devices[0].Chips.Get(chipID)
	require.True(t, ok)
	assert.True(t, chip.Adaptor.Get().PowerOn)

	var sawReset bool
	draining := true
	for draining {
		select {
		case e := <-sub.C():
			if e.Kind == eventbus.DeviceReset {
				sawReset = true
			}
		default:
			draining = false
		}
	}
	assert.True(t, sawReset)
}
