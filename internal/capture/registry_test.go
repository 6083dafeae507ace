package capture

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsim/internal/chipkind"
	"netsim/internal/idgen"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	return NewRegistry(dir, nil)
}

func TestRegistryOnChipAddedListsOffCapture(t *testing.T) {
	r := newTestRegistry(t)
	r.OnChipAdded(idgen.ChipId(1), "My Phone", chipkind.Bluetooth)

	caps := r.List()
	require.Len(t, caps, 1)
	assert.Equal(t, StateOff, caps[0].State)
	assert.Equal(t, ExtPcap, caps[0].Extension)
	assert.True(t, caps[0].Valid)
}

func TestRegistryUwbGetsPcapngExtension(t *testing.T) {
	r := newTestRegistry(t)
	r.OnChipAdded(idgen.ChipId(2), "Tag", chipkind.Uwb)

	caps := r.List()
	require.Len(t, caps, 1)
	assert.Equal(t, ExtPcapng, caps[0].Extension)
}

func TestRegistryPatchOnThenSendGrowsSizeAndRecords(t *testing.T) {
	r := newTestRegistry(t)
	chipID := idgen.ChipId(3)
	r.OnChipAdded(chipID, "Speaker", chipkind.Bluetooth)

	_, err := r.Patch(chipID, StateOn)
	require.NoError(t, err)

	r.Send(chipID, []byte{1, 2, 3}, PacketTypeAcl, DirectionHostToController)
	r.Send(chipID, []byte{4, 5}, PacketTypeAcl, DirectionControllerToHost)

	caps := r.List()
	require.Len(t, caps, 1)
	assert.Equal(t, int64(2), caps[0].Records)
	assert.Greater(t, caps[0].Size, int64(0))
}

func TestRegistryPatchOnIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	chipID := idgen.ChipId(4)
	r.OnChipAdded(chipID, "Watch", chipkind.Bluetooth)

	c1, err := r.Patch(chipID, StateOn)
	require.NoError(t, err)
	c2, err := r.Patch(chipID, StateOn)
	require.NoError(t, err)
	assert.Equal(t, c1.State, c2.State)
}

func TestRegistryPatchOffThenOnAppendsWithoutNewHeader(t *testing.T) {
	r := newTestRegistry(t)
	chipID := idgen.ChipId(5)
	r.OnChipAdded(chipID, "Sensor", chipkind.Bluetooth)

	_, err := r.Patch(chipID, StateOn)
	require.NoError(t, err)
	r.Send(chipID, []byte{1, 2}, PacketTypeAcl, DirectionHostToController)
	_, err = r.Patch(chipID, StateOff)
	require.NoError(t, err)

	before := r.List()[0].Size

	_, err = r.Patch(chipID, StateOn)
	require.NoError(t, err)
	r.Send(chipID, []byte{3, 4}, PacketTypeAcl, DirectionHostToController)

	after := r.List()[0]
	assert.Greater(t, after.Size, before)
	assert.Equal(t, int64(2), after.Records)
}

func TestRegistryGetFailsWhenEmpty(t *testing.T) {
	r := newTestRegistry(t)
	chipID := idgen.ChipId(6)
	r.OnChipAdded(chipID, "Empty", chipkind.Bluetooth)

	_, _, err := r.Get(chipID)
	assert.Error(t, err)
}

func TestRegistryGetReturnsReadableFile(t *testing.T) {
	r := newTestRegistry(t)
	chipID := idgen.ChipId(7)
	r.OnChipAdded(chipID, "Readable", chipkind.Bluetooth)

	_, err := r.Patch(chipID, StateOn)
	require.NoError(t, err)
	r.Send(chipID, []byte{1, 2, 3}, PacketTypeAcl, DirectionHostToController)
	_, err = r.Patch(chipID, StateOff)
	require.NoError(t, err)

	meta, f, err := r.Get(chipID)
	require.NoError(t, err)
	defer f.Close()
	assert.Greater(t, meta.Size, int64(0))

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, meta.Size, info.Size())
}

func TestRegistryGetUnknownChipIsNotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, _, err := r.Get(idgen.ChipId(999))
	require.Error(t, err)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestRegistryOnChipRemovedKeepsValidFalseButListable(t *testing.T) {
	r := newTestRegistry(t)
	chipID := idgen.ChipId(8)
	r.OnChipAdded(chipID, "Gone", chipkind.Bluetooth)
	_, err := r.Patch(chipID, StateOn)
	require.NoError(t, err)

	r.OnChipRemoved(chipID)

	caps := r.List()
	require.Len(t, caps, 1)
	assert.False(t, caps[0].Valid)
	assert.Equal(t, StateOff, caps[0].State)

	_, err = r.Patch(chipID, StateOn)
	assert.Error(t, err)
}

func TestRegistryFilePathReplacesSpaces(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir, nil)
	chipID := idgen.ChipId(9)
	r.OnChipAdded(chipID, "My Cool Phone", chipkind.Wifi)

	_, err := r.Patch(chipID, StateOn)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "My_Cool_Phone")
	assert.Equal(t, filepath.Ext(entries[0].Name()), ".pcap")
}

func TestRegistrySendIgnoredWhenCaptureOff(t *testing.T) {
	r := newTestRegistry(t)
	chipID := idgen.ChipId(10)
	r.OnChipAdded(chipID, "Idle", chipkind.Bluetooth)

	r.Send(chipID, []byte{1, 2, 3}, PacketTypeAcl, DirectionHostToController)

	caps := r.List()
	require.Len(t, caps, 1)
	assert.Equal(t, int64(0), caps[0].Records)
}
