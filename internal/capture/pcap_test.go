package capture

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPcapWriterBluetoothRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewPcapWriter(&buf, layers.LinkTypeBluetoothHCIH4WithPhdr)
	require.NoError(t, err)

	n, err := w.WriteBluetoothRecord(time.Now(), DirectionHostToController, PacketTypeCommand, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 16+4+3, n)
	assert.Greater(t, buf.Len(), 24) // global header + one record
}

func TestPcapWriterWifiRejectsUwb(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewPcapWriter(&buf, layers.LinkTypeIEEE802_11Radio)
	require.NoError(t, err)

	_, err = w.WriteUwbRecord(time.Now(), []byte{1})
	assert.Error(t, err)
}

func TestOpenPcapWriterSkipsGlobalHeader(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewPcapWriter(&buf, layers.LinkTypeBluetoothHCIH4WithPhdr)
	require.NoError(t, err)
	_, err = w.WriteBluetoothRecord(time.Now(), DirectionHostToController, PacketTypeEvent, []byte{9})
	require.NoError(t, err)
	sizeAfterFirst := buf.Len()

	w2 := OpenPcapWriter(&buf, layers.LinkTypeBluetoothHCIH4WithPhdr)
	n, err := w2.WriteBluetoothRecord(time.Now(), DirectionControllerToHost, PacketTypeEvent, []byte{9})
	require.NoError(t, err)
	assert.Equal(t, buf.Len(), sizeAfterFirst+n)
}

func TestPcapngWriterUwbRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewPcapngWriter(&buf)
	require.NoError(t, err)

	headerLen := buf.Len()
	assert.Equal(t, 28+20, headerLen)

	n, err := w.WriteUwbRecord(time.Now(), []byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, headerLen+n, buf.Len())
	// payload padded to 4 bytes -> 32 + 8 = 40
	assert.Equal(t, 40, n)
}

func TestPcapngWriterRejectsBluetoothAndWifi(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewPcapngWriter(&buf)
	require.NoError(t, err)

	_, err = w.WriteBluetoothRecord(time.Now(), DirectionHostToController, PacketTypeEvent, []byte{1})
	assert.Error(t, err)
	_, err = w.WriteWifiRecord(time.Now(), []byte{1})
	assert.Error(t, err)
}

func TestOpenPcapngWriterSkipsSectionBlocks(t *testing.T) {
	var buf bytes.Buffer
	w := OpenPcapngWriter(&buf)
	n, err := w.WriteUwbRecord(time.Now(), []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, buf.Len(), n)
}
