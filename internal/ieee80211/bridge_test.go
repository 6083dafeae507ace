package ieee80211

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIeee8023RoundTrip(t *testing.T) {
	e := &Ieee8023{
		Dst:       mkAddr(0x0A),
		Src:       mkAddr(0x0B),
		EtherType: EtherTypeIPv4,
		Payload:   []byte{1, 2, 3, 4, 5},
	}
	raw := e.Encode()
	got, err := DecodeIeee8023(raw)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestDecodeIeee8023RejectsShortFrame(t *testing.T) {
	_, err := DecodeIeee8023([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestToIeee8023FromFromApFrame(t *testing.T) {
	dst, src := mkAddr(0xAA), mkAddr(0xBB)
	bssid := mkAddr(0xCC)

	original := &Ieee8023{Dst: dst, Src: src, EtherType: EtherTypeIPv4, Payload: []byte{7, 8, 9}}
	wrapped := FromIeee8023(original, bssid)

	back, err := ToIeee8023(wrapped)
	require.NoError(t, err)
	assert.Equal(t, original.Dst, back.Dst)
	assert.Equal(t, original.Src, back.Src)
	assert.Equal(t, original.EtherType, back.EtherType)
	assert.Equal(t, original.Payload, back.Payload)
}

func TestToIeee8023FailsOnShortLLCPayload(t *testing.T) {
	f := ibssFrame([]byte{1, 2, 3})
	f.FC.Type = TypeData
	_, err := ToIeee8023(f)
	assert.Error(t, err)
}

func TestToIeee8023FailsOnNonDataFrame(t *testing.T) {
	f := &Frame{FC: FrameControl{Type: TypeMgmt}}
	_, err := ToIeee8023(f)
	assert.Error(t, err)
}

func TestIntoFromApFlipsDsBitsAndAddresses(t *testing.T) {
	bssid, src, dst := mkAddr(0x01), mkAddr(0x02), mkAddr(0x03)
	toAp := &Frame{
		FC:      FrameControl{Type: TypeData, ToDS: true, Retry: true},
		Addr1:   bssid,
		Addr2:   src,
		Addr3:   dst,
		Payload: []byte{1},
	}

	fromAp, err := IntoFromAp(toAp)
	require.NoError(t, err)
	assert.False(t, fromAp.FC.ToDS)
	assert.True(t, fromAp.FC.FromDS)
	assert.True(t, fromAp.FC.Retry) // other flags preserved
	assert.Equal(t, VariantFromAp, fromAp.Variant())
	assert.Equal(t, dst, fromAp.Dst())
	assert.Equal(t, src, fromAp.Src())
}

func TestIntoFromApRejectsNonToApFrame(t *testing.T) {
	f := ibssFrame(nil)
	_, err := IntoFromAp(f)
	assert.Error(t, err)
}

func encodeSsidIe(ssid string) []byte {
	return append([]byte{ssidElementId, byte(len(ssid))}, []byte(ssid)...)
}

func buildBeaconFrame(ssid string) *Frame {
	fixedParams := make([]byte, 12)
	payload := append(fixedParams, encodeSsidIe(ssid)...)
	return &Frame{
		FC:      FrameControl{Type: TypeMgmt, Subtype: SubtypeBeacon},
		Addr1:   BroadcastMac,
		Addr2:   mkAddr(0x10),
		Addr3:   mkAddr(0x10),
		Payload: payload,
	}
}

func TestGetSSIDFromBeaconFrame(t *testing.T) {
	f := buildBeaconFrame("AndroidWifi")
	raw, err := Encode(f)
	require.NoError(t, err)

	ssid, err := GetSSIDFromBeaconFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, "AndroidWifi", ssid)
}

func TestGetSSIDFromBeaconFrameRejectsNonBeacon(t *testing.T) {
	f := ibssFrame([]byte{1, 2, 3})
	raw, err := Encode(f)
	require.NoError(t, err)

	_, err = GetSSIDFromBeaconFrame(raw)
	assert.ErrorIs(t, err, ErrNotBeacon)
}
