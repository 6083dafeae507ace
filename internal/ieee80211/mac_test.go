package ieee80211

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMacAddressRoundTrip(t *testing.T) {
	raw := []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	m, err := MacAddressFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, m.ToVec())
}

func TestMacAddressRejectsWrongLength(t *testing.T) {
	_, err := MacAddressFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestMacAddressIsMulticast(t *testing.T) {
	assert.True(t, MacAddress{0x01, 0, 0, 0, 0, 0}.IsMulticast())
	assert.False(t, MacAddress{0x02, 0, 0, 0, 0, 0}.IsMulticast())
}

func mkAddr(b byte) MacAddress {
	return MacAddress{b, b, b, b, b, b}
}

func ibssFrame(payload []byte) *Frame {
	return &Frame{
		FC:         FrameControl{Type: TypeData},
		DurationId: 0x1234,
		Addr1:      mkAddr(0x01),
		Addr2:      mkAddr(0x02),
		Addr3:      mkAddr(0x03),
		SeqControl: 0x0010,
		Payload:    payload,
	}
}

func TestDecodeEncodeRoundTripIbss(t *testing.T) {
	f := ibssFrame([]byte{9, 9, 9})
	raw, err := Encode(f)
	require.NoError(t, err)
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, f, got)
	assert.Equal(t, VariantIbss, got.Variant())
}

func TestDecodeEncodeRoundTripFromAp(t *testing.T) {
	f := ibssFrame([]byte{1, 2})
	f.FC.FromDS = true
	raw, err := Encode(f)
	require.NoError(t, err)
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, f, got)
	assert.Equal(t, VariantFromAp, got.Variant())
	assert.Equal(t, f.Addr1, got.Dst())
	assert.Equal(t, f.Addr3, got.Src())
}

func TestDecodeEncodeRoundTripToAp(t *testing.T) {
	f := ibssFrame([]byte{1, 2})
	f.FC.ToDS = true
	raw, err := Encode(f)
	require.NoError(t, err)
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, f, got)
	assert.Equal(t, VariantToAp, got.Variant())
	assert.Equal(t, f.Addr3, got.Dst())
	assert.Equal(t, f.Addr2, got.Src())
}

func TestDecodeEncodeRoundTripWds(t *testing.T) {
	f := ibssFrame([]byte{1, 2, 3, 4})
	f.FC.ToDS = true
	f.FC.FromDS = true
	f.Addr4 = mkAddr(0x04)
	raw, err := Encode(f)
	require.NoError(t, err)
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, f, got)
	assert.Equal(t, VariantWds, got.Variant())
	assert.Equal(t, f.Addr3, got.Dst())
	assert.Equal(t, f.Addr4, got.Src())
}

func TestDecodeEncodeRoundTripWithQosControl(t *testing.T) {
	f := ibssFrame([]byte{1, 2, 3})
	f.FC.Subtype = 0x08
	f.HasQos = true
	f.QosControl = 0xBEEF
	raw, err := Encode(f)
	require.NoError(t, err)
	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestIsBeaconAndIsProbeReq(t *testing.T) {
	beacon := &Frame{FC: FrameControl{Type: TypeMgmt, Subtype: SubtypeBeacon}}
	assert.True(t, beacon.IsBeacon())
	assert.False(t, beacon.IsProbeReq())

	probe := &Frame{FC: FrameControl{Type: TypeMgmt, Subtype: SubtypeProbeReq}}
	assert.True(t, probe.IsProbeReq())
	assert.False(t, probe.IsBeacon())
}

func TestIsEapolRequiresLLCSNAP(t *testing.T) {
	f := ibssFrame(encodeSnapHeader(EtherTypeEAPOL))
	f.FC.Type = TypeData
	assert.True(t, f.IsEapol())

	nonEapol := ibssFrame(encodeSnapHeader(EtherTypeIPv4))
	assert.False(t, nonEapol.IsEapol())

	tooShort := ibssFrame([]byte{1, 2, 3})
	assert.False(t, tooShort.IsEapol())
}
