package ieee80211

import (
	"encoding/binary"
	"fmt"
)

// EtherType values this codec cares about.
const (
	EtherTypeEAPOL uint16 = 0x888E
	EtherTypeIPv4  uint16 = 0x0800
	EtherTypeARP   uint16 = 0x0806
	EtherTypeIPv6  uint16 = 0x86DD
)

// snapLLCHeaderLen is the fixed 8-octet 802.2 LLC/SNAP header
// (dsap, ssap, control, oui[3], ethertype[2]).
const snapLLCHeaderLen = 8

var snapLLCPrefix = [3]byte{0xAA, 0xAA, 0x03} // dsap, ssap, control
var snapOUI = [3]byte{0x00, 0x00, 0x00}

// snapEtherType decodes an 802.2 LLC/SNAP header, returning the carried
// EtherType and the remaining payload.
func snapEtherType(payload []byte) (uint16, []byte, error) {
	if len(payload) < snapLLCHeaderLen {
		return 0, nil, fmt.Errorf("ieee80211: payload shorter than LLC/SNAP header: %d bytes", len(payload))
	}
	if payload[0] != snapLLCPrefix[0] || payload[1] != snapLLCPrefix[1] || payload[2] != snapLLCPrefix[2] {
		return 0, nil, fmt.Errorf("ieee80211: not an LLC/SNAP header")
	}
	if payload[3] != snapOUI[0] || payload[4] != snapOUI[1] || payload[5] != snapOUI[2] {
		return 0, nil, fmt.Errorf("ieee80211: unsupported SNAP OUI")
	}
	ethertype := binary.BigEndian.Uint16(payload[6:8])
	return ethertype, payload[snapLLCHeaderLen:], nil
}

func encodeSnapHeader(ethertype uint16) []byte {
	buf := make([]byte, snapLLCHeaderLen)
	copy(buf[0:3], snapLLCPrefix[:])
	copy(buf[3:6], snapOUI[:])
	binary.BigEndian.PutUint16(buf[6:8], ethertype)
	return buf
}

// Ieee8023 is a classic Ethernet II frame: dst ‖ src ‖ ethertype ‖ payload.
type Ieee8023 struct {
	Dst       MacAddress
	Src       MacAddress
	EtherType uint16
	Payload   []byte
}

const ieee8023HeaderLen = 14

// DecodeIeee8023 parses an Ethernet-II frame; it requires at least the
// 14-byte header.
func DecodeIeee8023(data []byte) (*Ieee8023, error) {
	if len(data) < ieee8023HeaderLen {
		return nil, fmt.Errorf("ieee80211: 802.3 frame shorter than %d-byte header: %d bytes", ieee8023HeaderLen, len(data))
	}
	dst, _ := MacAddressFromBytes(data[0:6])
	src, _ := MacAddressFromBytes(data[6:12])
	ethertype := binary.BigEndian.Uint16(data[12:14])
	return &Ieee8023{
		Dst:       dst,
		Src:       src,
		EtherType: ethertype,
		Payload:   append([]byte(nil), data[ieee8023HeaderLen:]...),
	}, nil
}

// Encode serialises the frame back to its wire form.
func (e *Ieee8023) Encode() []byte {
	buf := make([]byte, ieee8023HeaderLen+len(e.Payload))
	copy(buf[0:6], e.Dst[:])
	copy(buf[6:12], e.Src[:])
	binary.BigEndian.PutUint16(buf[12:14], e.EtherType)
	copy(buf[14:], e.Payload)
	return buf
}

// ToIeee8023 bridges a data-type 802.11 frame carrying an LLC/SNAP payload
// into an Ethernet-II frame, per spec.md §4.E.
func ToIeee8023(f *Frame) (*Ieee8023, error) {
	if !f.IsData() {
		return nil, fmt.Errorf("ieee80211: cannot bridge a non-data frame to 802.3")
	}
	ethertype, rest, err := snapEtherType(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("ieee80211: 802.3 bridge: %w", err)
	}
	return &Ieee8023{
		Dst:       f.Dst(),
		Src:       f.Src(),
		EtherType: ethertype,
		Payload:   rest,
	}, nil
}

// FromIeee8023 wraps an 802.3 frame into an Ieee80211FromAp frame, using
// bssid as Addr2 (the access point's own address), per spec.md §4.E.
func FromIeee8023(e *Ieee8023, bssid MacAddress) *Frame {
	payload := append(encodeSnapHeader(e.EtherType), e.Payload...)
	return &Frame{
		FC: FrameControl{
			Type:    TypeData,
			FromDS:  true,
			ToDS:    false,
		},
		Addr1:   e.Dst,
		Addr2:   bssid,
		Addr3:   e.Src,
		Payload: payload,
	}
}

// IntoFromAp converts a ToAp frame into a FromAp frame, swapping the
// to_ds/from_ds bits and relabelling addresses while preserving every other
// flag (spec.md §4.E "DS flip").
func IntoFromAp(f *Frame) (*Frame, error) {
	if f.Variant() != VariantToAp {
		return nil, fmt.Errorf("ieee80211: into_from_ap requires a ToAp frame")
	}
	out := *f
	out.FC.ToDS = false
	out.FC.FromDS = true
	// ToAp: addr1=bssid, addr2=src, addr3=dst.
	// FromAp: addr1=dst,  addr2=bssid, addr3=src.
	out.Addr1, out.Addr2, out.Addr3 = f.Addr3, f.Addr1, f.Addr2
	return &out, nil
}

// ssidElementId is the Information Element tag for the SSID field in a
// beacon/probe management frame body.
const ssidElementId = 0

// ErrNotBeacon is returned by GetSSIDFromBeaconFrame for non-beacon input.
var ErrNotBeacon = fmt.Errorf("ieee80211: frame is not a beacon")

// GetSSIDFromBeaconFrame extracts the SSID information element from a
// beacon frame's fixed-length parameters (12 bytes: timestamp, beacon
// interval, capability info) followed by tagged parameters.
func GetSSIDFromBeaconFrame(raw []byte) (string, error) {
	f, err := Decode(raw)
	if err != nil {
		return "", err
	}
	if !f.IsBeacon() {
		return "", ErrNotBeacon
	}
	const fixedParamsLen = 12
	if len(f.Payload) < fixedParamsLen {
		return "", fmt.Errorf("ieee80211: beacon frame body too short")
	}
	ies := f.Payload[fixedParamsLen:]
	for i := 0; i+2 <= len(ies); {
		tag := ies[i]
		length := int(ies[i+1])
		if i+2+length > len(ies) {
			break
		}
		if tag == ssidElementId {
			return string(ies[i+2 : i+2+length]), nil
		}
		i += 2 + length
	}
	return "", fmt.Errorf("ieee80211: beacon frame has no SSID element")
}
