// Package ieee80211 implements the IEEE-802.11 MAC header codec and the
// 802.3 bridge described in spec.md §4.E. It is hand-rolled rather than
// delegated to gopacket/layers.Dot11 because this is one of the pieces the
// module owns end to end, the same way srgg-blecli owns its HCI framing
// instead of leaning on a BLE host stack for it.
package ieee80211

import (
	"encoding/binary"
	"fmt"
)

// MacAddress is a 48-bit IEEE 802 address.
type MacAddress [6]byte

// MacAddressFromBytes requires exactly 6 bytes.
func MacAddressFromBytes(b []byte) (MacAddress, error) {
	var m MacAddress
	if len(b) != 6 {
		return m, fmt.Errorf("ieee80211: mac address needs 6 bytes, got %d", len(b))
	}
	copy(m[:], b)
	return m, nil
}

// ToVec returns the address as a freshly allocated 6-byte slice.
func (m MacAddress) ToVec() []byte {
	out := make([]byte, 6)
	copy(out, m[:])
	return out
}

func (m MacAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsMulticast reports whether the lowest bit of the first octet is set.
func (m MacAddress) IsMulticast() bool {
	return m[0]&0x01 != 0
}

// IsBroadcast reports the all-ones address.
func (m MacAddress) IsBroadcast() bool {
	for _, b := range m {
		if b != 0xFF {
			return false
		}
	}
	return true
}

var BroadcastMac = MacAddress{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
var ZeroMac = MacAddress{}

// FrameControl is the decoded 2-octet Frame Control field.
type FrameControl struct {
	Version    uint8
	Type       uint8
	Subtype    uint8
	ToDS       bool
	FromDS     bool
	MoreFrags  bool
	Retry      bool
	PowerMgmt  bool
	MoreData   bool
	Protected  bool
	Order      bool
}

// Frame type values.
const (
	TypeMgmt = 0
	TypeCtrl = 1
	TypeData = 2
)

// Management subtypes used by this codec.
const (
	SubtypeBeacon    = 8
	SubtypeProbeReq  = 4
	SubtypeProbeResp = 5
)

func decodeFrameControl(v uint16) FrameControl {
	return FrameControl{
		Version:   uint8(v & 0x0003),
		Type:      uint8((v >> 2) & 0x0003),
		Subtype:   uint8((v >> 4) & 0x000F),
		ToDS:      v&0x0100 != 0,
		FromDS:    v&0x0200 != 0,
		MoreFrags: v&0x0400 != 0,
		Retry:     v&0x0800 != 0,
		PowerMgmt: v&0x1000 != 0,
		MoreData:  v&0x2000 != 0,
		Protected: v&0x4000 != 0,
		Order:     v&0x8000 != 0,
	}
}

func (fc FrameControl) encode() uint16 {
	v := uint16(fc.Version&0x03) | uint16(fc.Type&0x03)<<2 | uint16(fc.Subtype&0x0F)<<4
	if fc.ToDS {
		v |= 0x0100
	}
	if fc.FromDS {
		v |= 0x0200
	}
	if fc.MoreFrags {
		v |= 0x0400
	}
	if fc.Retry {
		v |= 0x0800
	}
	if fc.PowerMgmt {
		v |= 0x1000
	}
	if fc.MoreData {
		v |= 0x2000
	}
	if fc.Protected {
		v |= 0x4000
	}
	if fc.Order {
		v |= 0x8000
	}
	return v
}

// hasQoS reports whether a data-type frame's subtype carries a QoS Control field.
func hasQoS(fc FrameControl) bool {
	return fc.Type == TypeData && fc.Subtype&0x08 != 0
}

// Variant names the DS-mode address layout (spec.md §4.E table).
type Variant int

const (
	VariantIbss Variant = iota
	VariantFromAp
	VariantToAp
	VariantWds
)

func variantFor(fc FrameControl) Variant {
	switch {
	case !fc.FromDS && !fc.ToDS:
		return VariantIbss
	case fc.FromDS && !fc.ToDS:
		return VariantFromAp
	case !fc.FromDS && fc.ToDS:
		return VariantToAp
	default:
		return VariantWds
	}
}

// Frame is a decoded IEEE-802.11 MAC header plus payload.
type Frame struct {
	FC         FrameControl
	DurationId uint16
	Addr1      MacAddress
	Addr2      MacAddress
	Addr3      MacAddress
	Addr4      MacAddress // only meaningful when FC.ToDS && FC.FromDS
	SeqControl uint16
	HasQos     bool
	QosControl uint16
	Payload    []byte
}

// Variant reports which DS-mode address layout this frame uses.
func (f *Frame) Variant() Variant {
	return variantFor(f.FC)
}

// Dst, Src, Bssid project the physical addr1..addr4 fields onto the
// semantic roles defined per variant by spec.md §4.E's table.
func (f *Frame) Dst() MacAddress {
	switch f.Variant() {
	case VariantIbss, VariantFromAp:
		return f.Addr1
	case VariantToAp:
		return f.Addr3
	default: // Wds
		return f.Addr3
	}
}

func (f *Frame) Src() MacAddress {
	switch f.Variant() {
	case VariantIbss:
		return f.Addr2
	case VariantFromAp:
		return f.Addr3
	case VariantToAp:
		return f.Addr2
	default: // Wds
		return f.Addr4
	}
}

func (f *Frame) Bssid() (MacAddress, bool) {
	switch f.Variant() {
	case VariantIbss:
		return f.Addr3, true
	case VariantFromAp:
		return f.Addr2, true
	case VariantToAp:
		return f.Addr1, true
	default: // Wds has no bssid
		return MacAddress{}, false
	}
}

// IsMgmt, IsData report the frame's top-level class.
func (f *Frame) IsMgmt() bool { return f.FC.Type == TypeMgmt }
func (f *Frame) IsData() bool { return f.FC.Type == TypeData }

// IsBeacon reports type=Mgmt, subtype=Beacon.
func (f *Frame) IsBeacon() bool {
	return f.FC.Type == TypeMgmt && f.FC.Subtype == SubtypeBeacon
}

// IsProbeReq reports type=Mgmt, subtype=ProbeReq.
func (f *Frame) IsProbeReq() bool {
	return f.FC.Type == TypeMgmt && f.FC.Subtype == SubtypeProbeReq
}

// IsEapol requires decoding the LLC/SNAP header and checking its EtherType.
func (f *Frame) IsEapol() bool {
	ethertype, _, err := snapEtherType(f.Payload)
	if err != nil {
		return false
	}
	return ethertype == EtherTypeEAPOL
}

// Decode parses a raw 802.11 MAC header and trailing payload.
func Decode(data []byte) (*Frame, error) {
	if len(data) < 10 {
		return nil, fmt.Errorf("ieee80211: frame too short: %d bytes", len(data))
	}
	fc := decodeFrameControl(binary.LittleEndian.Uint16(data[0:2]))
	f := &Frame{FC: fc, DurationId: binary.LittleEndian.Uint16(data[2:4])}

	off := 4
	need := off + 6 + 6 + 6 + 2
	if len(data) < need {
		return nil, fmt.Errorf("ieee80211: frame too short for 3-address header: %d bytes", len(data))
	}
	addr1, _ := MacAddressFromBytes(data[off : off+6])
	addr2, _ := MacAddressFromBytes(data[off+6 : off+12])
	addr3, _ := MacAddressFromBytes(data[off+12 : off+18])
	f.Addr1, f.Addr2, f.Addr3 = addr1, addr2, addr3
	off += 18
	f.SeqControl = binary.LittleEndian.Uint16(data[off : off+2])
	off += 2

	if fc.ToDS && fc.FromDS {
		if len(data) < off+6 {
			return nil, fmt.Errorf("ieee80211: frame too short for addr4: %d bytes", len(data))
		}
		addr4, _ := MacAddressFromBytes(data[off : off+6])
		f.Addr4 = addr4
		off += 6
	}

	if hasQoS(fc) {
		if len(data) < off+2 {
			return nil, fmt.Errorf("ieee80211: frame too short for qos control: %d bytes", len(data))
		}
		f.HasQos = true
		f.QosControl = binary.LittleEndian.Uint16(data[off : off+2])
		off += 2
	}

	f.Payload = append([]byte(nil), data[off:]...)
	return f, nil
}

// Encode serialises a Frame back to raw bytes.
func Encode(f *Frame) ([]byte, error) {
	size := 4 + 6 + 6 + 6 + 2
	if f.FC.ToDS && f.FC.FromDS {
		size += 6
	}
	if f.HasQos {
		size += 2
	}
	size += len(f.Payload)

	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:2], f.FC.encode())
	binary.LittleEndian.PutUint16(buf[2:4], f.DurationId)
	off := 4
	copy(buf[off:off+6], f.Addr1[:])
	copy(buf[off+6:off+12], f.Addr2[:])
	copy(buf[off+12:off+18], f.Addr3[:])
	off += 18
	binary.LittleEndian.PutUint16(buf[off:off+2], f.SeqControl)
	off += 2

	if f.FC.ToDS && f.FC.FromDS {
		copy(buf[off:off+6], f.Addr4[:])
		off += 6
	}
	if f.HasQos {
		binary.LittleEndian.PutUint16(buf[off:off+2], f.QosControl)
		off += 2
	}
	copy(buf[off:], f.Payload)

	return buf, nil
}
