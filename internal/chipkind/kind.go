// Package chipkind defines the radio-kind vocabulary shared by the registry,
// capture, transport, and adaptor packages (spec.md §3 Chip.kind).
package chipkind

import (
	"encoding/json"
	"fmt"
)

// Kind enumerates the radio variants a Chip can carry.
type Kind int

const (
	Unspecified Kind = iota
	Bluetooth
	Wifi
	Uwb
	BluetoothBeacon
)

func (k Kind) String() string {
	switch k {
	case Bluetooth:
		return "BLUETOOTH"
	case Wifi:
		return "WIFI"
	case Uwb:
		return "UWB"
	case BluetoothBeacon:
		return "BLUETOOTH_BEACON"
	default:
		return "UNSPECIFIED"
	}
}

// CaptureExtension returns the on-disk capture file extension for a chip
// kind: "pcapng" iff the kind is Uwb, else "pcap" (spec.md §6).
func (k Kind) CaptureExtension() string {
	if k == Uwb {
		return "pcapng"
	}
	return "pcap"
}

// MarshalJSON renders a Kind as its wire name (e.g. "BLUETOOTH_BEACON")
// rather than its underlying integer, so the HTTP front-end speaks the same
// enum names the CLI and discovery surfaces document (spec.md §6).
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts a wire name and maps it back to a Kind, defaulting
// to Unspecified for unknown names.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("chipkind: %w", err)
	}
	switch name {
	case "BLUETOOTH":
		*k = Bluetooth
	case "WIFI":
		*k = Wifi
	case "UWB":
		*k = Uwb
	case "BLUETOOTH_BEACON":
		*k = BluetoothBeacon
	default:
		*k = Unspecified
	}
	return nil
}

// IsBuiltin reports whether a device whose only chips are of this kind
// counts as a built-in device for idle-shutdown purposes (spec.md §3: BLE
// beacons created via CreateDevice are not counted).
func (k Kind) IsBuiltin() bool {
	return k == BluetoothBeacon
}
