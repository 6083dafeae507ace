// Package adaptor implements the WirelessAdaptor interface of spec.md §4.G:
// the single surface the registry and transport dispatcher see for every
// radio kind. Bluetooth/Wi-Fi/UWB back-ends (rootcanal, hostapd+libslirp,
// pica) are opaque per spec.md §1 Non-goals; this package owns the contract
// and carries simple in-process back-ends good enough to drive the
// simulation's distance-only radio model, following the variant-struct
// idiom internal/device/device.go uses for connection/error state instead
// of reaching for a heap of small interfaces.
package adaptor

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/durationpb"

	"netsim/internal/bleadv"
	"netsim/internal/capture"
	"netsim/internal/chipkind"
	"netsim/internal/eventbus"
	"netsim/internal/idgen"
	"netsim/internal/ieee80211"
)

// Backend is the opaque per-chip radio back-end an Adaptor drives.
type Backend interface {
	// HandleRequest delivers a guest->controller packet into the back-end.
	HandleRequest(payload []byte, packetType capture.PacketType) error
	// Reset restores default back-end state.
	Reset()
	// Stats reports one RadioStat per PHY the back-end drives.
	Stats(uptime time.Duration) []eventbus.RadioStat
	// Close unregisters the back-end, e.g. from a shared connector.
	Close() error
}

// PatchRequest carries kind-specific settings; only the field matching the
// chip's kind is consulted. PowerOn is kind-independent: it backs the
// `radio <kind> <up|down> <name>` CLI surface (spec.md §6).
type PatchRequest struct {
	PowerOn   *bool
	Bluetooth *BluetoothSettings
	Beacon    *BeaconSettings
	Wifi      *WifiSettings
	Uwb       *UwbSettings
}

// State is a generic chip power state shared by every kind.
type State struct {
	Kind      chipkind.Kind
	PowerOn   bool
	Bluetooth *BluetoothSettings
	Beacon    *BeaconSettings
	Wifi      *WifiSettings
	Uwb       *UwbSettings
}

// BluetoothSettings mirrors the rootcanal-backed chip's patchable fields.
type BluetoothSettings struct {
	LowEnergy bool
	Classic   bool
}

// BeaconSettings mirrors the in-process BLE beacon tick engine's fields.
type BeaconSettings struct {
	Address        ieee80211.MacAddress
	Mode           bleadv.AdvertiseMode
	CustomInterval int
	TxPower        bleadv.TxPowerLevel
	CustomTxDbm    int8
	Scannable      bool
	TimeoutSeconds int
	Data           bleadv.AdvertiseData
}

// WifiSettings mirrors the hostapd+slirp-backed chip's patchable fields.
type WifiSettings struct {
	Ssid string
}

// UwbSettings mirrors the pica-backed chip's patchable fields.
type UwbSettings struct {
	SessionId uint32
}

// Adaptor is the one object the registry and transport dispatcher touch.
type Adaptor struct {
	ChipId   idgen.ChipId
	Kind     chipkind.Kind
	backend  Backend
	captures *capture.Registry
	state    State
	start    time.Time
}

// New constructs an adaptor around an already-built back-end. Construction
// of the back-end itself (which may register with a shared connector) is
// the registry's job, performed outside its write lock per spec.md §4.H
// add_chip step 3.
func New(chipID idgen.ChipId, kind chipkind.Kind, backend Backend, captures *capture.Registry) *Adaptor {
	return &Adaptor{
		ChipId:   chipID,
		Kind:     kind,
		backend:  backend,
		captures: captures,
		state:    State{Kind: kind, PowerOn: true},
		start:    time.Now(),
	}
}

// HandleRequest is the guest->controller path: deliver to the back-end, then
// capture host->controller direction (spec.md §4.G).
func (a *Adaptor) HandleRequest(payload []byte, pt capture.PacketType) error {
	if err := a.backend.HandleRequest(payload, pt); err != nil {
		return fmt.Errorf("adaptor: handle_request: %w", err)
	}
	a.captures.Send(a.ChipId, payload, pt, capture.DirectionHostToController)
	return nil
}

// HandleResponse is the controller->guest path, invoked indirectly by the
// back-end via the dispatcher's response sink: it captures
// controller->host direction (the actual guest delivery is the transport
// dispatcher's job, spec.md §4.I).
func (a *Adaptor) HandleResponse(payload []byte, pt capture.PacketType) {
	a.captures.Send(a.ChipId, payload, pt, capture.DirectionControllerToHost)
}

// Patch applies kind-specific settings; only the field matching the chip's
// kind is consulted (spec.md §4.G).
func (a *Adaptor) Patch(req PatchRequest) error {
	if req.PowerOn != nil {
		a.state.PowerOn = *req.PowerOn
	}
	switch a.Kind {
	case chipkind.Bluetooth:
		if req.Bluetooth != nil {
			a.state.Bluetooth = req.Bluetooth
		}
	case chipkind.BluetoothBeacon:
		if req.Beacon != nil {
			if a.state.Beacon == nil {
				a.state.Beacon = req.Beacon
				break
			}
			merged := *a.state.Beacon
			merged.Data = bleadv.PatchAdvertiseData(merged.Data, req.Beacon.Data)
			if req.Beacon.Address != (ieee80211.MacAddress{}) {
				merged.Address = req.Beacon.Address
			}
			merged.Mode = req.Beacon.Mode
			merged.CustomInterval = req.Beacon.CustomInterval
			merged.TxPower = req.Beacon.TxPower
			merged.CustomTxDbm = req.Beacon.CustomTxDbm
			merged.Scannable = req.Beacon.Scannable
			merged.TimeoutSeconds = req.Beacon.TimeoutSeconds
			a.state.Beacon = &merged
		}
	case chipkind.Wifi:
		if req.Wifi != nil {
			a.state.Wifi = req.Wifi
		}
	case chipkind.Uwb:
		if req.Uwb != nil {
			a.state.Uwb = req.Uwb
		}
	}
	return nil
}

// Get returns a value copy of the current state. Traffic counters are not
// part of State; GetStats reports them.
func (a *Adaptor) Get() State {
	return a.state
}

// Reset restores default settings: state=on, counters zeroed.
func (a *Adaptor) Reset() {
	a.state.PowerOn = true
	a.backend.Reset()
	a.start = time.Now()
}

// GetStats reports one RadioStat per PHY the back-end drives. The uptime is
// round-tripped through durationpb's seconds+nanos representation, the same
// wire-shaped construction timestamppb.Now() gives capture.Registry, so a
// future gRPC stats surface can hand the value straight to a client without
// a second conversion.
func (a *Adaptor) GetStats() []eventbus.RadioStat {
	return a.backend.Stats(durationpb.New(time.Since(a.start)).AsDuration())
}

// Close tears the adaptor down: unregister from the back-end and flush
// whatever capture state remains (spec.md §4.H remove_chip).
func (a *Adaptor) Close() error {
	if a.captures != nil {
		a.captures.OnChipRemoved(a.ChipId)
	}
	return a.backend.Close()
}
