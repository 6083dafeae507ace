// Package bleadv implements the BLE advertise engine described in
// spec.md §4.F: advertise mode/tx-power lookups, the 31-byte AD-field
// budget, the beacon tick state machine, and patch semantics. Named after
// the AD type vocabulary paypal-gatt's advertisement.go uses, and the
// AdvInd/AdvNonconnInd PDU naming dim13-goble's goble.go carries.
package bleadv

import (
	"fmt"
	"time"

	"netsim/internal/ieee80211"
)

// AdvertiseMode names a periodic advertising interval.
type AdvertiseMode int

const (
	ModeLowPower AdvertiseMode = iota
	ModeBalanced
	ModeLowLatency
	ModeCustom
)

// IntervalMillis returns the named interval, or customMs when Mode is ModeCustom.
func (m AdvertiseMode) IntervalMillis(customMs int) int {
	switch m {
	case ModeLowPower:
		return 1000
	case ModeBalanced:
		return 250
	case ModeLowLatency:
		return 100
	default:
		return customMs
	}
}

// TxPowerLevel names a preset transmit power, in dBm.
type TxPowerLevel int

const (
	PowerUltraLow TxPowerLevel = iota
	PowerLow
	PowerMedium
	PowerHigh
	PowerCustom
)

// Dbm returns the named level's dBm value, or customDbm when Level is PowerCustom.
func (l TxPowerLevel) Dbm(customDbm int8) int8 {
	switch l {
	case PowerUltraLow:
		return -21
	case PowerLow:
		return -15
	case PowerMedium:
		return -7
	case PowerHigh:
		return 1
	default:
		return customDbm
	}
}

// Assigned-numbers AD type values this builder emits.
const (
	adTypeCompleteLocalName        = 0x09
	adTypeTxPowerLevel             = 0x0A
	adTypeManufacturerSpecificData = 0xFF
)

const adBudget = 31

// AdvertiseData holds the fields an AdvertiseData builder serialises into
// the 31-byte AD budget, per spec.md §4.F.
type AdvertiseData struct {
	IncludeDeviceName     bool
	IncludeTxPowerLevel   bool
	DeviceName            string
	TxPowerDbm            int8
	ManufacturerData      []byte
}

// Build serialises the AD fields, failing if any single field or the
// cumulative length exceeds the 31-byte budget.
func (a *AdvertiseData) Build() ([]byte, error) {
	var out []byte

	if a.IncludeDeviceName {
		name := []byte(a.DeviceName)
		if len(name) > 29 {
			return nil, fmt.Errorf("bleadv: device name %d bytes exceeds 29-byte limit", len(name))
		}
		field := append([]byte{byte(len(name) + 1), adTypeCompleteLocalName}, name...)
		out = append(out, field...)
	}

	if a.IncludeTxPowerLevel {
		field := []byte{2, adTypeTxPowerLevel, byte(a.TxPowerDbm)}
		out = append(out, field...)
	}

	if len(a.ManufacturerData) > 0 {
		if len(a.ManufacturerData) < 2 {
			return nil, fmt.Errorf("bleadv: manufacturer data must be at least 2 bytes (company id)")
		}
		if len(a.ManufacturerData) > 29 {
			return nil, fmt.Errorf("bleadv: manufacturer data %d bytes exceeds 29-byte limit", len(a.ManufacturerData))
		}
		field := append([]byte{byte(len(a.ManufacturerData) + 1), adTypeManufacturerSpecificData}, a.ManufacturerData...)
		out = append(out, field...)
	}

	if len(out) > adBudget {
		return nil, fmt.Errorf("bleadv: advertise data %d bytes exceeds %d-byte AD budget", len(out), adBudget)
	}
	return out, nil
}

// PatchAdvertiseData applies patch onto base following spec.md §4.F patch
// semantics: a name/tx-power flag set by the patch or already set stays set;
// manufacturer data replaces the existing value only if non-empty in patch.
func PatchAdvertiseData(base AdvertiseData, patch AdvertiseData) AdvertiseData {
	out := base
	if patch.IncludeDeviceName {
		out.IncludeDeviceName = true
	}
	if patch.DeviceName != "" {
		out.DeviceName = patch.DeviceName
	}
	if patch.IncludeTxPowerLevel {
		out.IncludeTxPowerLevel = true
	}
	if patch.TxPowerDbm != 0 {
		out.TxPowerDbm = patch.TxPowerDbm
	}
	if len(patch.ManufacturerData) > 0 {
		out.ManufacturerData = patch.ManufacturerData
	}
	return out
}

// AdvertisingType names the LE Legacy Advertising PDU type emitted by a tick.
type AdvertisingType int

const (
	AdvInd        AdvertisingType = iota // connectable, scannable
	AdvScanInd                           // scannable, not connectable
	AdvNonconnInd                        // neither
)

// AdvertisingPdu is the PDU a beacon tick emits.
type AdvertisingPdu struct {
	Type        AdvertisingType
	Source      ieee80211.MacAddress
	Destination ieee80211.MacAddress
	Data        []byte
}

// Beacon is the per-chip advertising state machine driven by Tick.
type Beacon struct {
	Address        ieee80211.MacAddress
	Mode           AdvertiseMode
	CustomInterval int // ms, used when Mode == ModeCustom
	Scannable      bool
	Timeout        time.Duration // zero means no timeout
	Data           AdvertiseData

	advertiseStart time.Time
	advertiseLast  time.Time
	started        bool
}

// Tick advances the beacon state machine once, per spec.md §4.F:
//  1. stop if the configured timeout has elapsed since advertise_start
//  2. return nothing if the mode's interval hasn't elapsed since advertise_last
//  3. emit a PDU
//  4. update advertise_last, and advertise_start on the first tick
func (b *Beacon) Tick(now time.Time) (*AdvertisingPdu, error) {
	if b.started && b.Timeout > 0 && now.Sub(b.advertiseStart) > b.Timeout {
		return nil, nil
	}

	interval := time.Duration(b.Mode.IntervalMillis(b.CustomInterval)) * time.Millisecond
	if b.started && now.Sub(b.advertiseLast) <= interval {
		return nil, nil
	}

	payload, err := b.Data.Build()
	if err != nil {
		return nil, err
	}

	advType := AdvNonconnInd
	if b.Scannable {
		advType = AdvScanInd
	}

	pdu := &AdvertisingPdu{
		Type:        advType,
		Source:      b.Address,
		Destination: ieee80211.ZeroMac,
		Data:        payload,
	}

	if !b.started {
		b.advertiseStart = now
		b.started = true
	}
	b.advertiseLast = now

	return pdu, nil
}
