package main

import (
	"fmt"
	"sync/atomic"

	"netsim/internal/adaptor"
	"netsim/internal/bleadv"
	"netsim/internal/capture"
	"netsim/internal/chipkind"
	"netsim/internal/idgen"
	"netsim/internal/ieee80211"
	"netsim/internal/netsimconfig"
	"netsim/internal/registry"
)

// beaconSeq hands out a distinct locally-administered MAC per beacon chip
// created in this process.
var beaconSeq atomic.Uint32

func beaconMacBytes() []byte {
	n := beaconSeq.Add(1)
	return []byte{0x02, 0x00, 0x00, byte(n >> 16), byte(n >> 8), byte(n)}
}

// newAdaptorFactory builds the registry.AdaptorFactory the daemon runs in
// production: one real Backend per radio kind (spec.md §4.G), registering
// the chip's capture file before the adaptor exists so the first packet
// always has somewhere to land.
//
// devices is read, never written, by the returned factory - it only uses
// registry.Devices.ChipDeviceName to recover the device name AddChip already
// committed under lock (spec.md §4.H add_chip releases the lock before
// calling the factory).
func newAdaptorFactory(devices func() *registry.Devices, captures *capture.Registry, radioDefaults *netsimconfig.RadioDefaults) registry.AdaptorFactory {
	return func(chipID idgen.ChipId, kind chipkind.Kind) (*adaptor.Adaptor, error) {
		deviceName, ok := devices().ChipDeviceName(chipID)
		if !ok {
			deviceName = fmt.Sprintf("device-%d", chipID)
		}
		captures.OnChipAdded(chipID, deviceName, kind)

		backend, err := newBackend(kind, radioDefaults)
		if err != nil {
			return nil, err
		}
		return adaptor.New(chipID, kind, backend, captures), nil
	}
}

func newBackend(kind chipkind.Kind, radioDefaults *netsimconfig.RadioDefaults) (adaptor.Backend, error) {
	switch kind {
	case chipkind.Bluetooth:
		return adaptor.NewBluetoothBackend(), nil
	case chipkind.Wifi:
		return adaptor.NewPassthroughBackend("WIFI"), nil
	case chipkind.Uwb:
		return adaptor.NewPassthroughBackend("UWB"), nil
	case chipkind.BluetoothBeacon:
		addr, err := ieee80211.MacAddressFromBytes(beaconMacBytes())
		if err != nil {
			return nil, err
		}
		if radioDefaults == nil {
			radioDefaults = netsimconfig.DefaultRadioDefaults()
		}
		return adaptor.NewBeaconBackend(&bleadv.Beacon{
			Address:   addr,
			Mode:      beaconModeFromConfig(radioDefaults.Beacon.Mode),
			Scannable: radioDefaults.Beacon.Scannable,
			Data: bleadv.AdvertiseData{
				IncludeTxPowerLevel: true,
				TxPowerDbm:          beaconTxPowerFromConfig(radioDefaults.Beacon.TxPowerLevel).Dbm(0),
			},
		}), nil
	default:
		return nil, fmt.Errorf("netsimd: unsupported chip kind %s", kind.String())
	}
}

// beaconModeFromConfig maps a netsimconfig.RadioDefaults.Beacon.Mode string
// onto bleadv's AdvertiseMode, falling back to ModeLowPower for an unknown
// or empty value rather than rejecting the whole radio-defaults file.
func beaconModeFromConfig(mode string) bleadv.AdvertiseMode {
	switch mode {
	case "balanced":
		return bleadv.ModeBalanced
	case "low_latency":
		return bleadv.ModeLowLatency
	default:
		return bleadv.ModeLowPower
	}
}

func beaconTxPowerFromConfig(level string) bleadv.TxPowerLevel {
	switch level {
	case "ultra_low":
		return bleadv.PowerUltraLow
	case "low":
		return bleadv.PowerLow
	case "high":
		return bleadv.PowerHigh
	default:
		return bleadv.PowerMedium
	}
}
