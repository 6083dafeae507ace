package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"netsim/internal/chipkind"
	"netsim/internal/idgen"
	"netsim/internal/registry"
	"netsim/internal/transport"
)

// StartupChip is one chip entry of a StartupInfo device (spec.md §6).
type StartupChip struct {
	Kind        string `json:"kind"`
	Id          int    `json:"id"`
	Manufacturer string `json:"manufacturer"`
	ProductName string `json:"product_name"`
	FdIn        int    `json:"fd_in"`
	FdOut       int    `json:"fd_out"`
	Loopback    bool   `json:"loopback"`
}

// StartupDevice is one device entry of a StartupInfo document.
type StartupDevice struct {
	Name  string        `json:"name"`
	Chips []StartupChip `json:"chips"`
}

// StartupInfo is the JSON document passed on the daemon command line to
// preregister pipe-transport-backed devices (spec.md §6).
type StartupInfo struct {
	Devices []StartupDevice `json:"devices"`
}

// ParseStartupInfo decodes a StartupInfo JSON document.
func ParseStartupInfo(raw string) (StartupInfo, error) {
	var info StartupInfo
	if raw == "" {
		return info, nil
	}
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return StartupInfo{}, fmt.Errorf("netsimd: parse startup-info: %w", err)
	}
	return info, nil
}

func parseChipKind(s string) chipkind.Kind {
	switch s {
	case "BLUETOOTH":
		return chipkind.Bluetooth
	case "WIFI":
		return chipkind.Wifi
	case "UWB":
		return chipkind.Uwb
	case "BLUETOOTH_BEACON":
		return chipkind.BluetoothBeacon
	default:
		return chipkind.Unspecified
	}
}

// wireStartupDevices registers every device/chip named in info against a
// pipe transport built from its inherited fd_in/fd_out file descriptors,
// per spec.md §4.I ("Cuttlefish-style transport"). Inherited descriptors are
// marked close-on-exec so a later-spawned child process never inherits a
// netsimd socket it has no business holding.
func wireStartupDevices(ctx context.Context, info StartupInfo, devices *registry.Devices, transports *transport.Registry, logger *logrus.Logger) error {
	for _, dev := range info.Devices {
		guid := uuid.NewString()
		for _, c := range dev.Chips {
			kind := parseChipKind(c.Kind)
			_, chipID, err := devices.AddChip(guid, dev.Name, kind, "")
			if err != nil {
				return fmt.Errorf("netsimd: wire startup device %q: %w", dev.Name, err)
			}

			in, out, err := openPipeFiles(c.FdIn, c.FdOut)
			if err != nil {
				return fmt.Errorf("netsimd: open pipe for chip %d: %w", chipID, err)
			}

			pt := transport.NewPipeTransport(in)
			transports.Register(chipID, pt)

			reader := &transport.PipeReader{
				ChipId: chipID,
				Kind:   kind,
				R:      transport.BufferedFdReader(out, logger),
				Handle: newRequestHandler(devices, transports),
				Logger: logger,
			}
			reader.Run(ctx, func(chipID idgen.ChipId) {
				transports.Unregister(chipID)
				if _, err := devices.DeleteChip(chipID); err != nil {
					logger.WithError(err).WithField("chip_id", chipID).Warn("netsimd: delete chip on pipe close")
				}
			})
		}
	}
	return nil
}

// openPipeFiles wraps a pair of inherited file descriptors as *os.File,
// clearing their close-on-exec bit's inverse - i.e. setting CLOEXEC so
// they aren't leaked into anything netsimd itself later execs.
func openPipeFiles(fdIn, fdOut int) (*os.File, *os.File, error) {
	if fdIn < 0 || fdOut < 0 {
		return nil, nil, fmt.Errorf("invalid fd_in/fd_out (%d, %d)", fdIn, fdOut)
	}
	unix.CloseOnExec(fdIn)
	unix.CloseOnExec(fdOut)
	return os.NewFile(uintptr(fdIn), fmt.Sprintf("fd%d-in", fdIn)),
		os.NewFile(uintptr(fdOut), fmt.Sprintf("fd%d-out", fdOut)), nil
}
