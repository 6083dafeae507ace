package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// radioCmd implements the `radio <ble|classic|wifi|uwb> <up|down> <name>`
// sub-command of spec.md §6: it patches the named device's chip matching the
// given radio kind, toggling its kind-independent PowerOn field.
var radioCmd = &cobra.Command{
	Use:       "radio <ble|classic|wifi|uwb> <up|down> <name>",
	Short:     "Toggle a device's radio on or off",
	Args:      cobra.ExactArgs(3),
	ValidArgs: []string{"ble", "classic", "wifi", "uwb"},
	RunE:      runRadio,
}

// radioKindToChipKind maps the CLI's radio vocabulary onto the chip-kind
// wire strings internal/httpapi.parseKind understands. "ble" and "classic"
// both address a Bluetooth chip, since rootcanal multiplexes both PHYs onto
// one chip per spec.md §4.G.
var radioKindToChipKind = map[string]string{
	"ble":     "BLUETOOTH",
	"classic": "BLUETOOTH",
	"wifi":    "WIFI",
	"uwb":     "UWB",
}

func runRadio(cmd *cobra.Command, args []string) error {
	radio, state, name := args[0], args[1], args[2]
	kind, ok := radioKindToChipKind[radio]
	if !ok {
		return fmt.Errorf("netsim: unknown radio kind %q (want ble, classic, wifi, or uwb)", radio)
	}
	var powerOn bool
	switch state {
	case "up":
		powerOn = true
	case "down":
		powerOn = false
	default:
		return fmt.Errorf("netsim: unknown radio state %q (want up or down)", state)
	}

	c, err := newClient(flagInstance)
	if err != nil {
		return err
	}
	body := patchDeviceBody{
		Name: name,
		Chips: []chipPatchBody{{
			Kind:    kind,
			PowerOn: &powerOn,
		}},
	}
	return c.do("PATCH", "/devices", body, nil)
}
