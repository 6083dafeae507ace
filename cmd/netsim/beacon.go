package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// beaconCmd groups the `beacon create|patch|remove` sub-commands of
// spec.md §6, the CLI's only way to reach CreateDevice's "must include a
// built-in radio" path (spec.md §4.H create_device).
var beaconCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Create, patch, or remove a BLE beacon device",
}

var beaconCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a BLE-beacon device",
	Args:  cobra.ExactArgs(1),
	RunE:  runBeaconCreate,
}

var beaconPatchCmd = &cobra.Command{
	Use:   "patch <name>",
	Short: "Toggle a beacon's advertising state",
	Args:  cobra.ExactArgs(1),
	RunE:  runBeaconPatch,
}

var beaconRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a beacon device",
	Args:  cobra.ExactArgs(1),
	RunE:  runBeaconRemove,
}

var beaconPatchPowerOn bool

func init() {
	beaconCmd.AddCommand(beaconCreateCmd)
	beaconCmd.AddCommand(beaconPatchCmd)
	beaconCmd.AddCommand(beaconRemoveCmd)

	beaconPatchCmd.Flags().BoolVar(&beaconPatchPowerOn, "on", true, "Advertise when true, stop when false")
}

func runBeaconCreate(cmd *cobra.Command, args []string) error {
	name := args[0]
	c, err := newClient(flagInstance)
	if err != nil {
		return err
	}
	body := deviceCreateBody{
		Name: name,
		Chips: []chipCreateBody{{
			Kind: "BLUETOOTH_BEACON",
			Name: "beacon0",
		}},
	}
	var resp struct {
		Id   uint32 `json:"id"`
		Name string `json:"name"`
	}
	if err := c.do("POST", "/devices", body, &resp); err != nil {
		return err
	}
	fmt.Printf("created beacon device %d (%s)\n", resp.Id, resp.Name)
	return nil
}

func runBeaconPatch(cmd *cobra.Command, args []string) error {
	name := args[0]
	powerOn := beaconPatchPowerOn
	c, err := newClient(flagInstance)
	if err != nil {
		return err
	}
	body := patchDeviceBody{
		Name: name,
		Chips: []chipPatchBody{{
			Kind:    "BLUETOOTH_BEACON",
			PowerOn: &powerOn,
		}},
	}
	return c.do("PATCH", "/devices", body, nil)
}

func runBeaconRemove(cmd *cobra.Command, args []string) error {
	name := args[0]
	c, err := newClient(flagInstance)
	if err != nil {
		return err
	}

	var resp listDeviceResponse
	if err := c.do("GET", "/devices", nil, &resp); err != nil {
		return err
	}
	for _, d := range resp.Devices {
		if d.Name != name {
			continue
		}
		for _, ch := range d.Chips {
			if ch.Kind == "BLUETOOTH_BEACON" {
				return c.do("DELETE", fmt.Sprintf("/chips/%d", ch.Id), nil, nil)
			}
		}
		return fmt.Errorf("netsim: device %q has no beacon chip", name)
	}
	return fmt.Errorf("netsim: no device named %q", name)
}
