package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// moveCmd implements the `move <name> <x> <y> [z]` sub-command of spec.md
// §6, translating to a PatchDevice request scoped to position only.
var moveCmd = &cobra.Command{
	Use:   "move <name> <x> <y> [z]",
	Short: "Move a device in 3-D space",
	Args:  cobra.RangeArgs(3, 4),
	RunE:  runMove,
}

func runMove(cmd *cobra.Command, args []string) error {
	name := args[0]
	x, err := strconv.ParseFloat(args[1], 32)
	if err != nil {
		return fmt.Errorf("netsim: invalid x %q: %w", args[1], err)
	}
	y, err := strconv.ParseFloat(args[2], 32)
	if err != nil {
		return fmt.Errorf("netsim: invalid y %q: %w", args[2], err)
	}
	var z float64
	if len(args) == 4 {
		z, err = strconv.ParseFloat(args[3], 32)
		if err != nil {
			return fmt.Errorf("netsim: invalid z %q: %w", args[3], err)
		}
	}

	c, err := newClient(flagInstance)
	if err != nil {
		return err
	}
	body := patchDeviceBody{
		Name:     name,
		Position: &positionBody{X: float32(x), Y: float32(y), Z: float32(z)},
	}
	return c.do("PATCH", "/devices", body, nil)
}
