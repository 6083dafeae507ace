package main

import (
	"github.com/spf13/cobra"
)

// resetCmd implements the `reset` sub-command of spec.md §6, a direct
// translation of facade.Reset.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore every device to its defaults",
	RunE:  runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	c, err := newClient(flagInstance)
	if err != nil {
		return err
	}
	return c.do("POST", "/devices/reset", nil, nil)
}
