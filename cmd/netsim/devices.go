package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var devicesShowChips bool

// devicesCmd implements the `devices [-c]` sub-command of spec.md §6's
// reference CLI surface, a direct translation of facade.ListDevice.
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List virtual devices",
	RunE:  runDevices,
}

func init() {
	devicesCmd.Flags().BoolVarP(&devicesShowChips, "chips", "c", false, "Also list each device's chips")
}

type chipView struct {
	Id   uint32
	Kind string
	Name string
}

type deviceView struct {
	Id      uint32
	Name    string
	Visible bool
	Builtin bool
	Chips   map[string]chipView
}

type listDeviceResponse struct {
	Devices      []deviceView `json:"devices"`
	LastModified time.Time    `json:"last_modified"`
}

func runDevices(cmd *cobra.Command, args []string) error {
	c, err := newClient(flagInstance)
	if err != nil {
		return err
	}
	var resp listDeviceResponse
	if err := c.do("GET", "/devices", nil, &resp); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVISIBLE\tBUILTIN")
	for _, d := range resp.Devices {
		fmt.Fprintf(tw, "%d\t%s\t%t\t%t\n", d.Id, d.Name, d.Visible, d.Builtin)
		if devicesShowChips {
			for _, ch := range d.Chips {
				fmt.Fprintf(tw, "  └ chip %d\t%s\t%s\t\n", ch.Id, ch.Kind, ch.Name)
			}
		}
	}
	return tw.Flush()
}
