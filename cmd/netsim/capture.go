package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// captureCmd groups the `capture list|patch|get` sub-commands of spec.md §6.
var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "List, toggle, or download packet captures",
}

var captureListCmd = &cobra.Command{
	Use:   "list [pattern...]",
	Short: "List captures, optionally filtered by id/device-name/chip-kind patterns",
	RunE:  runCaptureList,
}

var capturePatchCmd = &cobra.Command{
	Use:   "patch <id> <on|off>",
	Short: "Start or stop a capture",
	Args:  cobra.ExactArgs(2),
	RunE:  runCapturePatch,
}

var captureGetCmd = &cobra.Command{
	Use:   "get <id> [output-path]",
	Short: "Download a capture file",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runCaptureGet,
}

func init() {
	captureCmd.AddCommand(captureListCmd)
	captureCmd.AddCommand(capturePatchCmd)
	captureCmd.AddCommand(captureGetCmd)
}

type captureView struct {
	ChipId     uint32
	DeviceName string
	ChipKind   string
	Extension  string
	State      int
	Size       int64
	Records    int64
	Valid      bool
}

func runCaptureList(cmd *cobra.Command, args []string) error {
	c, err := newClient(flagInstance)
	if err != nil {
		return err
	}
	path := "/captures"
	if len(args) > 0 {
		q := url.Values{}
		for _, p := range args {
			q.Add("pattern", p)
		}
		path += "?" + q.Encode()
	}
	var resp struct {
		Captures []captureView `json:"captures"`
	}
	if err := c.do("GET", path, nil, &resp); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDEVICE\tKIND\tSTATE\tSIZE\tRECORDS\tVALID")
	for _, cap := range resp.Captures {
		state := color.RedString("off")
		if cap.State == 1 {
			state = color.GreenString("on")
		}
		valid := "true"
		if !cap.Valid {
			valid = color.YellowString("false")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n",
			cap.ChipId, cap.DeviceName, cap.ChipKind, state, cap.Size, cap.Records, valid)
	}
	return tw.Flush()
}

func runCapturePatch(cmd *cobra.Command, args []string) error {
	id, state := args[0], strings.ToLower(args[1])
	if state != "on" && state != "off" {
		return fmt.Errorf("netsim: state must be \"on\" or \"off\", got %q", state)
	}
	c, err := newClient(flagInstance)
	if err != nil {
		return err
	}
	body := struct {
		State string `json:"state"`
	}{State: state}
	return c.do("PATCH", "/captures/"+id, body, nil)
}

func runCaptureGet(cmd *cobra.Command, args []string) error {
	var chipID uint32
	if _, err := fmt.Sscanf(args[0], "%d", &chipID); err != nil {
		return fmt.Errorf("netsim: invalid capture id %q", args[0])
	}
	c, err := newClient(flagInstance)
	if err != nil {
		return err
	}
	filename, body, err := c.getCaptureFile(chipID)
	if err != nil {
		return err
	}
	defer body.Close()

	outPath := filename
	if len(args) == 2 {
		outPath = args[1]
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("netsim: create %s: %w", outPath, err)
	}
	defer out.Close()

	n, err := io.Copy(out, body)
	if err != nil {
		return fmt.Errorf("netsim: download capture %d: %w", chipID, err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", outPath, n)
	return nil
}
