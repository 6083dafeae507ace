package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

var flagInstance string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "netsim",
	Short: "Control a running netsimd instance",
	Long: `netsim is the command-line front-end for netsimd: it enumerates
virtual devices and chips, toggles radios, moves devices in 3-D space, and
manages packet captures, translating each sub-command into a single request
against the daemon's facade operations.`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(radioCmd)
	rootCmd.AddCommand(beaconCmd)
	rootCmd.AddCommand(captureCmd)

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagInstance, "instance", "", "netsimd instance name, matches its --instance flag")
}
