package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the connected netsimd's version",
	RunE:  runVersion,
}

func runVersion(cmd *cobra.Command, args []string) error {
	c, err := newClient(flagInstance)
	if err != nil {
		return err
	}
	var body struct {
		Version string `json:"version"`
	}
	if err := c.do("GET", "/version", nil, &body); err != nil {
		return err
	}
	fmt.Println(body.Version)
	return nil
}
