// Package main is the entry point for the usagewatch daemon and its
// history export tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/j-veylop/usagewatch/internal/version"
)

func main() {
	root := cobra.Command{
		Use:           "usagewatch",
		Short:         "usagewatch tracks metered API usage across credential profiles.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(NewRunCommand())
	root.AddCommand(NewExportCommand())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.Info())
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
