package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/choreo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of choreo",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "choreo version %s\n", strings.TrimSpace(choreo.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
