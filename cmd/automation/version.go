package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"portal_automation/internal/appinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), appinfo.Display())
	},
}
