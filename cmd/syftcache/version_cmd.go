package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmined/syftcache/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print SyftCache version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), version.DetailedWithApp())
		return err
	},
}
