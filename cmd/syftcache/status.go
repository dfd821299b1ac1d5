package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cached entries after a synchronization pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		manifest, err := loadManifest()
		if err != nil {
			return err
		}

		svc, err := newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Synchronize(cmd.Context(), manifest); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, e := range svc.Entries() {
			fmt.Fprintf(out, "%s  %s  %s\n", green(e.Name), cyan(e.ETag), humanize.Bytes(uint64(e.Size)))
		}
		return nil
	},
}
