package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization pass against the remote bucket",
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

		slog.Info("sync ok", "resources", len(manifest.Resources))
		return nil
	},
}
