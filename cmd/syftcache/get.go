package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmined/syftcache/internal/cache"
)

var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print the cached bytes of a resource (syncs first)",
	Args:  cobra.ExactArgs(1),
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

		data, err := svc.GetRaw(cache.Resource{Name: args[0]})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}
