package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/openmined/syftcache/internal/version"
)

var (
	home, _          = os.UserHomeDir()
	defaultCacheDir  = filepath.Join(home, "SyftCache")
	defaultManifest  = "manifest.yaml"
	defaultConfigDir = filepath.Join(home, ".syftcache")
)

var rootCmd = &cobra.Command{
	Use:     "syftcache",
	Short:   "SyftCache CLI - a revalidating local cache for remote JSON resources",
	Version: version.Detailed(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().SortFlags = false
	rootCmd.PersistentFlags().StringP("config", "c", filepath.Join(defaultConfigDir, "config.yaml"), "Config file")
	rootCmd.PersistentFlags().StringP("manifest", "m", defaultManifest, "Resource manifest file")
	rootCmd.PersistentFlags().StringP("cache-dir", "d", defaultCacheDir, "Local cache directory")
	rootCmd.PersistentFlags().String("bucket", "", "S3 bucket name")
	rootCmd.PersistentFlags().String("region", "us-east-1", "S3 region")
	rootCmd.PersistentFlags().String("endpoint", "", "Custom S3 endpoint (e.g. minio)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(syncCmd, getCmd, statusCmd, versionCmd)
}

func main() {
	level := slog.LevelInfo
	for _, arg := range os.Args[1:] {
		if arg == "--debug" {
			level = slog.LevelDebug
		}
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
