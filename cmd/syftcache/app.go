package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openmined/syftcache/internal/blob"
	"github.com/openmined/syftcache/internal/cache"
)

func loadConfig(cmd *cobra.Command) error {
	// config path
	if cmd.Flags().Changed("config") {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(defaultConfigDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	// Bind flags to viper
	viper.BindPFlag("manifest", cmd.Flags().Lookup("manifest"))
	viper.BindPFlag("cache_dir", cmd.Flags().Lookup("cache-dir"))
	viper.BindPFlag("bucket", cmd.Flags().Lookup("bucket"))
	viper.BindPFlag("region", cmd.Flags().Lookup("region"))
	viper.BindPFlag("endpoint", cmd.Flags().Lookup("endpoint"))

	viper.SetDefault("strategy", string(cache.StrategyList))
	viper.SetDefault("max_object_size", cache.DefaultMaxObjectSize)
	viper.SetDefault("workers", cache.DefaultFetchWorkers)
	viper.SetDefault("strict", false)

	// Set up environment variables (SYFTCACHE_ACCESS_KEY etc)
	viper.SetEnvPrefix("SYFTCACHE")
	viper.AutomaticEnv()

	return nil
}

func newService() (*cache.Service, error) {
	bucket := viper.GetString("bucket")
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required (flag --bucket, config 'bucket' or SYFTCACHE_BUCKET)")
	}

	var s3cfg *blob.S3Config
	if endpoint := viper.GetString("endpoint"); endpoint != "" {
		s3cfg = blob.WithMinioConfig(endpoint, bucket, viper.GetString("access_key"), viper.GetString("secret_key"))
	} else {
		s3cfg = blob.WithS3Config(bucket, viper.GetString("region"),
			viper.GetString("access_key"), viper.GetString("secret_key"), viper.GetBool("accelerate"))
	}

	client, err := blob.NewS3ClientWithConfig(s3cfg)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}

	return cache.New(client, viper.GetString("cache_dir"),
		cache.WithStrategy(cache.Strategy(viper.GetString("strategy"))),
		cache.WithMaxObjectSize(viper.GetInt64("max_object_size")),
		cache.WithFetchWorkers(viper.GetInt("workers")),
		cache.WithStrict(viper.GetBool("strict")),
	)
}

func loadManifest() (*cache.Manifest, error) {
	return cache.LoadManifest(viper.GetString("manifest"))
}
