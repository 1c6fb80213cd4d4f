package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/IvanBrykalov/tagcache/config"
	"github.com/IvanBrykalov/tagcache/internal/logging"
)

// newRootCmd creates the root command with all subcommands attached.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tagcache",
		Short: "In-memory cache with tags, TTLs and durable snapshots",
		Long: `tagcache runs a bounded in-memory cache with per-entry TTLs, LRU eviction,
tag-based invalidation and debounced snapshots to a file, SQLite or Redis.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (.yaml, .yml or .json); defaults apply when empty")

	root.AddCommand(
		newServeCmd(),
		newBenchCmd(),
		newInspectCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "tagcache %s\n", version)
				fmt.Fprintf(out, "commit: %s\n", commit)
				fmt.Fprintf(out, "built: %s\n", buildDate)
			},
		},
	)
	return root
}

// loadConfig reads --config, or returns the defaults when it is not set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

// newLogger builds the process logger from the config.
func newLogger(cmd *cobra.Command, cfg config.Config) (zerolog.Logger, error) {
	return logging.NewWithWriter(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}, cmd.ErrOrStderr())
}
