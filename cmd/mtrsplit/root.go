package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/JonMunkholm/mtrsplit/internal/config"
	"github.com/JonMunkholm/mtrsplit/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	envFile    string
	configFile string
}

func newRootCmd() *cobra.Command {
	var opts globalOptions

	root := &cobra.Command{
		Use:           "mtrsplit",
		Short:         "Split the MTR table into filled and empty tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Load environment from this file (default: .env if present)")
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file (default: $"+config.ConfigFileEnv+")")

	root.AddCommand(
		newRunCmd(&opts),
		newSchemaCmd(&opts),
		newVersionCmd(),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mtrsplit %s\n", version)
		},
	}
}

// loadConfig loads the .env file, the configuration and sets up logging.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	// Overload overwrites existing env vars
	if opts.envFile != "" {
		if err := godotenv.Overload(opts.envFile); err != nil {
			return nil, fmt.Errorf("config file %s: %w", opts.envFile, err)
		}
	} else if err := godotenv.Overload(); err == nil {
		slog.Debug("loaded .env file (overwriting existing env vars)")
	}

	path := opts.configFile
	if path == "" {
		path = os.Getenv(config.ConfigFileEnv)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}

	logging.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	return cfg, nil
}
