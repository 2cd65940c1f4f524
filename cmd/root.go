package cmd

import (
	"fmt"
	"os"

	"github.com/agentic-research/catalyst/internal/config"
	"github.com/agentic-research/catalyst/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	dataDir    string
	catalogURL string

	cfg    config.Config
	logger zerolog.Logger
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Path to an HCL config file")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "", "Log format (console, json)")
	pf.StringVarP(&dataDir, "data", "d", "", "Directory of dataset files (<id>.json, <id>.ndjson, <id>.db)")
	pf.StringVar(&catalogURL, "catalog-url", "", "Base URL of a dataset catalog service")
}

var rootCmd = &cobra.Command{
	Use:           "catalyst",
	Short:         "Catalyst: in-process analytical queries over catalog datasets",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Log.Format = logFormat
		}
		if cmd.Flags().Changed("data") {
			cfg.Catalog.Dir = dataDir
		}
		if cmd.Flags().Changed("catalog-url") {
			cfg.Catalog.BaseURL = catalogURL
		}

		// stdout carries command output (and the MCP protocol), so logs go to stderr.
		logger, err = logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
		return err
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
