package main

import (
	"errors"
	"fmt"

	"github.com/hakim/threatiac/internal/config"
	"github.com/hakim/threatiac/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// errBlocked signals that a scan crossed the configured block severity.
// main maps it to exit code 2 so CI pipelines can gate on it.
var errBlocked = errors.New("scan blocked")

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
	logger  *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "threatiac",
	Short: "Threat-intel risk scanner for infrastructure-as-code plans",
	Long: `threatiac evaluates a Terraform-style plan before it is applied.

Each planned resource is checked against external threat-intelligence feeds
(AbuseIPDB, GreyNoise, Shodan, AlienVault OTX). Findings are escalated by the
resource's exposure context (public, sensitive, exposed ports) and scored into
one severity per resource.

Scans can run inline (threatiac scan) or be submitted to a Redis queue and
processed by workers (threatiac submit / threatiac worker). Scan records are
kept in a local bbolt database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		skipConfig := map[string]bool{
			"init":    true,
			"help":    true,
			"version": true,
		}

		if skipConfig[cmd.Name()] {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, cfg.Log.Format)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}

		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: search for threatiac.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")

	// Version flag
	rootCmd.Version = "0.1.0-dev"
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
