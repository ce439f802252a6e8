package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hakim/threatiac/internal/config"
	"github.com/hakim/threatiac/internal/storage"
	"github.com/spf13/cobra"
)

var (
	initForce bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize threatiac with default configuration",
	Long: `Creates a default configuration file (threatiac.yaml), the artifact
directory that holds submitted plans, and the database for scan records.

This is typically the first command you run when setting up threatiac.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := filepath.Join(initDir, "threatiac.yaml")

		// Check if config already exists
		if _, err := os.Stat(configPath); err == nil && !initForce {
			return fmt.Errorf("config file already exists at %s. Use --force to overwrite", configPath)
		}

		// Create default config
		if err := config.WriteDefault(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		fmt.Printf("Created %s with default configuration\n", configPath)

		// Load the config we just created to get paths
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Create artifact directory
		if _, err := storage.NewOSArtifactStore(cfg.ArtifactDir); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
		fmt.Printf("Created artifact directory: %s\n", cfg.ArtifactDir)

		// Initialize database
		store, err := storage.NewStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()
		fmt.Printf("Initialized database: %s\n", cfg.DBPath)

		fmt.Println()
		fmt.Println("threatiac initialized successfully!")
		fmt.Println("Set ABUSEIPDB_API_KEY, GREYNOISE_API_KEY, SHODAN_API_KEY and OTX_API_KEY,")
		fmt.Println("then run 'threatiac check' to see which feeds are live.")

		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config file")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "output directory")
	rootCmd.AddCommand(initCmd)
}
