package config

import (
	"fmt"
	"os"

	"github.com/hakim/threatiac/internal/scoring"
	"gopkg.in/yaml.v3"
)

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		DBPath:      "threatiac.db",
		ArtifactDir: "artifacts",
		Queue: QueueConfig{
			URL:           "redis://localhost:6379/0",
			Name:          "threatiac:scans",
			MaxDeliveries: 5,
			PollTimeout:   "5s",
		},
		Feeds: FeedsConfig{
			Preset:      "full",
			Timeout:     "5s",
			Concurrency: 8,
			AbuseIPDB: FeedConfig{
				BaseURL:    "https://api.abuseipdb.com/api/v2/check",
				Confidence: scoring.DefaultConfidence["abuseipdb"],
			},
			GreyNoise: FeedConfig{
				BaseURL:    "https://api.greynoise.io/v3/community",
				Confidence: scoring.DefaultConfidence["greynoise"],
			},
			Shodan: FeedConfig{
				BaseURL:    "https://api.shodan.io/shodan/host",
				Confidence: scoring.DefaultConfidence["shodan"],
			},
			OTX: FeedConfig{
				BaseURL:    "https://otx.alienvault.com/api/v1",
				Confidence: scoring.DefaultConfidence["otx"],
			},
		},
		Scope: ScopeConfig{
			Include: []string{},
			Exclude: []string{},
		},
		Report: ReportConfig{
			BlockSeverity: "HIGH",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefault writes a default configuration to the specified path
func WriteDefault(path string) error {
	cfg := DefaultConfig()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
