package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hakim/threatiac/internal/feeds"
	"github.com/hakim/threatiac/internal/logging"
	"github.com/hakim/threatiac/internal/models"
	"github.com/hakim/threatiac/internal/pipeline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// MaxFeedTimeout is the upper bound for a single feed request.
const MaxFeedTimeout = 10 * time.Second

// Config represents the application configuration
type Config struct {
	DBPath        string       `mapstructure:"db_path" yaml:"db_path"`
	ArtifactDir   string       `mapstructure:"artifact_dir" yaml:"artifact_dir"`
	NotifyWebhook string       `mapstructure:"notify_webhook" yaml:"notify_webhook"`
	Queue         QueueConfig  `mapstructure:"queue" yaml:"queue"`
	Feeds         FeedsConfig  `mapstructure:"feeds" yaml:"feeds"`
	Scope         ScopeConfig  `mapstructure:"scope" yaml:"scope"`
	Report        ReportConfig `mapstructure:"report" yaml:"report"`
	Log           LogConfig    `mapstructure:"log" yaml:"log"`
}

// QueueConfig points workers and submitters at the Redis job queue
type QueueConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	Name          string `mapstructure:"name" yaml:"name"`
	MaxDeliveries int    `mapstructure:"max_deliveries" yaml:"max_deliveries"`
	PollTimeout   string `mapstructure:"poll_timeout" yaml:"poll_timeout"`
}

// FeedConfig represents configuration for a single threat-intel feed
type FeedConfig struct {
	APIKey     string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string  `mapstructure:"base_url" yaml:"base_url"`
	Confidence float64 `mapstructure:"confidence" yaml:"confidence"`
}

// FeedsConfig contains settings shared by all feeds plus one block per feed
type FeedsConfig struct {
	Preset      string     `mapstructure:"preset" yaml:"preset"`
	Timeout     string     `mapstructure:"timeout" yaml:"timeout"`
	Concurrency int        `mapstructure:"concurrency" yaml:"concurrency"`
	AbuseIPDB   FeedConfig `mapstructure:"abuseipdb" yaml:"abuseipdb"`
	GreyNoise   FeedConfig `mapstructure:"greynoise" yaml:"greynoise"`
	Shodan      FeedConfig `mapstructure:"shodan" yaml:"shodan"`
	OTX         FeedConfig `mapstructure:"otx" yaml:"otx"`
}

// ScopeConfig limits scans to resource type patterns such as "aws_*"
type ScopeConfig struct {
	Include []string `mapstructure:"include" yaml:"include"`
	Exclude []string `mapstructure:"exclude" yaml:"exclude"`
}

// ReportConfig controls the CI gate
type ReportConfig struct {
	BlockSeverity string `mapstructure:"block_severity" yaml:"block_severity"`
}

// LogConfig controls logger level and format
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// credentialEnv maps feed key paths to the bare env names operators already use.
var credentialEnv = map[string]string{
	"feeds.abuseipdb.api_key": "ABUSEIPDB_API_KEY",
	"feeds.greynoise.api_key": "GREYNOISE_API_KEY",
	"feeds.shodan.api_key":    "SHODAN_API_KEY",
	"feeds.otx.api_key":       "OTX_API_KEY",
}

// Load reads configuration from a YAML file layered over defaults and the
// environment. If path is empty, searches for threatiac.yaml in the current
// directory, ./configs and ~/.config/threatiac/; not finding one is fine.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("THREATIAC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range credentialEnv {
		if err := v.BindEnv(key, "THREATIAC_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("threatiac")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "threatiac"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("artifact_dir", d.ArtifactDir)
	v.SetDefault("notify_webhook", d.NotifyWebhook)
	v.SetDefault("queue.url", d.Queue.URL)
	v.SetDefault("queue.name", d.Queue.Name)
	v.SetDefault("queue.max_deliveries", d.Queue.MaxDeliveries)
	v.SetDefault("queue.poll_timeout", d.Queue.PollTimeout)
	v.SetDefault("feeds.preset", d.Feeds.Preset)
	v.SetDefault("feeds.timeout", d.Feeds.Timeout)
	v.SetDefault("feeds.concurrency", d.Feeds.Concurrency)
	for name, fc := range d.Feeds.byName() {
		v.SetDefault("feeds."+name+".api_key", fc.APIKey)
		v.SetDefault("feeds."+name+".base_url", fc.BaseURL)
		v.SetDefault("feeds."+name+".confidence", fc.Confidence)
	}
	v.SetDefault("scope.include", d.Scope.Include)
	v.SetDefault("scope.exclude", d.Scope.Exclude)
	v.SetDefault("report.block_severity", d.Report.BlockSeverity)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path cannot be empty"))
	}

	if c.ArtifactDir == "" {
		errs = append(errs, errors.New("artifact_dir cannot be empty"))
	}

	if c.Queue.MaxDeliveries <= 0 {
		errs = append(errs, errors.New("queue.max_deliveries must be positive"))
	}

	if d, err := time.ParseDuration(c.Queue.PollTimeout); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("queue.poll_timeout %q must be a positive duration", c.Queue.PollTimeout))
	}

	if d, err := time.ParseDuration(c.Feeds.Timeout); err != nil || d <= 0 || d >= MaxFeedTimeout {
		errs = append(errs, fmt.Errorf("feeds.timeout %q must be a duration between 0 and %s", c.Feeds.Timeout, MaxFeedTimeout))
	}

	if c.Feeds.Concurrency <= 0 {
		errs = append(errs, errors.New("feeds.concurrency must be positive"))
	}

	for name, fc := range c.Feeds.byName() {
		if fc.Confidence < 0 || fc.Confidence > 1 {
			errs = append(errs, fmt.Errorf("feeds.%s.confidence must be within [0, 1]", name))
		}
	}

	if _, ok := models.ParseSeverity(c.Report.BlockSeverity); !ok {
		errs = append(errs, fmt.Errorf("report.block_severity %q is not a severity", c.Report.BlockSeverity))
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if err := logging.ValidateFormat(c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log.format: %w", err))
	}

	if c.Feeds.Preset != "" {
		if _, err := pipeline.GetPreset(c.Feeds.Preset); err != nil {
			errs = append(errs, fmt.Errorf("feeds.preset: %w", err))
		}
	}

	if err := c.ResourceScope().Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ResourceScope converts the scope section for the orchestrator.
func (c *Config) ResourceScope() pipeline.ResourceScope {
	return pipeline.ResourceScope{Include: c.Scope.Include, Exclude: c.Scope.Exclude}
}

func (f FeedsConfig) byName() map[string]FeedConfig {
	return map[string]FeedConfig{
		feeds.FeedAbuseIPDB: f.AbuseIPDB,
		feeds.FeedGreyNoise: f.GreyNoise,
		feeds.FeedShodan:    f.Shodan,
		feeds.FeedOTX:       f.OTX,
	}
}

// FeedTimeout returns the parsed per-request feed timeout.
func (c *Config) FeedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Feeds.Timeout)
	if err != nil || d <= 0 {
		return feeds.DefaultTimeout
	}
	return d
}

// PollTimeout returns the parsed queue blocking wait.
func (c *Config) PollTimeout() time.Duration {
	d, err := time.ParseDuration(c.Queue.PollTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// BlockSeverity returns the severity at which the CI gate fails.
func (c *Config) BlockSeverity() models.Severity {
	sev, ok := models.ParseSeverity(c.Report.BlockSeverity)
	if !ok {
		return models.SeverityHigh
	}
	return sev
}

// FeedOptions converts the feed blocks into adapter options, all four feeds
// included. A feed without api_key runs degraded.
func (c *Config) FeedOptions(log *logrus.Entry) map[string]feeds.Options {
	timeout := c.FeedTimeout()
	opts := make(map[string]feeds.Options, 4)
	for name, fc := range c.Feeds.byName() {
		opts[name] = feeds.Options{
			APIKey:  fc.APIKey,
			BaseURL: fc.BaseURL,
			Timeout: timeout,
			Log:     log,
		}
	}
	return opts
}

// Confidences returns the per-feed confidence weights for the scorer.
func (c *Config) Confidences() map[string]float64 {
	out := make(map[string]float64, 4)
	for name, fc := range c.Feeds.byName() {
		out[name] = fc.Confidence
	}
	return out
}
