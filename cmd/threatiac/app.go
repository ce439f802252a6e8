package main

// app.go: shared wiring used by scan, submit, worker and check.

import (
	"fmt"
	"time"

	"github.com/hakim/threatiac/internal/aggregator"
	"github.com/hakim/threatiac/internal/feeds"
	"github.com/hakim/threatiac/internal/logging"
	"github.com/hakim/threatiac/internal/pipeline"
	"github.com/hakim/threatiac/internal/queue"
	"github.com/hakim/threatiac/internal/scoring"
	"github.com/hakim/threatiac/internal/storage"
)

func requireConfig() error {
	if cfg == nil {
		return fmt.Errorf("config not loaded. Run 'threatiac init' first to create config")
	}
	return nil
}

func openStore() (*storage.Store, error) {
	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return store, nil
}

func openArtifacts() (*storage.ArtifactStore, error) {
	return storage.NewOSArtifactStore(cfg.ArtifactDir)
}

func openQueue() (*queue.RedisQueue, error) {
	return queue.NewRedisQueue(queue.Options{
		URL:           cfg.Queue.URL,
		Name:          cfg.Queue.Name,
		MaxDeliveries: cfg.Queue.MaxDeliveries,
		ReadTimeout:   cfg.PollTimeout() + 10*time.Second,
	})
}

// resolvePreset picks the flag value when set, else the configured preset.
func resolvePreset(flagValue string) (*pipeline.Preset, error) {
	name := cfg.Feeds.Preset
	if flagValue != "" {
		name = flagValue
	}
	if name == "" {
		name = pipeline.DefaultPreset
	}
	return pipeline.GetPreset(name)
}

// feedOptions returns the adapter options selected by the preset.
func feedOptions(preset *pipeline.Preset) map[string]feeds.Options {
	log := logging.Component(logger, "feeds")
	return preset.Select(cfg.FeedOptions(log))
}

// buildOrchestrator wires feeds, aggregator, scorer and stores into an
// Orchestrator.
func buildOrchestrator(store pipeline.StatusStore, artifacts pipeline.ArtifactSource, preset *pipeline.Preset) (*pipeline.Orchestrator, error) {
	scope := cfg.ResourceScope()
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	lookups, inspectors := feeds.Build(feedOptions(preset))
	agg := aggregator.New(lookups, inspectors, cfg.Feeds.Concurrency, logging.Component(logger, "aggregator"))
	analyzer := pipeline.NewResourceAnalyzer(agg, scoring.NewScorer(cfg.Confidences()))

	var notify *pipeline.NotifyConfig
	if cfg.NotifyWebhook != "" {
		notify = &pipeline.NotifyConfig{WebhookURL: cfg.NotifyWebhook}
	}

	return pipeline.NewOrchestrator(artifacts, store, analyzer, pipeline.Options{
		Scope:  scope,
		Notify: notify,
		Log:    logger.WithField("preset", preset.Name),
	}), nil
}
