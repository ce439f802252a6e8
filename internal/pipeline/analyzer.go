package pipeline

import (
	"context"

	"github.com/hakim/threatiac/internal/aggregator"
	"github.com/hakim/threatiac/internal/correlation"
	"github.com/hakim/threatiac/internal/explain"
	"github.com/hakim/threatiac/internal/models"
	"github.com/hakim/threatiac/internal/scoring"
)

// Analyzer turns one resource into its scan result.
type Analyzer interface {
	Analyze(ctx context.Context, res models.ResourceDescriptor) (models.ScanResult, error)
}

// ResourceAnalyzer is the default Analyzer: feed aggregation, context
// correlation, scoring and explanation, in that order.
type ResourceAnalyzer struct {
	Aggregator *aggregator.Aggregator
	Scorer     *scoring.Scorer
}

// NewResourceAnalyzer wires an aggregator and scorer into an Analyzer.
func NewResourceAnalyzer(agg *aggregator.Aggregator, scorer *scoring.Scorer) *ResourceAnalyzer {
	return &ResourceAnalyzer{Aggregator: agg, Scorer: scorer}
}

// Analyze implements Analyzer.
func (a *ResourceAnalyzer) Analyze(ctx context.Context, res models.ResourceDescriptor) (models.ScanResult, error) {
	findings := a.Aggregator.CheckResource(ctx, res)
	correlated := correlation.Correlate(res, findings)
	score := a.Scorer.Score(correlated)
	return explain.Build(res, correlated, score), nil
}
