// Package scoring reduces a resource's correlated findings to one severity
// using a confidence-weighted average of per-severity weights.
package scoring

import (
	"strings"

	"github.com/hakim/threatiac/internal/models"
)

// SeverityWeights are the per-level weights averaged by the scorer.
var SeverityWeights = map[models.Severity]float64{
	models.SeverityLow:      1,
	models.SeverityMedium:   3,
	models.SeverityHigh:     6,
	models.SeverityCritical: 10,
}

// DefaultConfidence holds the built-in per-feed reliability.
var DefaultConfidence = map[string]float64{
	"otx":       0.9,
	"abuseipdb": 0.8,
	"shodan":    0.7,
	"greynoise": 0.6,
}

// UnknownFeedConfidence applies to feeds missing from the confidence table.
const UnknownFeedConfidence = 0.5

// Scorer computes aggregate severities. The zero value is not usable; build
// one with NewScorer.
type Scorer struct {
	confidence map[string]float64
}

// NewScorer returns a Scorer using DefaultConfidence with the given per-feed
// overrides applied on top.
func NewScorer(overrides map[string]float64) *Scorer {
	conf := make(map[string]float64, len(DefaultConfidence)+len(overrides))
	for k, v := range DefaultConfidence {
		conf[k] = v
	}
	for k, v := range overrides {
		conf[strings.ToLower(k)] = v
	}
	return &Scorer{confidence: conf}
}

// Confidence returns the reliability weight of a feed.
func (s *Scorer) Confidence(feed string) float64 {
	if c, ok := s.confidence[strings.ToLower(feed)]; ok {
		return c
	}
	return UnknownFeedConfidence
}

// Average is Σ(weight×confidence)/Σ(confidence) over the findings. It
// returns 0 for an empty list or when every confidence is zero.
func (s *Scorer) Average(findings []models.CorrelatedFinding) float64 {
	var weighted, total float64
	for _, f := range findings {
		c := s.Confidence(f.Feed)
		weighted += weightOf(level(f)) * c
		total += c
	}
	if total <= 0 {
		return 0
	}
	return weighted / total
}

// Score maps the weighted average onto the severity enum:
// >= 8 CRITICAL, >= 5 HIGH, >= 2 MEDIUM, otherwise LOW.
func (s *Scorer) Score(findings []models.CorrelatedFinding) models.Severity {
	if len(findings) == 0 {
		return models.SeverityLow
	}
	return Threshold(s.Average(findings))
}

// Threshold converts an average weight into a severity.
func Threshold(avg float64) models.Severity {
	switch {
	case avg >= 8:
		return models.SeverityCritical
	case avg >= 5:
		return models.SeverityHigh
	case avg >= 2:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// level prefers the correlated severity and falls back to the raw risk.
func level(f models.CorrelatedFinding) models.Severity {
	if f.RiskLevel.IsValid() {
		return f.RiskLevel
	}
	if f.Risk.IsValid() {
		return f.Risk
	}
	return models.SeverityLow
}

func weightOf(sev models.Severity) float64 {
	if w, ok := SeverityWeights[sev]; ok {
		return w
	}
	return SeverityWeights[models.SeverityLow]
}
