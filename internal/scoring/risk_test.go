package scoring

import (
	"testing"

	"github.com/hakim/threatiac/internal/models"
	"github.com/stretchr/testify/assert"
)

func cf(feed string, sev models.Severity) models.CorrelatedFinding {
	return models.CorrelatedFinding{Finding: models.Finding{Feed: feed, Risk: sev}, RiskLevel: sev}
}

func TestEmptyIsLow(t *testing.T) {
	s := NewScorer(nil)
	assert.Equal(t, models.SeverityLow, s.Score(nil))
	assert.Equal(t, models.SeverityLow, s.Score([]models.CorrelatedFinding{}))
}

func TestSingleShodanHigh(t *testing.T) {
	s := NewScorer(nil)
	findings := []models.CorrelatedFinding{cf("shodan", models.SeverityHigh)}
	assert.InDelta(t, 6.0, s.Average(findings), 1e-9)
	assert.Equal(t, models.SeverityHigh, s.Score(findings))
}

func TestConfidenceWeighting(t *testing.T) {
	s := NewScorer(nil)
	// (10*0.9 + 1*0.6) / 1.5 = 6.4
	findings := []models.CorrelatedFinding{
		cf("OTX", models.SeverityCritical),
		cf("greynoise", models.SeverityLow),
	}
	assert.InDelta(t, 6.4, s.Average(findings), 1e-9)
	assert.Equal(t, models.SeverityHigh, s.Score(findings))

	assert.Equal(t, UnknownFeedConfidence, s.Confidence("custom"))
}

func TestRiskLevelPreferredOverRisk(t *testing.T) {
	s := NewScorer(nil)
	f := models.CorrelatedFinding{
		Finding:   models.Finding{Feed: "abuseipdb", Risk: models.SeverityLow},
		RiskLevel: models.SeverityCritical,
	}
	assert.Equal(t, models.SeverityCritical, s.Score([]models.CorrelatedFinding{f}))

	f.RiskLevel = ""
	assert.Equal(t, models.SeverityLow, s.Score([]models.CorrelatedFinding{f}))
}

func TestThresholds(t *testing.T) {
	assert.Equal(t, models.SeverityLow, Threshold(1.99))
	assert.Equal(t, models.SeverityMedium, Threshold(2))
	assert.Equal(t, models.SeverityHigh, Threshold(5))
	assert.Equal(t, models.SeverityCritical, Threshold(8))
}

func TestZeroConfidenceOverride(t *testing.T) {
	s := NewScorer(map[string]float64{"shodan": 0})
	assert.Equal(t, models.SeverityLow, s.Score([]models.CorrelatedFinding{cf("shodan", models.SeverityCritical)}))
}

func TestScoreIsMonotonic(t *testing.T) {
	s := NewScorer(nil)
	feedsList := []string{"otx", "abuseipdb", "shodan", "greynoise", "other"}

	// every combination of severities over three findings
	for a := range models.Severities {
		for b := range models.Severities {
			for c := range models.Severities {
				base := []models.CorrelatedFinding{
					cf(feedsList[a%5], models.Severities[a]),
					cf(feedsList[(b+1)%5], models.Severities[b]),
					cf(feedsList[(c+3)%5], models.Severities[c]),
				}
				before := s.Score(base)
				for i := range base {
					if base[i].RiskLevel == models.SeverityCritical {
						continue
					}
					raised := append([]models.CorrelatedFinding{}, base...)
					raised[i].RiskLevel = models.SeverityFromRank(raised[i].RiskLevel.Rank() + 1)
					after := s.Score(raised)
					assert.GreaterOrEqual(t, after.Rank(), before.Rank(), "raising finding %d of %v", i, base)
				}
			}
		}
	}
}
