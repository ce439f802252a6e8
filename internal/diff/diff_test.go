package diff

import (
	"testing"

	"github.com/hakim/threatiac/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finding(feed, indicator string, sev models.Severity) models.CorrelatedFinding {
	return models.CorrelatedFinding{
		Finding:   models.Finding{Feed: feed, Indicator: indicator, Risk: sev},
		RiskLevel: sev,
	}
}

func result(id string, score models.Severity, findings ...models.CorrelatedFinding) models.ScanResult {
	return models.ScanResult{ResourceID: id, ResourceType: "aws_instance", RiskScore: score, Findings: findings}
}

func TestComputeDiff(t *testing.T) {
	previous := &models.Scan{ID: "scan-old", Results: []models.ScanResult{
		result("aws_instance.web", models.SeverityLow, finding("shodan", "203.0.113.10", models.SeverityLow)),
		result("aws_instance.db", models.SeverityHigh, finding("abuseipdb", "10.0.0.5", models.SeverityHigh)),
		result("aws_instance.gone", models.SeverityLow),
	}}
	current := &models.Scan{ID: "scan-new", Results: []models.ScanResult{
		result("aws_instance.web", models.SeverityHigh,
			finding("shodan", "203.0.113.10", models.SeverityHigh),
			finding("greynoise", "203.0.113.10", models.SeverityMedium)),
		result("aws_instance.db", models.SeverityLow),
		result("aws_instance.new", models.SeverityCritical, finding("otx", "evil.example", models.SeverityCritical)),
	}}

	dr := ComputeDiff(current, previous)

	assert.Equal(t, "scan-old", dr.PreviousScanID)
	assert.Equal(t, "scan-new", dr.CurrentScanID)
	assert.False(t, dr.IsEmpty())

	require.Len(t, dr.NewResources, 1)
	assert.Equal(t, "aws_instance.new", dr.NewResources[0].ResourceID)
	require.Len(t, dr.RemovedResources, 1)
	assert.Equal(t, "aws_instance.gone", dr.RemovedResources[0].ResourceID)

	require.Len(t, dr.Escalated, 1)
	assert.Equal(t, SeverityChange{
		ResourceID: "aws_instance.web", ResourceType: "aws_instance",
		Previous: models.SeverityLow, Current: models.SeverityHigh,
	}, dr.Escalated[0])
	require.Len(t, dr.Deescalated, 1)
	assert.Equal(t, "aws_instance.db", dr.Deescalated[0].ResourceID)

	require.Len(t, dr.NewFindings, 2)
	assert.Equal(t, "aws_instance.new", dr.NewFindings[0].ResourceID)
	assert.Equal(t, "greynoise", dr.NewFindings[1].Finding.Feed)
	require.Len(t, dr.ResolvedFindings, 1)
	assert.Equal(t, "abuseipdb", dr.ResolvedFindings[0].Finding.Feed)

	risky := dr.NewlyRisky()
	require.Len(t, risky, 2)
	assert.Equal(t, "aws_instance.new", risky[0].ResourceID)
	assert.Equal(t, "aws_instance.web", risky[1].ResourceID)

	assert.Equal(t, 3, dr.CurrentResourceCount)
	assert.Equal(t, 3, dr.CurrentFindingCount)
	assert.Equal(t, 2, dr.PreviousFindingCount)
	assert.Equal(t, models.SeverityCritical, dr.CurrentWorst)
	assert.Equal(t, models.SeverityHigh, dr.PreviousWorst)
}

func TestComputeDiffIdentical(t *testing.T) {
	scan := &models.Scan{Results: []models.ScanResult{
		result("aws_instance.web", models.SeverityMedium, finding("shodan", "1.2.3.4", models.SeverityMedium)),
	}}
	dr := ComputeDiff(scan, scan)
	assert.True(t, dr.IsEmpty())
	assert.NotNil(t, dr.NewFindings)
	assert.Empty(t, dr.NewlyRisky())
}

func TestComputeDiffAgainstEmpty(t *testing.T) {
	current := &models.Scan{Results: []models.ScanResult{result("a", models.SeverityLow)}}
	dr := ComputeDiff(current, &models.Scan{})
	assert.Len(t, dr.NewResources, 1)
	assert.Empty(t, dr.NewlyRisky())
	assert.Equal(t, models.SeverityLow, dr.PreviousWorst)
}
