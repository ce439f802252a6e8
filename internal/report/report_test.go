package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hakim/threatiac/internal/diff"
	"github.com/hakim/threatiac/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleScan() *models.Scan {
	return &models.Scan{
		ID:     "scan-1",
		Status: models.StatusCompleted,
		Results: []models.ScanResult{
			{
				ResourceID:   "aws_instance.web",
				ResourceType: "aws_instance",
				RiskScore:    models.SeverityHigh,
				Details:      "1 correlated finding(s): 1 HIGH",
				Findings: []models.CorrelatedFinding{{
					Finding:      models.Finding{Feed: "shodan", Indicator: "203.0.113.10", Risk: models.SeverityMedium},
					RiskLevel:    models.SeverityHigh,
					Details:      "Escalated MEDIUM->HIGH due to public (factor=1.70). Evidence: vuln_count=3",
					ContextFlags: []string{"public"},
				}},
			},
			{
				ResourceID:   "aws_s3_bucket.logs",
				ResourceType: "aws_s3_bucket",
				RiskScore:    models.SeverityLow,
				Details:      "0 correlated finding(s)",
				Findings:     []models.CorrelatedFinding{},
			},
		},
	}
}

func TestRenderScanReport(t *testing.T) {
	out := RenderScanReport(sampleScan())

	assert.Contains(t, out, "# IaC Threat Scan Report")
	assert.Contains(t, out, "**Worst severity:** HIGH")
	assert.Contains(t, out, "**Resources:** 2 | **Critical:** 0 | **High:** 1 | **Medium:** 0 | **Low:** 1")
	assert.Contains(t, out, "No CRITICAL resources.")
	assert.Contains(t, out, "| aws_instance.web | aws_instance | 1 |")
	assert.Contains(t, out, "### aws_instance.web (HIGH)")
	assert.Contains(t, out, "| shodan | 203.0.113.10 | MEDIUM | HIGH | public |")
}

func TestRenderScanReportFailed(t *testing.T) {
	scan := &models.Scan{ID: "scan-2", Status: models.StatusFailed, Error: "parsing plan: bad", Results: []models.ScanResult{}}
	out := RenderScanReport(scan)
	assert.Contains(t, out, "## Scan Failed")
	assert.Contains(t, out, "parsing plan: bad")
}

func TestWriteScanReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, WriteScanReport(sampleScan(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "scan-1")
}

func TestShouldBlock(t *testing.T) {
	scan := sampleScan()
	assert.True(t, ShouldBlock(scan, models.SeverityHigh))
	assert.True(t, ShouldBlock(scan, models.SeverityMedium))
	assert.False(t, ShouldBlock(scan, models.SeverityCritical))

	empty := &models.Scan{Status: models.StatusCompleted}
	assert.False(t, ShouldBlock(empty, models.SeverityMedium))
	assert.True(t, ShouldBlock(empty, models.SeverityLow))

	failed := &models.Scan{Status: models.StatusFailed}
	assert.True(t, ShouldBlock(failed, models.SeverityCritical))
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, sampleScan())

	out := buf.String()
	assert.Contains(t, out, "[*] Scan scan-1: COMPLETED")
	assert.Contains(t, out, "2 resource(s): 0 critical, 1 high, 0 medium, 1 low")
	assert.Contains(t, out, "[!] HIGH     aws_instance.web")
	assert.Contains(t, out, "[+] LOW      aws_s3_bucket.logs")
}

func TestRenderDiffReport(t *testing.T) {
	current := sampleScan()
	previous := &models.Scan{ID: "scan-0", Results: []models.ScanResult{
		{ResourceID: "aws_instance.web", ResourceType: "aws_instance", RiskScore: models.SeverityLow},
	}}

	out := RenderDiffReport(diff.ComputeDiff(current, previous))
	assert.Contains(t, out, "**Previous:** scan-0 | **Current:** scan-1")
	assert.Contains(t, out, "| Resources | 1 | 2 | +1 |")
	assert.Contains(t, out, "## Newly Risky (1)")
	assert.Contains(t, out, "| aws_instance.web | aws_instance | LOW | HIGH |")
	assert.Contains(t, out, "## New Resources (+1)")
	assert.Contains(t, out, "## New Findings (+1)")

	same := RenderDiffReport(diff.ComputeDiff(current, current))
	assert.Contains(t, same, "No changes detected.")
}
