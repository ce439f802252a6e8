package report

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hakim/threatiac/internal/models"
)

// severityOrder defines the display order for report sections (most severe first).
var severityOrder = []models.Severity{
	models.SeverityCritical,
	models.SeverityHigh,
	models.SeverityMedium,
	models.SeverityLow,
}

var severityHeading = map[models.Severity]string{
	models.SeverityCritical: "Critical",
	models.SeverityHigh:     "High",
	models.SeverityMedium:   "Medium",
	models.SeverityLow:      "Low",
}

// WriteScanReport generates a markdown report for a scan record and writes it
// to the specified output path.
func WriteScanReport(scan *models.Scan, outputPath string) error {
	return writeFile(outputPath, RenderScanReport(scan))
}

// RenderScanReport returns the markdown report for a scan record.
func RenderScanReport(scan *models.Scan) string {
	var b strings.Builder

	counts := SeverityCounts(scan)

	// Header
	b.WriteString("# IaC Threat Scan Report\n\n")
	b.WriteString(fmt.Sprintf("**Scan:** %s\n", scan.ID))
	b.WriteString(fmt.Sprintf("**Status:** %s\n", scan.Status))
	b.WriteString(fmt.Sprintf("**Date:** %s\n", reportTime(scan).Format("2006-01-02 15:04:05 UTC")))
	b.WriteString(fmt.Sprintf("**Worst severity:** %s\n", scan.WorstSeverity()))
	b.WriteString(fmt.Sprintf(
		"**Resources:** %d | **Critical:** %d | **High:** %d | **Medium:** %d | **Low:** %d\n\n",
		len(scan.Results),
		counts[models.SeverityCritical],
		counts[models.SeverityHigh],
		counts[models.SeverityMedium],
		counts[models.SeverityLow],
	))

	if scan.Status == models.StatusFailed {
		b.WriteString("## Scan Failed\n\n")
		b.WriteString(fmt.Sprintf("```\n%s\n```\n", scan.Error))
		return b.String()
	}

	// One section per severity in priority order
	bySeverity := resultsBySeverity(scan.Results)
	for _, sev := range severityOrder {
		b.WriteString(fmt.Sprintf("## %s Resources\n\n", severityHeading[sev]))

		results := bySeverity[sev]
		if len(results) == 0 {
			b.WriteString(fmt.Sprintf("No %s resources.\n\n", sev))
			continue
		}

		b.WriteString("| Resource | Type | Findings | Summary |\n")
		b.WriteString("|----------|------|----------|---------|\n")
		for _, r := range results {
			b.WriteString(fmt.Sprintf("| %s | %s | %d | %s |\n",
				r.ResourceID, r.ResourceType, len(r.Findings), escapeCell(r.Details)))
		}
		b.WriteString("\n")
	}

	writeFindingDetails(&b, scan.Results)

	return b.String()
}

// writeFindingDetails lists every finding on resources that have any.
func writeFindingDetails(b *strings.Builder, results []models.ScanResult) {
	var withFindings []models.ScanResult
	for _, r := range results {
		if len(r.Findings) > 0 {
			withFindings = append(withFindings, r)
		}
	}
	if len(withFindings) == 0 {
		return
	}

	b.WriteString("## Findings\n\n")
	for _, r := range withFindings {
		b.WriteString(fmt.Sprintf("### %s (%s)\n\n", r.ResourceID, r.RiskScore))
		b.WriteString("| Feed | Indicator | Raw | Correlated | Context | Details |\n")
		b.WriteString("|------|-----------|-----|------------|---------|---------|\n")
		for _, f := range r.Findings {
			ctx := "-"
			if len(f.ContextFlags) > 0 {
				ctx = strings.Join(f.ContextFlags, ", ")
			}
			b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
				f.Feed, f.Indicator, f.Risk, f.RiskLevel, ctx, escapeCell(f.Details)))
		}
		b.WriteString("\n")
	}
}

// SeverityCounts counts resources per aggregate score.
func SeverityCounts(scan *models.Scan) map[models.Severity]int {
	counts := make(map[models.Severity]int, len(severityOrder))
	for _, r := range scan.Results {
		counts[r.RiskScore]++
	}
	return counts
}

// resultsBySeverity partitions results by score, each group sorted by id.
func resultsBySeverity(results []models.ScanResult) map[models.Severity][]models.ScanResult {
	groups := make(map[models.Severity][]models.ScanResult)
	for _, r := range results {
		groups[r.RiskScore] = append(groups[r.RiskScore], r)
	}
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].ResourceID < g[j].ResourceID })
	}
	return groups
}

func reportTime(scan *models.Scan) time.Time {
	if scan.CompletedAt != nil {
		return scan.CompletedAt.UTC()
	}
	if !scan.UpdatedAt.IsZero() {
		return scan.UpdatedAt.UTC()
	}
	return time.Now().UTC()
}

func escapeCell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", "\\|")
}

// writeFile writes content to path, wrapping any OS error with context.
func writeFile(outputPath, content string) error {
	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing report to %s: %w", outputPath, err)
	}
	return nil
}
