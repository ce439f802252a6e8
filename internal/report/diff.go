package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hakim/threatiac/internal/diff"
)

// WriteDiffReport generates a markdown report capturing the delta between two
// scans and writes it to outputPath.
func WriteDiffReport(result *diff.DiffResult, outputPath string) error {
	return writeFile(outputPath, RenderDiffReport(result))
}

// RenderDiffReport returns the markdown diff report.
func RenderDiffReport(result *diff.DiffResult) string {
	var b strings.Builder

	b.WriteString("# Scan Diff Report\n\n")
	b.WriteString(fmt.Sprintf("**Previous:** %s | **Current:** %s\n", result.PreviousScanID, result.CurrentScanID))
	b.WriteString(fmt.Sprintf("**Date:** %s\n\n", time.Now().UTC().Format("2006-01-02 15:04:05 UTC")))

	// If there are zero changes across all categories, short-circuit.
	if result.IsEmpty() {
		b.WriteString("No changes detected.\n")
		return b.String()
	}

	writeDiffSummaryTable(&b, result)
	writeSeverityChanges(&b, "Newly Risky", result.NewlyRisky())
	writeSeverityChanges(&b, "Escalated", result.Escalated)
	writeSeverityChanges(&b, "De-escalated", result.Deescalated)
	writeResourceList(&b, "New Resources", "+", result)
	writeResourceList(&b, "Removed Resources", "-", result)
	writeFindingChanges(&b, "New Findings", "+", result.NewFindings)
	writeFindingChanges(&b, "Resolved Findings", "-", result.ResolvedFindings)

	return b.String()
}

// writeDiffSummaryTable writes the comparison table.
func writeDiffSummaryTable(b *strings.Builder, r *diff.DiffResult) {
	b.WriteString("## Summary\n\n")
	b.WriteString("| Category | Previous | Current | Change |\n")
	b.WriteString("|----------|----------|---------|--------|\n")

	b.WriteString(fmt.Sprintf("| Resources | %d | %d | %s |\n",
		r.PreviousResourceCount, r.CurrentResourceCount, formatChange(len(r.NewResources), len(r.RemovedResources))))
	b.WriteString(fmt.Sprintf("| Findings | %d | %d | %s |\n",
		r.PreviousFindingCount, r.CurrentFindingCount, formatChange(len(r.NewFindings), len(r.ResolvedFindings))))
	b.WriteString(fmt.Sprintf("| Worst severity | %s | %s | %s |\n",
		r.PreviousWorst, r.CurrentWorst, formatChange(len(r.Escalated), len(r.Deescalated))))

	b.WriteString("\n")
}

// writeSeverityChanges renders a score change table. Skipped when empty.
func writeSeverityChanges(b *strings.Builder, title string, changes []diff.SeverityChange) {
	if len(changes) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("## %s (%d)\n\n", title, len(changes)))
	b.WriteString("| Resource | Type | Previous | Current |\n")
	b.WriteString("|----------|------|----------|---------|\n")
	for _, c := range changes {
		prev := string(c.Previous)
		if prev == "" {
			prev = "-"
		}
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", c.ResourceID, c.ResourceType, prev, c.Current))
	}
	b.WriteString("\n")
}

// writeResourceList renders added or removed resources. Skipped when empty.
func writeResourceList(b *strings.Builder, title, sign string, r *diff.DiffResult) {
	results := r.NewResources
	if sign == "-" {
		results = r.RemovedResources
	}
	if len(results) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("## %s (%s%d)\n\n", title, sign, len(results)))
	for _, res := range results {
		b.WriteString(fmt.Sprintf("- %s (%s, %s)\n", res.ResourceID, res.ResourceType, res.RiskScore))
	}
	b.WriteString("\n")
}

// writeFindingChanges renders a finding table. Skipped when empty.
func writeFindingChanges(b *strings.Builder, title, sign string, changes []diff.FindingChange) {
	if len(changes) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("## %s (%s%d)\n\n", title, sign, len(changes)))
	b.WriteString("| Resource | Feed | Indicator | Severity |\n")
	b.WriteString("|----------|------|-----------|----------|\n")
	for _, c := range changes {
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			c.ResourceID, c.Finding.Feed, c.Finding.Indicator, c.Finding.RiskLevel))
	}
	b.WriteString("\n")
}

// formatChange returns a human-readable change string such as "+3 / -1".
// When there are no additions and no removals it returns "none".
func formatChange(added, removed int) string {
	if added == 0 && removed == 0 {
		return "none"
	}
	parts := make([]string, 0, 2)
	if added > 0 {
		parts = append(parts, fmt.Sprintf("+%d", added))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("-%d", removed))
	}
	return strings.Join(parts, " / ")
}
