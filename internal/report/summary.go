package report

import (
	"fmt"
	"io"

	"github.com/hakim/threatiac/internal/models"
)

// ShouldBlock reports whether a scan must fail a CI gate set at threshold.
// A FAILED scan always blocks.
func ShouldBlock(scan *models.Scan, threshold models.Severity) bool {
	if scan.Status == models.StatusFailed {
		return true
	}
	return scan.WorstSeverity().Rank() >= threshold.Rank()
}

// PrintSummary writes the terminal summary of a scan.
func PrintSummary(w io.Writer, scan *models.Scan) {
	fmt.Fprintf(w, "[*] Scan %s: %s\n", scan.ID, scan.Status)
	if scan.Status == models.StatusFailed {
		fmt.Fprintf(w, "[!] %s\n", scan.Error)
		return
	}

	counts := SeverityCounts(scan)
	fmt.Fprintf(w, "[*] %d resource(s): %d critical, %d high, %d medium, %d low\n",
		len(scan.Results),
		counts[models.SeverityCritical],
		counts[models.SeverityHigh],
		counts[models.SeverityMedium],
		counts[models.SeverityLow])

	for _, sev := range severityOrder {
		for _, r := range resultsBySeverity(scan.Results)[sev] {
			prefix := "[+]"
			if sev.Rank() >= models.SeverityHigh.Rank() {
				prefix = "[!]"
			}
			fmt.Fprintf(w, "%s %-8s %s: %s\n", prefix, sev, r.ResourceID, r.Details)
		}
	}
}
