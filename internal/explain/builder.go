// Package explain packages a resource's scored findings into the result
// record that is persisted and shown to users.
package explain

import (
	"fmt"
	"strings"

	"github.com/hakim/threatiac/internal/models"
)

// Build assembles the ScanResult for one resource. The correlated findings
// are kept in full for audit.
func Build(res models.ResourceDescriptor, findings []models.CorrelatedFinding, score models.Severity) models.ScanResult {
	kept := make([]models.CorrelatedFinding, len(findings))
	copy(kept, findings)

	return models.ScanResult{
		ResourceID:   res.ResourceID,
		ResourceType: res.Type,
		RiskScore:    score,
		Details:      Summary(findings),
		Findings:     kept,
	}
}

// Summary renders "N correlated finding(s)" followed by a per-severity
// breakdown, most severe first, e.g. "3 correlated finding(s): 1 HIGH, 2 LOW".
func Summary(findings []models.CorrelatedFinding) string {
	head := fmt.Sprintf("%d correlated finding(s)", len(findings))
	if len(findings) == 0 {
		return head
	}

	counts := make(map[models.Severity]int)
	for _, f := range findings {
		counts[f.RiskLevel]++
	}

	var parts []string
	for i := len(models.Severities) - 1; i >= 0; i-- {
		sev := models.Severities[i]
		if n := counts[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	if len(parts) == 0 {
		return head
	}
	return head + ": " + strings.Join(parts, ", ")
}
