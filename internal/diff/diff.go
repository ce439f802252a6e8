// Package diff computes the delta between two scan records of the same
// infrastructure: which resources became risky, which were resolved, and
// which findings appeared or went away.
package diff

import (
	"fmt"
	"sort"

	"github.com/hakim/threatiac/internal/models"
)

// SeverityChange records a resource whose aggregate score moved.
type SeverityChange struct {
	ResourceID   string
	ResourceType string
	Previous     models.Severity
	Current      models.Severity
}

// FindingChange associates a finding with the resource it was raised on.
type FindingChange struct {
	ResourceID string
	Finding    models.CorrelatedFinding
}

// DiffResult holds the complete delta between a current and a previous scan.
// All slice fields are non-nil (empty slices, not nil) so callers can range
// over them unconditionally. Every slice is sorted by resource id.
type DiffResult struct {
	PreviousScanID string
	CurrentScanID  string

	// Resource changes
	NewResources     []models.ScanResult
	RemovedResources []models.ScanResult

	// Score changes on resources present in both scans
	Escalated   []SeverityChange
	Deescalated []SeverityChange

	// Finding changes keyed by resource, feed and indicator
	NewFindings      []FindingChange
	ResolvedFindings []FindingChange

	// Summary counts (convenient for rendering without re-iterating slices)
	CurrentResourceCount  int
	PreviousResourceCount int
	CurrentFindingCount   int
	PreviousFindingCount  int
	CurrentWorst          models.Severity
	PreviousWorst         models.Severity
}

// IsEmpty reports whether nothing changed.
func (r *DiffResult) IsEmpty() bool {
	return len(r.NewResources) == 0 &&
		len(r.RemovedResources) == 0 &&
		len(r.Escalated) == 0 &&
		len(r.Deescalated) == 0 &&
		len(r.NewFindings) == 0 &&
		len(r.ResolvedFindings) == 0
}

// NewlyRisky returns resources that are new at MEDIUM or above, plus those
// escalated to MEDIUM or above.
func (r *DiffResult) NewlyRisky() []SeverityChange {
	out := []SeverityChange{}
	for _, res := range r.NewResources {
		if res.RiskScore.Rank() >= models.SeverityMedium.Rank() {
			out = append(out, SeverityChange{ResourceID: res.ResourceID, ResourceType: res.ResourceType, Current: res.RiskScore})
		}
	}
	for _, c := range r.Escalated {
		if c.Current.Rank() >= models.SeverityMedium.Rank() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}

// ComputeDiff calculates the delta between current and previous scans.
// Both arguments must be non-nil; pass an empty Scan for the
// "no previous scan" case.
func ComputeDiff(current, previous *models.Scan) *DiffResult {
	dr := &DiffResult{
		PreviousScanID:   previous.ID,
		CurrentScanID:    current.ID,
		NewResources:     []models.ScanResult{},
		RemovedResources: []models.ScanResult{},
		Escalated:        []SeverityChange{},
		Deescalated:      []SeverityChange{},
		NewFindings:      []FindingChange{},
		ResolvedFindings: []FindingChange{},
	}

	diffResources(dr, current.Results, previous.Results)
	diffFindings(dr, current.Results, previous.Results)

	dr.CurrentResourceCount = len(current.Results)
	dr.PreviousResourceCount = len(previous.Results)
	dr.CurrentFindingCount = totalFindingCount(current.Results)
	dr.PreviousFindingCount = totalFindingCount(previous.Results)
	dr.CurrentWorst = current.WorstSeverity()
	dr.PreviousWorst = previous.WorstSeverity()

	return dr
}

// diffResources computes added, removed and re-scored resources.
// Key: ScanResult.ResourceID (the plan address).
func diffResources(dr *DiffResult, current, previous []models.ScanResult) {
	prevByID := make(map[string]models.ScanResult, len(previous))
	for _, r := range previous {
		prevByID[r.ResourceID] = r
	}

	currByID := make(map[string]models.ScanResult, len(current))
	for _, r := range current {
		currByID[r.ResourceID] = r
	}

	for _, r := range current {
		prev, existed := prevByID[r.ResourceID]
		if !existed {
			dr.NewResources = append(dr.NewResources, r)
			continue
		}

		change := SeverityChange{
			ResourceID:   r.ResourceID,
			ResourceType: r.ResourceType,
			Previous:     prev.RiskScore,
			Current:      r.RiskScore,
		}
		switch cmp := models.CompareSeverity(r.RiskScore, prev.RiskScore); {
		case cmp > 0:
			dr.Escalated = append(dr.Escalated, change)
		case cmp < 0:
			dr.Deescalated = append(dr.Deescalated, change)
		}
	}

	for _, r := range previous {
		if _, exists := currByID[r.ResourceID]; !exists {
			dr.RemovedResources = append(dr.RemovedResources, r)
		}
	}

	sort.Slice(dr.NewResources, func(i, j int) bool { return dr.NewResources[i].ResourceID < dr.NewResources[j].ResourceID })
	sort.Slice(dr.RemovedResources, func(i, j int) bool {
		return dr.RemovedResources[i].ResourceID < dr.RemovedResources[j].ResourceID
	})
	sort.Slice(dr.Escalated, func(i, j int) bool { return dr.Escalated[i].ResourceID < dr.Escalated[j].ResourceID })
	sort.Slice(dr.Deescalated, func(i, j int) bool { return dr.Deescalated[i].ResourceID < dr.Deescalated[j].ResourceID })
}

// findingKey uniquely identifies a finding on a resource.
// Format: "resourceID::feed::indicator"
func findingKey(resourceID string, f models.CorrelatedFinding) string {
	return fmt.Sprintf("%s::%s::%s", resourceID, f.Feed, f.Indicator)
}

func indexFindings(results []models.ScanResult) (map[string]FindingChange, []string) {
	idx := make(map[string]FindingChange)
	var keys []string
	for _, r := range results {
		for _, f := range r.Findings {
			key := findingKey(r.ResourceID, f)
			if _, dup := idx[key]; !dup {
				keys = append(keys, key)
			}
			idx[key] = FindingChange{ResourceID: r.ResourceID, Finding: f}
		}
	}
	sort.Strings(keys)
	return idx, keys
}

// diffFindings computes new and resolved findings.
func diffFindings(dr *DiffResult, current, previous []models.ScanResult) {
	prev, prevKeys := indexFindings(previous)
	curr, currKeys := indexFindings(current)

	for _, key := range currKeys {
		if _, exists := prev[key]; !exists {
			dr.NewFindings = append(dr.NewFindings, curr[key])
		}
	}

	for _, key := range prevKeys {
		if _, exists := curr[key]; !exists {
			dr.ResolvedFindings = append(dr.ResolvedFindings, prev[key])
		}
	}
}

func totalFindingCount(results []models.ScanResult) int {
	total := 0
	for _, r := range results {
		total += len(r.Findings)
	}
	return total
}
