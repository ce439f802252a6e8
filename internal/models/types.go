package models

import "strings"

// ScanStatus represents the current state of a scan
type ScanStatus string

const (
	StatusPending   ScanStatus = "PENDING"
	StatusWorking   ScanStatus = "WORKING"
	StatusCompleted ScanStatus = "COMPLETED"
	StatusFailed    ScanStatus = "FAILED"
)

// statusOrder gives each status its position in the lifecycle.
var statusOrder = map[ScanStatus]int{
	StatusPending:   0,
	StatusWorking:   1,
	StatusCompleted: 2,
	StatusFailed:    2,
}

// IsValid reports whether s is one of the four lifecycle values.
func (s ScanStatus) IsValid() bool {
	_, ok := statusOrder[s]
	return ok
}

// Stage returns the lifecycle position of s: PENDING 0, WORKING 1, terminal 2.
// Unknown values return -1.
func (s ScanStatus) Stage() int {
	if stage, ok := statusOrder[s]; ok {
		return stage
	}
	return -1
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s ScanStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a forward step.
// Terminal states accept no transition.
func (s ScanStatus) CanTransition(next ScanStatus) bool {
	if !s.IsValid() || !next.IsValid() || s.IsTerminal() {
		return false
	}
	return statusOrder[next] > statusOrder[s]
}

// Severity is the four-level risk enum. LOW < MEDIUM < HIGH < CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every level from least to most severe.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank maps a severity to its ordinal weight (LOW=1 … CRITICAL=4).
// Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// IsValid reports whether s is one of the four enum values.
func (s Severity) IsValid() bool {
	return s.Rank() > 0
}

func (s Severity) String() string {
	return string(s)
}

// SeverityFromRank is the inverse of Rank, clamped to [LOW, CRITICAL].
func SeverityFromRank(rank int) Severity {
	if rank < 1 {
		rank = 1
	}
	if rank > len(Severities) {
		rank = len(Severities)
	}
	return Severities[rank-1]
}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return "", false
	}
	return sev, true
}

// CompareSeverity returns a negative number when a < b, zero when equal and a
// positive number when a > b.
func CompareSeverity(a, b Severity) int {
	return a.Rank() - b.Rank()
}

// MaxSeverity returns the most severe of the given levels, LOW when empty.
func MaxSeverity(levels ...Severity) Severity {
	worst := SeverityLow
	for _, l := range levels {
		if l.Rank() > worst.Rank() {
			worst = l
		}
	}
	return worst
}
