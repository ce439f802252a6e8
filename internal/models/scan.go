package models

import (
	"time"

	"github.com/google/uuid"
)

// Scan is one end-to-end evaluation of a submitted plan
type Scan struct {
	ID          string       `json:"scan_id"`
	Status      ScanStatus   `json:"status"`
	ArtifactKey string       `json:"artifact_key,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Results     []ScanResult `json:"results"`
	Error       string       `json:"error_message,omitempty"`
}

// NewScan creates a new PENDING scan for the given artifact key.
func NewScan(artifactKey string) *Scan {
	now := time.Now().UTC()
	return &Scan{
		ID:          NewScanID(),
		Status:      StatusPending,
		ArtifactKey: artifactKey,
		CreatedAt:   now,
		UpdatedAt:   now,
		Results:     []ScanResult{},
	}
}

// NewScanID mints a unique scan identifier.
func NewScanID() string {
	return "scan-" + uuid.New().String()
}

// WorstSeverity returns the highest risk score across all results.
func (s *Scan) WorstSeverity() Severity {
	worst := SeverityLow
	for _, r := range s.Results {
		worst = MaxSeverity(worst, r.RiskScore)
	}
	return worst
}

// ScanUpdate is a partial write against a stored scan. Nil fields leave the
// stored value untouched.
type ScanUpdate struct {
	Status  ScanStatus
	Results []ScanResult
	Error   *string
}

// ScanJob is the queue message that asks a worker to process one scan.
type ScanJob struct {
	ScanID      string `json:"scan_id"`
	ArtifactKey string `json:"artifact_key"`
	Attempts    int    `json:"attempts,omitempty"`
}
