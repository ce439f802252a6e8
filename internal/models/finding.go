package models

// Finding is one observation from a single threat-intelligence feed about one
// indicator.
type Finding struct {
	Feed      string   `json:"feed"`
	Indicator string   `json:"indicator"`
	Risk      Severity `json:"risk"`
	Evidence  string   `json:"evidence"`
}

// CorrelatedFinding is a Finding re-evaluated against its resource's context.
type CorrelatedFinding struct {
	Finding
	RiskLevel    Severity `json:"risk_level"`
	Details      string   `json:"details"`
	ContextFlags []string `json:"context_flags"`
}

// ScanResult is the explainable outcome for one resource.
type ScanResult struct {
	ResourceID   string              `json:"resource_id"`
	ResourceType string              `json:"resource_type"`
	RiskScore    Severity            `json:"risk_score"`
	Details      string              `json:"details"`
	Findings     []CorrelatedFinding `json:"findings"`
}
