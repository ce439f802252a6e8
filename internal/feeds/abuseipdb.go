package feeds

import (
	"context"
	"fmt"
	"net/url"

	"github.com/hakim/threatiac/internal/models"
)

const abuseIPDBBase = "https://api.abuseipdb.com/api/v2/check"

// AbuseIPDB maps abuseConfidenceScore to severity:
// >= 75 HIGH, >= 30 MEDIUM, otherwise LOW.
type AbuseIPDB struct {
	client
}

// NewAbuseIPDB creates an AbuseIPDB adapter.
func NewAbuseIPDB(opts Options) *AbuseIPDB {
	return &AbuseIPDB{client: newClient(FeedAbuseIPDB, abuseIPDBBase, opts)}
}

type abuseIPDBResponse struct {
	Data struct {
		AbuseConfidenceScore int `json:"abuseConfidenceScore"`
	} `json:"data"`
}

// Lookup checks one address against AbuseIPDB.
func (a *AbuseIPDB) Lookup(ctx context.Context, indicator string) []models.Finding {
	if indicator == "" {
		return nil
	}
	if !a.configured() {
		return a.placeholder(indicator)
	}

	q := url.Values{}
	q.Set("ipAddress", indicator)
	q.Set("maxAgeInDays", "90")

	var body abuseIPDBResponse
	err := a.getJSON(ctx, a.baseURL+"?"+q.Encode(), map[string]string{"Key": a.apiKey}, &body)
	if err != nil {
		a.absorb(indicator, err)
		return nil
	}

	score := body.Data.AbuseConfidenceScore
	return []models.Finding{{
		Feed:      a.name,
		Indicator: indicator,
		Risk:      abuseSeverity(score),
		Evidence:  fmt.Sprintf("abuse_score=%d", score),
	}}
}

func abuseSeverity(score int) models.Severity {
	switch {
	case score >= 75:
		return models.SeverityHigh
	case score >= 30:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
