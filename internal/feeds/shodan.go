package feeds

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hakim/threatiac/internal/models"
)

const shodanBase = "https://api.shodan.io/shodan/host"

// Shodan counts known vulnerabilities plus Apache banners on a host.
// A count of 0 is LOW, 1-4 MEDIUM, 5 or more HIGH.
type Shodan struct {
	client
}

// NewShodan creates a Shodan host lookup adapter.
func NewShodan(opts Options) *Shodan {
	return &Shodan{client: newClient(FeedShodan, shodanBase, opts)}
}

type shodanBanner struct {
	Product string `json:"product"`
	Port    int    `json:"port"`
}

type shodanHostResponse struct {
	Vulns []string       `json:"vulns"`
	Data  []shodanBanner `json:"data"`
}

// Lookup fetches the Shodan host record for one address.
func (s *Shodan) Lookup(ctx context.Context, indicator string) []models.Finding {
	if indicator == "" {
		return nil
	}
	if !s.configured() {
		return s.placeholder(indicator)
	}

	q := url.Values{}
	q.Set("key", s.apiKey)
	endpoint := strings.TrimRight(s.baseURL, "/") + "/" + url.PathEscape(indicator) + "?" + q.Encode()

	var body shodanHostResponse
	if err := s.getJSON(ctx, endpoint, nil, &body); err != nil {
		s.absorb(indicator, err)
		return nil
	}

	count := len(body.Vulns)
	for _, banner := range body.Data {
		if strings.Contains(strings.ToLower(banner.Product), "apache") {
			count++
		}
	}

	return []models.Finding{{
		Feed:      s.name,
		Indicator: indicator,
		Risk:      shodanSeverity(count),
		Evidence:  fmt.Sprintf("vuln_count=%d", count),
	}}
}

func shodanSeverity(count int) models.Severity {
	switch {
	case count >= 5:
		return models.SeverityHigh
	case count > 0:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
