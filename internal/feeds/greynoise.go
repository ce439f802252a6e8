package feeds

import (
	"context"
	"net/url"
	"strings"

	"github.com/hakim/threatiac/internal/models"
)

const greyNoiseBase = "https://api.greynoise.io/v3/community"

// GreyNoise reports MEDIUM for addresses classified as internet background
// noise and nothing otherwise.
type GreyNoise struct {
	client
}

// NewGreyNoise creates a GreyNoise community API adapter.
func NewGreyNoise(opts Options) *GreyNoise {
	return &GreyNoise{client: newClient(FeedGreyNoise, greyNoiseBase, opts)}
}

type greyNoiseResponse struct {
	Noise          bool   `json:"noise"`
	Riot           bool   `json:"riot"`
	Classification string `json:"classification"`
}

// Lookup checks one address against GreyNoise.
func (g *GreyNoise) Lookup(ctx context.Context, indicator string) []models.Finding {
	if indicator == "" {
		return nil
	}
	if !g.configured() {
		return g.placeholder(indicator)
	}

	var body greyNoiseResponse
	endpoint := strings.TrimRight(g.baseURL, "/") + "/" + url.PathEscape(indicator)
	if err := g.getJSON(ctx, endpoint, map[string]string{"Key": g.apiKey}, &body); err != nil {
		g.absorb(indicator, err)
		return nil
	}

	if !body.Noise {
		return nil
	}
	return []models.Finding{{
		Feed:      g.name,
		Indicator: indicator,
		Risk:      models.SeverityMedium,
		Evidence:  "noise=true",
	}}
}
