package feeds

import (
	"context"
	"encoding/json"
	"net"
	"net/url"
	"strings"

	"github.com/hakim/threatiac/internal/models"
)

const otxBase = "https://otx.alienvault.com/api/v1"

// hostAttributes are the resource attributes OTX inspects for embedded hosts.
var hostAttributes = []string{"endpoint", "public_ip", "dns_name", "domain_name", "fqdn"}

// OTX inspects a resource for embedded hostnames and addresses and reports
// HIGH for every one AlienVault OTX flags as malicious.
type OTX struct {
	client
}

// NewOTX creates an AlienVault OTX adapter.
func NewOTX(opts Options) *OTX {
	return &OTX{client: newClient(FeedOTX, otxBase, opts)}
}

type otxGeneralResponse struct {
	Reputation json.RawMessage `json:"reputation"`
}

// Inspect queries OTX for every host embedded in the resource attributes.
func (o *OTX) Inspect(ctx context.Context, res models.ResourceDescriptor) []models.Finding {
	candidates := EmbeddedHosts(res.Attributes)
	if len(candidates) == 0 {
		return nil
	}
	if !o.configured() {
		return o.placeholder(candidates[0])
	}

	var findings []models.Finding
	for _, host := range candidates {
		var body otxGeneralResponse
		endpoint := strings.TrimRight(o.baseURL, "/") + "/indicators/" + indicatorSection(host) + "/" + url.PathEscape(host) + "/general"
		if err := o.getJSON(ctx, endpoint, map[string]string{"X-OTX-API-KEY": o.apiKey}, &body); err != nil {
			o.absorb(host, err)
			continue
		}
		if !reputationMalicious(body.Reputation) {
			continue
		}
		findings = append(findings, models.Finding{
			Feed:      o.name,
			Indicator: host,
			Risk:      models.SeverityHigh,
			Evidence:  "reputation=" + string(body.Reputation),
		})
	}
	return findings
}

// EmbeddedHosts returns the deduplicated hosts and addresses found in the
// well-known host attributes, with any scheme, path or port removed.
func EmbeddedHosts(attrs map[string]any) []string {
	seen := make(map[string]bool)
	var hosts []string
	for _, key := range hostAttributes {
		raw, _ := attrs[key].(string)
		host := hostOnly(raw)
		if host == "" || seen[host] {
			continue
		}
		seen[host] = true
		hosts = append(hosts, host)
	}
	return hosts
}

func hostOnly(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if i := strings.Index(raw, "://"); i >= 0 {
		raw = raw[i+3:]
	}
	if i := strings.IndexAny(raw, "/?#"); i >= 0 {
		raw = raw[:i]
	}
	if h, _, err := net.SplitHostPort(raw); err == nil {
		raw = h
	}
	return strings.Trim(raw, "[]")
}

// indicatorSection picks the OTX indicator type for a host.
func indicatorSection(host string) string {
	ip := net.ParseIP(host)
	switch {
	case ip == nil:
		return "hostname"
	case ip.To4() != nil:
		return "IPv4"
	default:
		return "IPv6"
	}
}

// reputationMalicious reports whether the reputation block carries a truthy
// malicious marker. OTX returns either an object or a bare number here.
func reputationMalicious(raw json.RawMessage) bool {
	var rep map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &rep) != nil {
		return false
	}
	switch v := rep["malicious"].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != "" && v != "0" && !strings.EqualFold(v, "false")
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return false
	}
}
