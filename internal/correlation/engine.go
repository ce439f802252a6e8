// Package correlation re-evaluates feed findings against the exposure context
// of the resource they were raised for.
//
// Context is derived once per resource. Public exposure, sensitivity and
// exposed watch-list ports each add to an exposure factor that starts at 1.0;
// any factor above 1.0 escalates every finding of the resource by
// round(factor-1) severity steps, capped at CRITICAL.
package correlation

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/hakim/threatiac/internal/models"
)

// WatchedPorts are the ports whose exposure raises the factor.
var WatchedPorts = []int{22, 80, 443, 3306, 3389}

var publicACLs = map[string]bool{
	"public-read":       true,
	"public-read-write": true,
}

var openCIDRs = []string{"0.0.0.0/0", "::/0"}

var sensitiveTagMarkers = []string{"prod", "critical"}

var sensitiveNameMarkers = []string{"db", "backup"}

// DeriveContext computes the exposure signals of a resource.
func DeriveContext(res models.ResourceDescriptor) models.ResourceContext {
	attrs := res.Attributes
	return models.ResourceContext{
		Public:       isPublic(attrs),
		Sensitive:    isSensitive(res),
		ExposedPorts: exposedPorts(attrs),
	}
}

// Correlate escalates each finding according to the resource context. The
// output has one entry per input finding, in input order.
func Correlate(res models.ResourceDescriptor, findings []models.Finding) []models.CorrelatedFinding {
	rc := DeriveContext(res)
	factor := rc.ExposureFactor()
	flags := rc.Flags()

	out := make([]models.CorrelatedFinding, 0, len(findings))
	for _, f := range findings {
		base := baseSeverity(f)
		cf := models.CorrelatedFinding{
			Finding:      f,
			RiskLevel:    base,
			ContextFlags: append([]string{}, flags...),
		}

		if factor > 1.0 {
			cf.RiskLevel = Escalate(base, factor-1.0)
			cf.Details = fmt.Sprintf("Escalated %s->%s due to %s (factor=%.2f). Evidence: %s",
				base, cf.RiskLevel, strings.Join(flags, ", "), factor, evidence(f))
		} else {
			cf.Details = "No escalation. Evidence: " + evidence(f)
		}

		out = append(out, cf)
	}
	return out
}

// Escalate raises sev by delta steps, rounded, never past CRITICAL.
func Escalate(sev models.Severity, delta float64) models.Severity {
	rank := sev.Rank()
	if rank == 0 {
		rank = models.SeverityLow.Rank()
	}
	return models.SeverityFromRank(int(math.Round(float64(rank) + delta)))
}

// baseSeverity is the finding's own risk, LOW when missing or unrecognised.
func baseSeverity(f models.Finding) models.Severity {
	if sev, ok := models.ParseSeverity(string(f.Risk)); ok {
		return sev
	}
	return models.SeverityLow
}

func evidence(f models.Finding) string {
	if f.Evidence == "" {
		return "N/A"
	}
	return f.Evidence
}

func isPublic(attrs map[string]any) bool {
	if b, _ := attrs["public"].(bool); b {
		return true
	}
	if b, _ := attrs["associate_public_ip_address"].(bool); b {
		return true
	}
	if acl, _ := attrs["acl"].(string); publicACLs[strings.ToLower(acl)] {
		return true
	}
	return containsOpenCIDR(attrs)
}

// containsOpenCIDR walks the whole attribute tree, keys included.
func containsOpenCIDR(v any) bool {
	switch t := v.(type) {
	case string:
		for _, c := range openCIDRs {
			if strings.Contains(t, c) {
				return true
			}
		}
	case map[string]any:
		for k, val := range t {
			if containsOpenCIDR(k) || containsOpenCIDR(val) {
				return true
			}
		}
	case []any:
		for _, val := range t {
			if containsOpenCIDR(val) {
				return true
			}
		}
	}
	return false
}

func isSensitive(res models.ResourceDescriptor) bool {
	if containsAny(flatten(res.Attributes["tags"]), sensitiveTagMarkers) {
		return true
	}
	name, _ := res.Attributes["name"].(string)
	if containsAny(strings.ToLower(name), sensitiveNameMarkers) {
		return true
	}
	return containsAny(strings.ToLower(res.Name), sensitiveNameMarkers)
}

// flatten renders tags (map, list or scalar) as one lowercase string.
func flatten(v any) string {
	var b strings.Builder
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case nil:
		case map[string]any:
			for k, val := range t {
				b.WriteString(k)
				b.WriteByte(' ')
				walk(val)
			}
		case []any:
			for _, val := range t {
				walk(val)
			}
		default:
			fmt.Fprintf(&b, "%v ", t)
		}
	}
	walk(v)
	return strings.ToLower(b.String())
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// portRange is an inclusive declared port span.
type portRange struct{ from, to int }

// exposedPorts intersects every declared port with WatchedPorts.
func exposedPorts(attrs map[string]any) []int {
	ranges := declaredPorts(attrs)
	if ingress, ok := attrs["ingress"]; ok {
		for _, rule := range asList(ingress) {
			if m, ok := rule.(map[string]any); ok {
				ranges = append(ranges, declaredPorts(m)...)
			}
		}
	}

	hit := map[int]bool{}
	for _, r := range ranges {
		for _, p := range WatchedPorts {
			if p >= r.from && p <= r.to {
				hit[p] = true
			}
		}
	}

	ports := make([]int, 0, len(hit))
	for p := range hit {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}

func declaredPorts(m map[string]any) []portRange {
	var out []portRange
	for _, key := range []string{"port", "ports"} {
		for _, v := range asList(m[key]) {
			if p, ok := toInt(v); ok {
				out = append(out, portRange{p, p})
			}
		}
	}

	from, okFrom := toInt(m["from_port"])
	to, okTo := toInt(m["to_port"])
	switch {
	case allTraffic(m) && from == 0 && to == 0:
		// Terraform's "all traffic" rule declares protocol -1 with 0/0 ports.
		out = append(out, portRange{0, 65535})
	case okFrom && okTo && from <= to:
		out = append(out, portRange{from, to})
	case okFrom:
		out = append(out, portRange{from, from})
	case okTo:
		out = append(out, portRange{to, to})
	}
	return out
}

func allTraffic(m map[string]any) bool {
	switch p := m["protocol"].(type) {
	case string:
		p = strings.ToLower(strings.TrimSpace(p))
		return p == "-1" || p == "all"
	default:
		n, ok := toInt(p)
		return ok && n == -1
	}
}

func asList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}
