// Package parser extracts resource descriptors from Terraform-style change
// plans. A plan is either `terraform show -json` output with a
// resource_changes list, or a flat map of resource-type keys to attributes.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hakim/threatiac/internal/models"
	"gopkg.in/yaml.v3"
)

// resourcePrefixes are the provider prefixes accepted by the flat-map fallback.
var resourcePrefixes = []string{"aws_", "azurerm_", "google_"}

// ParsePlan decodes a raw plan document (JSON, or YAML as a convenience) and
// returns its resources in declaration order. An empty or null document yields
// an empty slice. Bytes that do not decode to an object are an error.
func ParsePlan(data []byte) ([]models.ResourceDescriptor, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []models.ResourceDescriptor{}, nil
	}

	doc, err := decode(trimmed)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return []models.ResourceDescriptor{}, nil
	}
	return ParseDocument(doc), nil
}

// decode tries JSON first and falls back to YAML. The JSON error is reported
// when neither decoder accepts the input.
func decode(data []byte) (map[string]any, error) {
	var raw any
	jsonErr := json.Unmarshal(data, &raw)
	if jsonErr != nil {
		var y any
		if err := yaml.Unmarshal(data, &y); err != nil {
			return nil, fmt.Errorf("decoding plan: %w", jsonErr)
		}
		raw = normalize(y)
	}

	if raw == nil {
		return nil, nil
	}
	doc, ok := raw.(map[string]any)
	if !ok {
		if jsonErr != nil {
			return nil, fmt.Errorf("decoding plan: %w", jsonErr)
		}
		return nil, errors.New("decoding plan: top-level value must be an object")
	}
	return doc, nil
}

// ParseDocument extracts resources from an already-decoded plan. Entries that
// are not objects are skipped; they never abort the rest of the plan.
func ParseDocument(doc map[string]any) []models.ResourceDescriptor {
	parsed := []models.ResourceDescriptor{}
	if doc == nil {
		return parsed
	}

	if changes, ok := doc["resource_changes"].([]any); ok {
		for _, entry := range changes {
			rc, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			parsed = append(parsed, fromResourceChange(rc))
		}
	}

	if len(parsed) > 0 {
		return parsed
	}

	// Fallback: flat map keyed by resource type. Keys are sorted so repeated
	// parses of the same document produce the same order.
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		attrs, ok := doc[k].(map[string]any)
		if !ok || !hasResourcePrefix(k) {
			continue
		}
		parsed = append(parsed, models.ResourceDescriptor{
			ResourceID: k,
			Type:       k,
			Name:       k,
			Attributes: attrs,
		})
	}
	return parsed
}

func fromResourceChange(rc map[string]any) models.ResourceDescriptor {
	address := stringField(rc, "address")

	rtype := stringField(rc, "type")
	if rtype == "" {
		rtype = address
	}
	name := stringField(rc, "name")
	if name == "" {
		name = address
	}

	id := address
	if id == "" {
		id = rtype + "." + name
	}

	var after map[string]any
	if change, ok := rc["change"].(map[string]any); ok {
		after, _ = change["after"].(map[string]any)
	}
	if after == nil {
		after, _ = rc["after"].(map[string]any)
	}
	if after == nil {
		after = map[string]any{}
	}

	return models.ResourceDescriptor{
		ResourceID: id,
		Type:       rtype,
		Name:       name,
		Attributes: after,
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func hasResourcePrefix(key string) bool {
	for _, p := range resourcePrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// normalize converts YAML's map[any]any nodes into map[string]any so the rest
// of the pipeline only deals with one map shape.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}
