package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hakim/threatiac/internal/feeds"
)

// DefaultPreset enables every feed.
const DefaultPreset = "full"

// Preset is a named selection of feeds to consult during a scan.
type Preset struct {
	Name        string
	Description string
	Feeds       []string
}

// builtinPresets is the registry of all known presets.
var builtinPresets = map[string]Preset{
	"full": {
		Name:        "full",
		Description: "All feeds: IP reputation, scanner noise, exposure and OTX pulses",
		Feeds:       []string{feeds.FeedAbuseIPDB, feeds.FeedGreyNoise, feeds.FeedShodan, feeds.FeedOTX},
	},
	"reputation": {
		Name:        "reputation",
		Description: "IP reputation only (AbuseIPDB, GreyNoise)",
		Feeds:       []string{feeds.FeedAbuseIPDB, feeds.FeedGreyNoise},
	},
	"exposure": {
		Name:        "exposure",
		Description: "Internet exposure only (Shodan, OTX)",
		Feeds:       []string{feeds.FeedShodan, feeds.FeedOTX},
	},
	"offline": {
		Name:        "offline",
		Description: "No feeds; context-only scoring, every resource scores LOW",
		Feeds:       []string{},
	},
}

// BuiltinPresets returns the available preset templates.
func BuiltinPresets() map[string]Preset {
	// Return a copy so callers cannot mutate the registry.
	out := make(map[string]Preset, len(builtinPresets))
	for k, v := range builtinPresets {
		out[k] = v
	}
	return out
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(builtinPresets))
	for name := range builtinPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset by name, or an error if not found.
func GetPreset(name string) (*Preset, error) {
	p, ok := builtinPresets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q, available: %s", name, strings.Join(PresetNames(), ", "))
	}
	cp := p
	return &cp, nil
}

// Select keeps only the feed options named by the preset.
func (p *Preset) Select(opts map[string]feeds.Options) map[string]feeds.Options {
	out := make(map[string]feeds.Options, len(p.Feeds))
	for _, name := range p.Feeds {
		if o, ok := opts[name]; ok {
			out[name] = o
		}
	}
	return out
}
