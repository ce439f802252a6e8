package models

// ResourceDescriptor is one resource extracted from a plan document.
// Attributes hold the post-change state exactly as the plan declares it.
type ResourceDescriptor struct {
	ResourceID string         `json:"resource_id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes"`
}

// ResourceContext summarises the exposure signals of a resource.
type ResourceContext struct {
	Public       bool  `json:"public"`
	Sensitive    bool  `json:"sensitive"`
	ExposedPorts []int `json:"exposed_ports,omitempty"`
}

// Context flag names attached to correlated findings.
const (
	FlagPublic       = "public"
	FlagSensitive    = "sensitive"
	FlagExposedPorts = "exposed_ports"
)

// Flags returns the active context tags in a fixed order.
func (c ResourceContext) Flags() []string {
	flags := []string{}
	if c.Public {
		flags = append(flags, FlagPublic)
	}
	if c.Sensitive {
		flags = append(flags, FlagSensitive)
	}
	if len(c.ExposedPorts) > 0 {
		flags = append(flags, FlagExposedPorts)
	}
	return flags
}

// ExposureFactor is 1.0 plus an additive bump for each active signal.
func (c ResourceContext) ExposureFactor() float64 {
	factor := 1.0
	if c.Public {
		factor += 0.7
	}
	if c.Sensitive {
		factor += 0.4
	}
	if len(c.ExposedPorts) > 0 {
		factor += 0.3
	}
	return factor
}
