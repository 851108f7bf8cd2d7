// Package model provides capability-based model selection for pipeline stages.
// Stages ask for a capability (planning, research, writing) and the registry
// resolves it to configured endpoints with a fallback chain.
package model

// Capability represents a semantic capability for model selection.
type Capability string

const (
	// CapabilityPlanning is for choosing and ranking destinations.
	CapabilityPlanning Capability = "planning"

	// CapabilityResearch is for gathering destination facts and sources.
	CapabilityResearch Capability = "research"

	// CapabilityWriting is for itinerary drafts and polish passes.
	CapabilityWriting Capability = "writing"

	// CapabilityFast is for quick responses, simple tasks.
	CapabilityFast Capability = "fast"
)

// StageCapabilities maps generation stages to their default capability.
var StageCapabilities = map[string]Capability{
	"generate_candidates": CapabilityPlanning,
	"research":            CapabilityResearch,
	"rank":                CapabilityPlanning,
	"draft":               CapabilityWriting,
	"polish":              CapabilityWriting,
}

// CapabilityForStage returns the default capability for a generation stage.
// Unknown stages resolve to CapabilityWriting.
func CapabilityForStage(stage string) Capability {
	if c, ok := StageCapabilities[stage]; ok {
		return c
	}
	return CapabilityWriting
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityPlanning, CapabilityResearch, CapabilityWriting, CapabilityFast:
		return true
	}
	return false
}

func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for invalid values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
