// Package validation checks generated recommendations and itineraries against
// the group's hard constraints and against the research they cite. Both
// checks are deterministic; their results feed the regeneration loop as
// feedback.
package validation

import (
	"fmt"
	"strings"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/recommendation"
)

// Category groups compliance issues by the constraint they break.
type Category string

const (
	CategoryBudget        Category = "budget"
	CategoryDates         Category = "dates"
	CategoryDietary       Category = "dietary"
	CategoryAccessibility Category = "accessibility"
	CategoryHardNo        Category = "hard_no"
	CategoryOther         Category = "other"
)

// Severity of a single issue. Errors block completion, warnings do not.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Target is the output being validated. Exactly one field is set.
type Target struct {
	Pack      *recommendation.Pack
	Itinerary *itinerary.Itinerary
}

// ForPack wraps a recommendations pack.
func ForPack(p recommendation.Pack) Target { return Target{Pack: &p} }

// ForItinerary wraps an itinerary.
func ForItinerary(it itinerary.Itinerary) Target { return Target{Itinerary: &it} }

// Report is the merged outcome of compliance and grounding checks, stored
// under the validation_result state key.
type Report struct {
	Compliance ComplianceResult `json:"compliance"`
	Grounding  *GroundingResult `json:"grounding,omitempty"`
}

// Passed reports whether the output satisfies every hard constraint and,
// when grounding has run, is grounded.
func (r Report) Passed() bool {
	if !r.Compliance.IsValid {
		return false
	}
	return r.Grounding == nil || r.Grounding.IsGrounded
}

// Feedback lists blocking problems as short instructions for the next
// generation attempt. It is empty when the report passed.
func (r Report) Feedback() []string {
	if r.Passed() {
		return nil
	}
	var out []string
	for _, iss := range r.Compliance.Issues {
		line := iss.Description
		if iss.SuggestedFix != "" {
			line += " (" + iss.SuggestedFix + ")"
		}
		out = append(out, line)
	}
	if r.Grounding != nil && !r.Grounding.IsGrounded {
		for _, gi := range r.Grounding.Issues {
			if gi.Severity != SeverityError {
				continue
			}
			out = append(out, fmt.Sprintf("Unsupported claim at %s: %s", gi.Location, gi.Claim))
		}
		if len(out) == 0 {
			out = append(out, r.Grounding.Summary)
		}
	}
	return out
}

// FormatFeedback renders the report as a markdown block suitable for a
// generation prompt.
func (r Report) FormatFeedback() string {
	lines := r.Feedback()
	if len(lines) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Validation Failed\n\n")
	sb.WriteString("The previous itinerary broke these requirements:\n\n")
	for _, l := range lines {
		sb.WriteString("- " + l + "\n")
	}
	if len(r.Compliance.Warnings) > 0 {
		sb.WriteString("\n### Warnings\n\n")
		for _, w := range r.Compliance.Warnings {
			sb.WriteString("- " + w.Description + "\n")
		}
	}
	sb.WriteString("\nPlease regenerate the itinerary addressing these issues.\n")
	return sb.String()
}
