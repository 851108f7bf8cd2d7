package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/c360studio/tripsync/recommendation"
)

// GroundingIssue is a factual claim that the research does not back.
type GroundingIssue struct {
	Claim      string   `json:"claim"`
	Location   string   `json:"location"`
	Severity   Severity `json:"severity"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// GroundingResult reports how much of the output's factual content is
// traceable to research.
type GroundingResult struct {
	IsGrounded    bool             `json:"is_grounded"`
	Issues        []GroundingIssue `json:"issues"`
	SourcesCount  int              `json:"sources_count"`
	CoverageScore float64          `json:"coverage_score"`
	Summary       string           `json:"summary"`
}

// MinCoverage is the share of backed claims an output needs to be grounded.
const MinCoverage = 0.8

// minTokenShare is the share of a claim's significant tokens that must
// appear in one research entry for the claim to count as backed.
const minTokenShare = 0.5

type claim struct {
	text     string
	dest     string
	location string
	severity Severity
	isCost   bool
}

var tokenSplitRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "into": {}, "your": {},
	"day": {}, "visit": {}, "explore": {}, "enjoy": {}, "tour": {}, "local": {},
	"per": {}, "person": {}, "trip": {}, "this": {}, "that": {}, "are": {},
}

// CheckGrounding checks the factual claims in target against research. Cost
// estimates and itinerary totals are critical claims; highlights and priced
// activities are minor ones.
func CheckGrounding(target Target, research []recommendation.ResearchFacts) GroundingResult {
	claims, sources := collectClaims(target)
	result := GroundingResult{
		Issues:       []GroundingIssue{},
		SourcesCount: len(sources),
	}

	if len(claims) == 0 {
		result.IsGrounded = true
		result.CoverageScore = 1.0
		result.Summary = "No factual claims to ground"
		return result
	}

	backed := 0
	for _, c := range claims {
		dest := c.dest
		facts, ok := recommendation.FactsFor(research, dest)
		if ok && len(sources) > 0 && isBacked(c, facts) {
			backed++
			continue
		}
		suggestion := fmt.Sprintf("Cite research for %s", dest)
		if len(sources) == 0 {
			suggestion = "Add sources from destination research"
		}
		result.Issues = append(result.Issues, GroundingIssue{
			Claim:      c.text,
			Location:   c.location,
			Severity:   c.severity,
			Suggestion: suggestion,
		})
	}

	if len(sources) > 0 {
		result.CoverageScore = float64(backed) / float64(len(claims))
	}
	hasError := lo.ContainsBy(result.Issues, func(i GroundingIssue) bool { return i.Severity == SeverityError })
	result.IsGrounded = result.CoverageScore >= MinCoverage && !hasError

	switch {
	case len(sources) == 0:
		result.Summary = fmt.Sprintf("%d factual claims but no sources provided", len(claims))
	default:
		result.Summary = fmt.Sprintf("%d of %d factual claims backed by research (%.0f%% coverage, %d sources)",
			backed, len(claims), result.CoverageScore*100, len(sources))
	}
	return result
}

func collectClaims(target Target) ([]claim, []string) {
	var (
		claims  []claim
		sources []string
	)
	if p := target.Pack; p != nil {
		for _, o := range p.Options {
			sources = append(sources, o.Sources...)
			if o.EstimatedCost.PerPersonHigh > 0 {
				claims = append(claims, claim{
					text:     fmt.Sprintf("Estimated cost $%d-$%d per person", o.EstimatedCost.PerPersonLow, o.EstimatedCost.PerPersonHigh),
					dest:     o.Name,
					location: o.Name,
					severity: SeverityError,
					isCost:   true,
				})
			}
			for _, h := range o.SampleHighlights2Day {
				claims = append(claims, claim{text: h, dest: o.Name, location: o.Name + " / " + h, severity: SeverityWarning})
			}
		}
	}
	if it := target.Itinerary; it != nil {
		sources = append(sources, it.Sources...)
		for _, a := range it.Activities() {
			if a.Cost() <= 0 {
				continue
			}
			claims = append(claims, claim{
				text:     a.Title + " " + a.Description,
				dest:     it.DestinationName,
				location: it.DestinationName + " / " + a.Title,
				severity: SeverityWarning,
			})
		}
		if it.TotalEstimatedCostPerPerson > 0 {
			claims = append(claims, claim{
				text:     fmt.Sprintf("Total $%d per person", it.TotalEstimatedCostPerPerson),
				dest:     it.DestinationName,
				location: it.DestinationName,
				severity: SeverityError,
				isCost:   true,
			})
		}
	}
	sources = lo.Uniq(lo.Filter(sources, func(s string, _ int) bool { return strings.TrimSpace(s) != "" }))
	return claims, sources
}

func isBacked(c claim, facts recommendation.ResearchFacts) bool {
	if c.isCost {
		return strings.TrimSpace(facts.TypicalCostSignals) != ""
	}
	want := significantTokens(c.text)
	if len(want) == 0 {
		return true
	}

	corpus := append(append([]string{}, facts.Facts...), facts.TwoDayHighlights...)
	corpus = append(corpus, facts.TypicalCostSignals, facts.SeasonalityNotes)
	for _, entry := range corpus {
		have := lo.SliceToMap(significantTokens(entry), func(t string) (string, struct{}) { return t, struct{}{} })
		hits := lo.CountBy(want, func(t string) bool { _, ok := have[t]; return ok })
		if float64(hits) >= minTokenShare*float64(len(want)) {
			return true
		}
	}
	return false
}

func significantTokens(s string) []string {
	parts := tokenSplitRe.Split(strings.ToLower(s), -1)
	return lo.Uniq(lo.Filter(parts, func(p string, _ int) bool {
		if len(p) < 3 {
			return false
		}
		_, stop := stopwords[p]
		return !stop
	}))
}
