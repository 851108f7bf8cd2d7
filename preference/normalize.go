package preference

import (
	"regexp"
	"strings"

	"github.com/samber/lo"
)

// KnownVibes is the canonical vibe vocabulary.
var KnownVibes = []string{
	"Beach", "City", "Nature", "Adventure", "Relaxation",
	"Nightlife", "Culture", "Food-focused", "Road trip",
}

var vagueNotesRe = regexp.MustCompile(`(?i)\b(whatever|anything|flexible|down for|don'?t care|up for|open to)\b`)

// Normalize canonicalizes raw member preferences. It trims strings, maps
// vibes onto KnownVibes case-insensitively, turns a vague note into an
// explicit flexible date window, and fills default budget inclusions. It
// never invents dates, budgets or vibes that the member did not give.
func Normalize(recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, normalizeOne(rec))
	}
	return out
}

func normalizeOne(rec Record) Record {
	n := Record{
		UserID: strings.TrimSpace(rec.UserID),
		Notes:  strings.TrimSpace(rec.Notes),
	}
	vague := vagueNotesRe.MatchString(n.Notes)

	if rec.Dates != nil {
		d := *rec.Dates
		d.EarliestStart = canonicalDate(d.EarliestStart)
		d.LatestEnd = canonicalDate(d.LatestEnd)
		d.IdealLength = strings.TrimSpace(d.IdealLength)
		if vague && d.EarliestStart == "" && d.LatestEnd == "" {
			d.Flexible = true
		}
		n.Dates = &d
	} else if vague {
		n.Dates = &Dates{IdealLength: "flexible", Flexible: true}
	}

	if rec.Budget != nil {
		b := *rec.Budget
		if len(b.Includes) == 0 {
			b.Includes = []string{"flights", "accommodation", "food", "activities"}
		}
		b.Flexibility = strings.ToLower(strings.TrimSpace(b.Flexibility))
		if b.MaxBudget == nil && b.Flexibility == "" {
			b.Flexibility = FlexibilityNoLimit
		}
		n.Budget = &b
	}

	if rec.DestinationPrefs != nil {
		dp := *rec.DestinationPrefs
		dp.Vibes = lo.Uniq(lo.FilterMap(dp.Vibes, func(v string, _ int) (string, bool) {
			return CanonicalVibe(v)
		}))
		dp.SpecificPlaces = strings.TrimSpace(dp.SpecificPlaces)
		dp.PlacesToAvoid = strings.TrimSpace(dp.PlacesToAvoid)
		dp.DomesticInternational = strings.ToLower(strings.TrimSpace(dp.DomesticInternational))
		if dp.DomesticInternational == "" {
			dp.DomesticInternational = "either"
		}
		n.DestinationPrefs = &dp
	}

	if rec.Constraints != nil {
		n.Constraints = &Constraints{
			DietaryRestrictions: trimAll(rec.Constraints.DietaryRestrictions, strings.ToLower),
			AccessibilityNeeds:  trimAll(rec.Constraints.AccessibilityNeeds, strings.ToLower),
			HardNos:             trimAll(rec.Constraints.HardNos, nil),
		}
	}

	return n
}

// CanonicalVibe maps free-form vibe text onto KnownVibes. Unknown vibes are
// kept, trimmed, so that a niche interest still participates in matching.
func CanonicalVibe(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	for _, known := range KnownVibes {
		if strings.EqualFold(known, v) {
			return known, true
		}
	}
	return v, true
}

// canonicalDate rewrites a parseable date as YYYY-MM-DD. Unparseable input is
// passed through so the computation tools can drop it.
func canonicalDate(s string) string {
	s = strings.TrimSpace(s)
	t, ok := ParseDate(s)
	if !ok {
		return s
	}
	return formatDate(t)
}

func trimAll(items []string, transform func(string) string) []string {
	return lo.FilterMap(items, func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", false
		}
		if transform != nil {
			s = transform(s)
		}
		return s, true
	})
}
