package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/preference"
)

// Issue is one constraint violation or advisory.
type Issue struct {
	Category     Category `json:"category"`
	Severity     Severity `json:"severity"`
	Description  string   `json:"description"`
	AffectedItem string   `json:"affected_item,omitempty"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
}

// ComplianceResult lists errors (Issues) and advisories (Warnings).
type ComplianceResult struct {
	IsValid  bool    `json:"is_valid"`
	Issues   []Issue `json:"issues"`
	Warnings []Issue `json:"warnings"`
	Summary  string  `json:"summary"`
}

// nearLimitPct is the share of the budget ceiling that triggers a warning.
const nearLimitPct = 95

// dietaryConflicts maps a restriction keyword to menu terms that break it.
var dietaryConflicts = []struct {
	keyword string
	terms   []string
}{
	{"vegan", []string{"steakhouse", "steak", "barbecue", "bbq", "pork", "lamb", "seafood", "cheese", "dairy", "gelato", "ice cream", "butcher"}},
	{"vegetarian", []string{"steakhouse", "steak", "barbecue", "bbq", "pork", "lamb", "seafood", "butcher", "charcuterie"}},
	{"halal", []string{"pork", "bacon", "ham", "charcuterie", "wine tasting", "brewery", "beer"}},
	{"kosher", []string{"pork", "bacon", "ham", "shellfish", "lobster", "shrimp", "crab", "oyster"}},
	{"gluten", []string{"bakery", "pastry", "pasta", "pizza", "brewery", "beer tasting"}},
	{"shellfish", []string{"shellfish", "lobster", "shrimp", "prawn", "crab", "oyster", "clam", "mussel", "seafood"}},
	{"nut", []string{"peanut", "almond", "walnut", "pecan", "praline", "pistachio"}},
}

var (
	mobilityNeedRe  = regexp.MustCompile(`(?i)\b(wheelchair|mobility|walker|cane|crutches)\b`)
	demandingTermRe = regexp.MustCompile(`(?i)\b(hik(e|es|ing)|climb\w*|stairs?|trek\w*|steep|scrambl\w*)\b`)
)

// scanItem is one piece of target text with a label for reporting.
type scanItem struct {
	label string
	text  string
}

// CheckCompliance validates target against the group's hard constraints.
// Errors make the result invalid; warnings never do.
func CheckCompliance(target Target, profile preference.GroupProfile) ComplianceResult {
	result := ComplianceResult{Issues: []Issue{}, Warnings: []Issue{}}

	checkDates := target.Itinerary != nil && profile.DateOverlap.HasOverlap
	if !profile.HasHardConstraints() && !checkDates {
		result.IsValid = true
		result.Summary = "No hard constraints to validate"
		return result
	}

	add := func(iss Issue) {
		if iss.Severity == SeverityError {
			result.Issues = append(result.Issues, iss)
		} else {
			result.Warnings = append(result.Warnings, iss)
		}
	}

	if limit, ok := profile.BudgetCap(); ok {
		for _, iss := range budgetIssues(target, limit) {
			add(iss)
		}
	}
	if checkDates {
		for _, iss := range dateIssues(*target.Itinerary, profile.DateOverlap) {
			add(iss)
		}
	}

	items := scanItems(target)
	// Food and mobility matches in destination highlights are warnings.
	explicit := SeverityWarning
	if target.Itinerary != nil {
		explicit = SeverityError
	}

	for _, restriction := range profile.Constraints.DietaryRestrictions {
		for _, iss := range dietaryIssues(items, restriction, explicit) {
			add(iss)
		}
	}
	for _, need := range profile.Constraints.AccessibilityNeeds {
		if !mobilityNeedRe.MatchString(need) {
			continue
		}
		for _, it := range items {
			if m := demandingTermRe.FindString(it.text); m != "" {
				add(Issue{
					Category:     CategoryAccessibility,
					Severity:     explicit,
					Description:  fmt.Sprintf("%q involves %q, which conflicts with the %s need", it.label, strings.ToLower(m), need),
					AffectedItem: it.label,
					SuggestedFix: "Replace with an accessible alternative",
				})
			}
		}
	}
	for _, hn := range lo.Uniq(profile.Constraints.HardNos) {
		re := HardNoPattern(hn)
		if re == nil {
			continue
		}
		for _, it := range items {
			if re.MatchString(it.text) {
				add(Issue{
					Category:     CategoryHardNo,
					Severity:     SeverityError,
					Description:  fmt.Sprintf("%q violates the hard no %q", it.label, hn),
					AffectedItem: it.label,
					SuggestedFix: fmt.Sprintf("Remove or replace %q", it.label),
				})
			}
		}
	}

	result.IsValid = len(result.Issues) == 0
	result.Summary = complianceSummary(result)
	return result
}

// HardNoPattern compiles a case-insensitive whole-word matcher for the
// subject of a hard no, so "No hiking" matches "Hiking trail" but not
// "biking". It returns nil for an empty subject.
func HardNoPattern(hardNo string) *regexp.Regexp {
	subject := preference.HardNoSubject(hardNo)
	if subject == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(subject) + `\b`)
}

// DietaryTerms returns the menu terms that conflict with a restriction.
func DietaryTerms(restriction string) []string {
	r := strings.ToLower(restriction)
	for _, dc := range dietaryConflicts {
		if strings.Contains(r, dc.keyword) {
			return dc.terms
		}
	}
	return nil
}

// IsMobilityNeed reports whether an accessibility need limits physical
// exertion.
func IsMobilityNeed(need string) bool { return mobilityNeedRe.MatchString(need) }

// DemandingActivity returns the first physically demanding term in text.
func DemandingActivity(text string) string { return demandingTermRe.FindString(text) }

func budgetIssues(target Target, limit int) []Issue {
	check := func(label string, amount int, fix string) []Issue {
		switch {
		case amount > limit:
			return []Issue{{
				Category:     CategoryBudget,
				Severity:     SeverityError,
				Description:  fmt.Sprintf("%s costs $%d per person, above the $%d budget limit", label, amount, limit),
				AffectedItem: label,
				SuggestedFix: fmt.Sprintf(fix, amount-limit),
			}}
		case amount*100 >= limit*nearLimitPct:
			return []Issue{{
				Category:     CategoryBudget,
				Severity:     SeverityWarning,
				Description:  fmt.Sprintf("%s costs $%d per person, within %d%% of the $%d budget limit", label, amount, 100-nearLimitPct, limit),
				AffectedItem: label,
			}}
		}
		return nil
	}

	var out []Issue
	if target.Pack != nil {
		for _, o := range target.Pack.Options {
			out = append(out, check(o.Name, o.EstimatedCost.PerPersonHigh, "Reduce the high estimate by $%d or replace this destination")...)
		}
	}
	if target.Itinerary != nil {
		it := target.Itinerary
		total := it.TotalEstimatedCostPerPerson
		if sum := itinerary.ValidateCosts(*it, nil).TotalCalculated; sum > total {
			total = sum
		}
		out = append(out, check("Itinerary total", total, "Reduce costs by $%d")...)
	}
	return out
}

func dateIssues(it itinerary.Itinerary, window preference.DateOverlap) []Issue {
	var out []Issue
	start, okStart := preference.ParseDate(window.OverlapStart)
	end, okEnd := preference.ParseDate(window.OverlapEnd)
	if !okStart || !okEnd {
		return nil
	}

	for _, d := range it.Days {
		if d.DateISO == "" {
			continue
		}
		date, ok := preference.ParseDate(d.DateISO)
		if !ok {
			out = append(out, Issue{
				Category:     CategoryDates,
				Severity:     SeverityWarning,
				Description:  fmt.Sprintf("Day %d has an unreadable date %q", d.DayIndex, d.DateISO),
				AffectedItem: fmt.Sprintf("Day %d", d.DayIndex),
			})
			continue
		}
		if date.Before(start) || date.After(end) {
			out = append(out, Issue{
				Category:     CategoryDates,
				Severity:     SeverityError,
				Description:  fmt.Sprintf("Day %d (%s) falls outside the group window %s to %s", d.DayIndex, d.DateISO, window.OverlapStart, window.OverlapEnd),
				AffectedItem: fmt.Sprintf("Day %d", d.DayIndex),
				SuggestedFix: "Move the trip inside the shared date window",
			})
		}
	}

	if len(it.Days) > window.OverlapDays {
		out = append(out, Issue{
			Category:    CategoryDates,
			Severity:    SeverityWarning,
			Description: fmt.Sprintf("Trip is %d days but the group overlap is only %d days", len(it.Days), window.OverlapDays),
		})
	}
	return out
}

func dietaryIssues(items []scanItem, restriction string, severity Severity) []Issue {
	terms := DietaryTerms(restriction)
	if len(terms) == 0 {
		return nil
	}
	var out []Issue
	for _, it := range items {
		lower := strings.ToLower(it.text)
		for _, term := range terms {
			if !containsWord(lower, term) {
				continue
			}
			out = append(out, Issue{
				Category:     CategoryDietary,
				Severity:     severity,
				Description:  fmt.Sprintf("%q mentions %q, which conflicts with a %s restriction", it.label, term, restriction),
				AffectedItem: it.label,
				SuggestedFix: fmt.Sprintf("Choose a venue that serves %s food", restriction),
			})
			break
		}
	}
	return out
}

func containsWord(lower, term string) bool {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `s?\b`).MatchString(lower)
}

func scanItems(target Target) []scanItem {
	var items []scanItem
	if target.Pack != nil {
		for _, o := range target.Pack.Options {
			items = append(items, scanItem{label: o.Name, text: o.Name + " " + strings.Join(o.WhyItFits, " ")})
			for _, h := range o.SampleHighlights2Day {
				items = append(items, scanItem{label: o.Name + ": " + h, text: h})
			}
		}
	}
	if target.Itinerary != nil {
		for _, a := range target.Itinerary.Activities() {
			text := strings.Join(append([]string{a.Title, a.Description}, a.Tips...), " ")
			items = append(items, scanItem{label: a.Title, text: text})
		}
	}
	return items
}

func complianceSummary(r ComplianceResult) string {
	if r.IsValid {
		if len(r.Warnings) == 0 {
			return "All hard constraints satisfied"
		}
		return fmt.Sprintf("All hard constraints satisfied with %d warning(s)", len(r.Warnings))
	}
	cats := lo.Uniq(lo.Map(r.Issues, func(i Issue, _ int) string { return string(i.Category) }))
	sort.Strings(cats)
	return fmt.Sprintf("%d constraint violation(s) found: %s", len(r.Issues), strings.Join(cats, ", "))
}
