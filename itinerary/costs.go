package itinerary

import (
	"fmt"
	"strings"
)

// Cost check thresholds, in USD per person.
const (
	CostTolerance     = 10
	HighActivityCost  = 300
	maxMissingTitles  = 3
	freeShareLimitPct = 50
)

// CostValidation is the result of ValidateCosts.
type CostValidation struct {
	IsValid         bool     `json:"is_valid"`
	TotalCalculated int      `json:"total_calculated"`
	BudgetMax       *int     `json:"budget_max"`
	BudgetExceeded  bool     `json:"budget_exceeded"`
	Issues          []string `json:"issues"`
	Suggestions     []string `json:"suggestions"`
}

// ValidateCosts sums activity costs and checks them against the claimed
// total and an optional per-person budget ceiling. It never modifies it.
func ValidateCosts(it Itinerary, budgetMax *int) CostValidation {
	result := CostValidation{
		BudgetMax:   budgetMax,
		Issues:      []string{},
		Suggestions: []string{},
	}
	issue := func(text, suggestion string) {
		result.Issues = append(result.Issues, text)
		result.Suggestions = append(result.Suggestions, suggestion)
	}

	activities := it.Activities()

	var missing []string
	for _, a := range activities {
		if a.EstimatedCostPerPerson == nil {
			missing = append(missing, titleOr(a.Title, "Unknown activity"))
			continue
		}
		result.TotalCalculated += *a.EstimatedCostPerPerson
	}

	if len(missing) > 0 {
		shown := missing
		if len(shown) > maxMissingTitles {
			shown = shown[:maxMissingTitles]
		}
		issue(
			fmt.Sprintf("Missing cost estimates for %d activities", len(missing)),
			fmt.Sprintf("Add cost estimates for: %s", strings.Join(shown, ", ")),
		)
	}

	claimed := it.TotalEstimatedCostPerPerson
	if abs(result.TotalCalculated-claimed) > CostTolerance {
		issue(
			fmt.Sprintf("Total cost mismatch: claimed $%d, calculated $%d", claimed, result.TotalCalculated),
			fmt.Sprintf("Update total_estimated_cost_per_person to $%d", result.TotalCalculated),
		)
	}

	if budgetMax != nil && result.TotalCalculated > *budgetMax {
		result.BudgetExceeded = true
		over := result.TotalCalculated - *budgetMax
		issue(
			fmt.Sprintf("Budget exceeded: $%d > $%d (over by $%d)", result.TotalCalculated, *budgetMax, over),
			fmt.Sprintf("Reduce costs by $%d: consider cheaper meals, free activities", over),
		)
	}

	free := 0
	for _, a := range activities {
		title := titleOr(a.Title, "Unknown")
		if c := a.Cost(); c > HighActivityCost {
			issue(
				fmt.Sprintf("Very high cost for '%s': $%d", title, c),
				fmt.Sprintf("Verify '%s' pricing or consider alternatives", title),
			)
		}
		if a.Cost() == 0 {
			free++
		}
	}

	if free*100 > len(activities)*freeShareLimitPct {
		issue(
			fmt.Sprintf("Many free activities (%d/%d)", free, len(activities)),
			"Verify that meals and transportation costs are included",
		)
	}

	result.IsValid = len(result.Issues) == 0 && !result.BudgetExceeded
	return result
}

// Sanity statuses.
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// CostSanityReport is the gate written ahead of polishing. A FAIL report must
// stop the itinerary from being polished.
type CostSanityReport struct {
	Status         string   `json:"status"`
	TotalCost      int      `json:"total_cost"`
	BudgetMax      *int     `json:"budget_max"`
	Issues         []string `json:"issues"`
	Suggestions    []string `json:"suggestions"`
	ActionRequired string   `json:"action_required"`
}

// Passed reports whether the gate is open.
func (r CostSanityReport) Passed() bool { return r.Status == StatusPass }

// SanityReport turns a validation result into the gate report.
func SanityReport(v CostValidation) CostSanityReport {
	report := CostSanityReport{
		Status:      StatusPass,
		TotalCost:   v.TotalCalculated,
		BudgetMax:   v.BudgetMax,
		Issues:      append([]string{}, v.Issues...),
		Suggestions: append([]string{}, v.Suggestions...),
	}

	switch {
	case v.IsValid:
		report.ActionRequired = "None - costs are valid"
		return report
	case v.BudgetExceeded && v.BudgetMax != nil:
		report.ActionRequired = fmt.Sprintf("Reduce costs by $%d to meet budget", v.TotalCalculated-*v.BudgetMax)
	case hasPrefix(v.Issues, "Missing cost estimates"):
		report.ActionRequired = "Add missing cost estimates"
	default:
		report.ActionRequired = "Review flagged cost issues"
	}
	report.Status = StatusFail
	return report
}

func hasPrefix(items []string, prefix string) bool {
	for _, s := range items {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func titleOr(title, fallback string) string {
	if strings.TrimSpace(title) == "" {
		return fallback
	}
	return title
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
