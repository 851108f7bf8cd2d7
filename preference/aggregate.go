package preference

import "math"

// GroupProfile is the deterministic merge of all members' preferences. It is
// recomputed on every call and never mutated in place.
type GroupProfile struct {
	DateOverlap DateOverlap     `json:"date_overlap"`
	BudgetRange BudgetRange     `json:"budget_range"`
	Vibes       VibeSummary     `json:"vibes"`
	Constraints HardConstraints `json:"constraints"`
	MemberCount int             `json:"member_count"`
}

// Aggregate composes the four computation tools. The result does not depend
// on the order of recs.
func Aggregate(recs []Record) GroupProfile {
	return GroupProfile{
		DateOverlap: ComputeDateOverlap(recs),
		BudgetRange: ComputeBudgetRange(recs),
		Vibes:       IntersectVibes(recs),
		Constraints: ExtractHardConstraints(recs),
		MemberCount: len(recs),
	}
}

// BudgetCap returns the group's feasible per-person ceiling in whole dollars,
// rounded down so a fractional ceiling is never exceeded.
func (p GroupProfile) BudgetCap() (int, bool) {
	br := p.BudgetRange
	if br.MembersWithBudgets == 0 || !br.HasFeasibleRange || br.MaxBudget <= 0 {
		return 0, false
	}
	return int(math.Floor(br.MaxBudget)), true
}

// HasHardConstraints reports whether any member supplied a constraint or a
// feasible budget ceiling.
func (p GroupProfile) HasHardConstraints() bool {
	c := p.Constraints
	if len(c.DietaryRestrictions) > 0 || len(c.AccessibilityNeeds) > 0 || len(c.HardNos) > 0 {
		return true
	}
	_, ok := p.BudgetCap()
	return ok
}
