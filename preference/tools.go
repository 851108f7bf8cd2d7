package preference

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/samber/lo"
)

// DateOverlap is the window every dated member can travel in.
type DateOverlap struct {
	OverlapStart     string `json:"overlap_start,omitempty"`
	OverlapEnd       string `json:"overlap_end,omitempty"`
	HasOverlap       bool   `json:"has_overlap"`
	OverlapDays      int    `json:"overlap_days"`
	MembersWithDates int    `json:"members_with_dates"`
}

// BudgetRange is the per-person spend every budgeted member can afford.
// MinBudget and MaxBudget are the feasible intersection, not the extremes.
type BudgetRange struct {
	MinBudget          float64 `json:"min_budget"`
	MaxBudget          float64 `json:"max_budget"`
	HasFeasibleRange   bool    `json:"has_feasible_range"`
	AverageBudget      float64 `json:"average_budget"`
	MembersWithBudgets int     `json:"members_with_budgets"`
}

// VibeSummary is the intersection and union of requested vibes.
type VibeSummary struct {
	CommonVibes      []string       `json:"common_vibes"`
	AllVibes         []string       `json:"all_vibes"`
	HasCommonVibes   bool           `json:"has_common_vibes"`
	VibeCounts       map[string]int `json:"vibe_counts"`
	MembersWithVibes int            `json:"members_with_vibes"`
}

// HardConstraints merges every member's constraints.
type HardConstraints struct {
	DietaryRestrictions    []string `json:"dietary_restrictions"`
	AccessibilityNeeds     []string `json:"accessibility_needs"`
	HardNos                []string `json:"hard_nos"`
	MembersWithConstraints int      `json:"members_with_constraints"`
}

// dateLayout is used for day-granular window bounds.
const dateLayout = "2006-01-02"

// ComputeDateOverlap intersects the date windows of all members whose
// earliest start and latest end both parse. Members with missing or
// unparseable dates are ignored and not counted.
func ComputeDateOverlap(recs []Record) DateOverlap {
	var (
		starts []time.Time
		ends   []time.Time
	)
	for _, rec := range recs {
		start, end, ok := parseWindow(rec.Dates)
		if !ok {
			continue
		}
		starts = append(starts, start)
		ends = append(ends, end)
	}

	result := DateOverlap{MembersWithDates: len(starts)}
	if len(starts) == 0 {
		return result
	}

	overlapStart := lo.MaxBy(starts, func(a, b time.Time) bool { return a.After(b) })
	overlapEnd := lo.MinBy(ends, func(a, b time.Time) bool { return a.Before(b) })

	if overlapStart.After(overlapEnd) {
		return result
	}

	result.HasOverlap = true
	result.OverlapStart = formatDate(overlapStart)
	result.OverlapEnd = formatDate(overlapEnd)
	result.OverlapDays = wholeDays(overlapEnd.Sub(overlapStart)) + 1
	return result
}

// ParseDate parses a member-supplied date. Ambiguous day/month orderings are
// rejected rather than guessed.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseStrict(s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func parseWindow(d *Dates) (time.Time, time.Time, bool) {
	if d == nil {
		return time.Time{}, time.Time{}, false
	}
	start, ok := ParseDate(d.EarliestStart)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	end, ok := ParseDate(d.LatestEnd)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func formatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339)
}

// wholeDays floors a non-negative duration to whole days.
func wholeDays(d time.Duration) int {
	return int(d / (24 * time.Hour))
}

// ComputeBudgetRange intersects member budgets. Only members with a numeric
// max budget take part; a missing min counts as zero.
func ComputeBudgetRange(recs []Record) BudgetRange {
	var (
		mins []float64
		maxs []float64
	)
	for _, rec := range recs {
		if rec.Budget == nil || rec.Budget.MaxBudget == nil {
			continue
		}
		minBudget := 0.0
		if rec.Budget.MinBudget != nil {
			minBudget = *rec.Budget.MinBudget
		}
		mins = append(mins, minBudget)
		maxs = append(maxs, *rec.Budget.MaxBudget)
	}

	if len(maxs) == 0 {
		return BudgetRange{}
	}

	aggMin := lo.Max(mins)
	aggMax := lo.Min(maxs)

	var midpoints float64
	for i := range mins {
		midpoints += (mins[i] + maxs[i]) / 2
	}

	return BudgetRange{
		MinBudget:          aggMin,
		MaxBudget:          aggMax,
		HasFeasibleRange:   aggMin <= aggMax,
		AverageBudget:      roundCents(midpoints / float64(len(maxs))),
		MembersWithBudgets: len(maxs),
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// IntersectVibes finds the vibes every member shares and every vibe anyone
// asked for. A member who repeats a vibe is counted once for it.
func IntersectVibes(recs []Record) VibeSummary {
	result := VibeSummary{
		CommonVibes: []string{},
		AllVibes:    []string{},
		VibeCounts:  map[string]int{},
	}

	var sets [][]string
	for _, rec := range recs {
		if rec.DestinationPrefs == nil || len(rec.DestinationPrefs.Vibes) == 0 {
			continue
		}
		set := lo.Uniq(rec.DestinationPrefs.Vibes)
		sets = append(sets, set)
		for _, v := range set {
			result.VibeCounts[v]++
		}
	}

	result.MembersWithVibes = len(sets)
	if len(sets) == 0 {
		return result
	}

	common := lo.Filter(lo.Keys(result.VibeCounts), func(v string, _ int) bool {
		return result.VibeCounts[v] == len(sets)
	})
	all := lo.Keys(result.VibeCounts)
	sort.Strings(common)
	sort.Strings(all)

	result.CommonVibes = common
	result.AllVibes = all
	result.HasCommonVibes = len(common) > 0
	return result
}

// ExtractHardConstraints unions dietary and accessibility needs and collects
// every hard no. Hard nos keep submission order, duplicates included.
// A member counts once they submitted a constraints object, even when every
// entry in it is blank.
func ExtractHardConstraints(recs []Record) HardConstraints {
	dietary := map[string]struct{}{}
	access := map[string]struct{}{}
	hardNos := []string{}
	members := 0

	for _, rec := range recs {
		c := rec.Constraints
		if c == nil {
			continue
		}
		members++
		for _, d := range c.DietaryRestrictions {
			if strings.TrimSpace(d) == "" {
				continue
			}
			dietary[d] = struct{}{}
		}
		for _, a := range c.AccessibilityNeeds {
			if strings.TrimSpace(a) == "" {
				continue
			}
			access[a] = struct{}{}
		}
		for _, h := range c.HardNos {
			if h = strings.TrimSpace(h); h != "" {
				hardNos = append(hardNos, h)
			}
		}
	}

	dietaryList := lo.Keys(dietary)
	accessList := lo.Keys(access)
	sort.Strings(dietaryList)
	sort.Strings(accessList)

	return HardConstraints{
		DietaryRestrictions:    dietaryList,
		AccessibilityNeeds:     accessList,
		HardNos:                hardNos,
		MembersWithConstraints: members,
	}
}
