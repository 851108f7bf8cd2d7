package preference

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Severity ranks how badly a conflict blocks planning.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	}
	return 0
}

// ConflictType names the dimension a conflict is about.
type ConflictType string

const (
	ConflictDate          ConflictType = "date"
	ConflictBudget        ConflictType = "budget"
	ConflictVibe          ConflictType = "vibe"
	ConflictConstraint    ConflictType = "constraint"
	ConflictParticipation ConflictType = "participation"
)

// Conflict is one detected disagreement with suggested ways forward.
type Conflict struct {
	Type            ConflictType `json:"type"`
	Severity        Severity     `json:"severity"`
	Description     string       `json:"description"`
	AffectedMembers []string     `json:"affected_members"`
	Resolutions     []string     `json:"resolutions"`
}

// ConflictReport summarizes every conflict in a group profile.
type ConflictReport struct {
	HasConflicts    bool       `json:"has_conflicts"`
	Conflicts       []Conflict `json:"conflicts"`
	OverallSeverity Severity   `json:"overall_severity"`
	CanProceed      bool       `json:"can_proceed"`
	Summary         string     `json:"summary"`
}

// Thresholds used by DetectConflicts.
const (
	shortOverlapDays    = 2
	closeWindowDays     = 7
	narrowBudgetSpread  = 200.0
	heavyNeedsThreshold = 3
)

// DetectConflicts inspects a group profile, plus the records it was built
// from for member attribution, and reports conflicts by severity. Only a high
// severity date or budget conflict stops the group from proceeding.
func DetectConflicts(profile GroupProfile, recs []Record) ConflictReport {
	if profile.MemberCount == 0 {
		return finishReport([]Conflict{{
			Type:        ConflictParticipation,
			Severity:    SeverityHigh,
			Description: "No members have submitted preferences.",
			Resolutions: []string{"Ask members to submit their preferences"},
		}}, false)
	}

	var conflicts []Conflict

	allFlexible := profile.DateOverlap.MembersWithDates == 0 &&
		profile.BudgetRange.MembersWithBudgets == 0 &&
		profile.Vibes.MembersWithVibes == 0

	if profile.MemberCount == 1 {
		conflicts = append(conflicts, Conflict{
			Type:            ConflictParticipation,
			Severity:        SeverityMedium,
			Description:     "Only 1 member has submitted preferences. Need more input for group planning.",
			AffectedMembers: memberIDs(recs, func(Record) bool { return true }),
			Resolutions:     []string{"Nudge other members", "Proceed with single member's preferences"},
		})
	}

	if allFlexible {
		conflicts = append(conflicts, Conflict{
			Type:            ConflictVibe,
			Severity:        SeverityLow,
			Description:     "All members are flexible. AI will choose based on popular destinations.",
			AffectedMembers: []string{},
			Resolutions:     []string{"Proceed with AI recommendations", "Organizer can set rough direction"},
		})
	} else {
		conflicts = append(conflicts, dateConflicts(profile, recs)...)
		conflicts = append(conflicts, budgetConflicts(profile, recs)...)
		conflicts = append(conflicts, vibeConflicts(profile, recs)...)
	}
	conflicts = append(conflicts, constraintConflicts(profile, recs)...)

	blocked := lo.ContainsBy(conflicts, func(c Conflict) bool {
		return c.Severity == SeverityHigh && (c.Type == ConflictDate || c.Type == ConflictBudget)
	})
	return finishReport(conflicts, !blocked)
}

func finishReport(conflicts []Conflict, canProceed bool) ConflictReport {
	if conflicts == nil {
		conflicts = []Conflict{}
	}
	overall := SeverityNone
	for _, c := range conflicts {
		if c.Severity.rank() > overall.rank() {
			overall = c.Severity
		}
	}

	var summary string
	switch {
	case len(conflicts) == 0:
		summary = "No conflicts detected. The group is ready for recommendations."
	case !canProceed:
		summary = fmt.Sprintf("%d conflict(s) detected with %s overall severity. Members must adjust dates or budgets before recommendations can be generated.", len(conflicts), overall)
	default:
		summary = fmt.Sprintf("%d conflict(s) detected with %s overall severity. Planning can proceed; review the suggested resolutions.", len(conflicts), overall)
	}

	return ConflictReport{
		HasConflicts:    len(conflicts) > 0,
		Conflicts:       conflicts,
		OverallSeverity: overall,
		CanProceed:      canProceed,
		Summary:         summary,
	}
}

func dateConflicts(profile GroupProfile, recs []Record) []Conflict {
	var out []Conflict
	dated := func(r Record) bool { _, _, ok := parseWindow(r.Dates); return ok }
	do := profile.DateOverlap

	switch {
	case do.MembersWithDates > 1 && !do.HasOverlap:
		if gap, ok := windowGapDays(recs); ok && gap <= closeWindowDays {
			out = append(out, Conflict{
				Type:            ConflictDate,
				Severity:        SeverityMedium,
				Description:     fmt.Sprintf("No exact overlap, but date ranges are close (%d day gap). Slight adjustment could work.", gap),
				AffectedMembers: memberIDs(recs, dated),
				Resolutions:     []string{"Ask members to shift dates by a few days", "Choose most flexible member to adjust"},
			})
		} else {
			out = append(out, Conflict{
				Type:            ConflictDate,
				Severity:        SeverityHigh,
				Description:     "No date overlap between members. Group cannot travel together with current date ranges.",
				AffectedMembers: memberIDs(recs, dated),
				Resolutions: []string{
					"Ask all members to expand their available date ranges",
					"Choose the most popular date window and ask others to adjust",
					"Consider splitting into two separate trips",
				},
			})
		}
	case do.HasOverlap && do.OverlapDays < shortOverlapDays:
		out = append(out, Conflict{
			Type:            ConflictDate,
			Severity:        SeverityMedium,
			Description:     fmt.Sprintf("Overlap window is only %d day(s), from %s to %s.", do.OverlapDays, do.OverlapStart, do.OverlapEnd),
			AffectedMembers: memberIDs(recs, dated),
			Resolutions:     []string{"Choose a weekend trip", "Ask for more flexibility"},
		})
	}

	if missing := memberIDs(recs, func(r Record) bool { return !dated(r) }); len(missing) > 0 {
		out = append(out, Conflict{
			Type:            ConflictDate,
			Severity:        SeverityLow,
			Description:     fmt.Sprintf("%d member(s) did not provide usable dates.", len(missing)),
			AffectedMembers: missing,
			Resolutions:     []string{"Remind members to submit dates", "Proceed with available data"},
		})
	}
	return out
}

// windowGapDays is the distance between the latest start and the earliest
// end when the windows do not overlap.
func windowGapDays(recs []Record) (int, bool) {
	var latestStart, earliestEnd time.Time
	found := false
	for _, r := range recs {
		start, end, ok := parseWindow(r.Dates)
		if !ok {
			continue
		}
		if !found || start.After(latestStart) {
			latestStart = start
		}
		if !found || end.Before(earliestEnd) {
			earliestEnd = end
		}
		found = true
	}
	if !found || !latestStart.After(earliestEnd) {
		return 0, false
	}
	return wholeDays(latestStart.Sub(earliestEnd)), true
}

func budgetConflicts(profile GroupProfile, recs []Record) []Conflict {
	var out []Conflict
	budgeted := func(r Record) bool { return r.Budget != nil && r.Budget.MaxBudget != nil }
	br := profile.BudgetRange

	if br.MembersWithBudgets > 0 {
		switch {
		case !br.HasFeasibleRange:
			out = append(out, Conflict{
				Type:     ConflictBudget,
				Severity: SeverityHigh,
				Description: fmt.Sprintf("Budget ranges don't overlap. Minimum affordable budget ($%.0f) exceeds maximum budget ($%.0f).",
					br.MinBudget, br.MaxBudget),
				AffectedMembers: memberIDs(recs, budgeted),
				Resolutions: []string{
					"Ask higher-budget members to lower expectations or contribute more",
					fmt.Sprintf("Find a lower-cost destination under $%.0f", br.MaxBudget),
					"Split group by budget tier",
				},
			})
		case br.MaxBudget-br.MinBudget < narrowBudgetSpread:
			out = append(out, Conflict{
				Type:            ConflictBudget,
				Severity:        SeverityMedium,
				Description:     fmt.Sprintf("Very narrow budget range: $%.0f to $%.0f per person.", br.MinBudget, br.MaxBudget),
				AffectedMembers: memberIDs(recs, budgeted),
				Resolutions:     []string{"Find destinations in exact price range", "Ask for budget flexibility"},
			})
		}
	}

	if missing := memberIDs(recs, func(r Record) bool { return !budgeted(r) }); len(missing) > 0 {
		out = append(out, Conflict{
			Type:            ConflictBudget,
			Severity:        SeverityLow,
			Description:     fmt.Sprintf("%d member(s) did not provide a budget.", len(missing)),
			AffectedMembers: missing,
			Resolutions:     []string{"Remind members to submit budgets", "Use average budget"},
		})
	}
	return out
}

func vibeConflicts(profile GroupProfile, recs []Record) []Conflict {
	var out []Conflict
	hasVibes := func(r Record) bool { return r.DestinationPrefs != nil && len(r.DestinationPrefs.Vibes) > 0 }
	v := profile.Vibes

	switch {
	case v.MembersWithVibes > 1 && !v.HasCommonVibes:
		out = append(out, Conflict{
			Type:            ConflictVibe,
			Severity:        SeverityHigh,
			Description:     fmt.Sprintf("No vibe is shared by every member. Requested vibes: %s.", strings.Join(v.AllVibes, ", ")),
			AffectedMembers: memberIDs(recs, hasVibes),
			Resolutions: []string{
				"Find destination with diverse activities",
				"Prioritize most popular vibes",
				"Compromise on 2-3 vibes",
			},
		})
	case v.MembersWithVibes > 1 && len(v.CommonVibes) == 1 && len(v.AllVibes) > 1:
		out = append(out, Conflict{
			Type:            ConflictVibe,
			Severity:        SeverityMedium,
			Description:     fmt.Sprintf("Only one common vibe (%s) across %d requested vibes.", v.CommonVibes[0], len(v.AllVibes)),
			AffectedMembers: memberIDs(recs, hasVibes),
			Resolutions:     []string{"Focus on common vibe", "Plan activities for different interests"},
		})
	}

	if missing := memberIDs(recs, func(r Record) bool { return !hasVibes(r) }); len(missing) > 0 {
		out = append(out, Conflict{
			Type:            ConflictVibe,
			Severity:        SeverityLow,
			Description:     fmt.Sprintf("%d member(s) did not share destination vibes.", len(missing)),
			AffectedMembers: missing,
			Resolutions:     []string{"Remind members to share preferences"},
		})
	}
	return out
}

var noPrefixRe = regexp.MustCompile(`(?i)^(?:no|never|not|avoid)\s+`)

func constraintConflicts(profile GroupProfile, recs []Record) []Conflict {
	var out []Conflict
	c := profile.Constraints

	for _, rec := range recs {
		if rec.Constraints == nil {
			continue
		}
		for _, hn := range rec.Constraints.HardNos {
			subject := HardNoSubject(hn)
			if subject == "" {
				continue
			}
			mustRe := regexp.MustCompile(`(?i)\bmust\s+(?:do\s+|have\s+|go\s+|include\s+)?` + regexp.QuoteMeta(subjectStem(subject)))
			for _, other := range recs {
				if other.UserID == rec.UserID {
					continue
				}
				text := other.Notes
				if other.DestinationPrefs != nil {
					text += " " + other.DestinationPrefs.SpecificPlaces
				}
				if mustRe.MatchString(text) {
					out = append(out, Conflict{
						Type:            ConflictConstraint,
						Severity:        SeverityHigh,
						Description:     fmt.Sprintf("Conflicting hard constraints: %q versus a member who requires %s.", hn, subject),
						AffectedMembers: []string{rec.UserID, other.UserID},
						Resolutions:     []string{"Find alternative that satisfies both", "One member adjusts constraint"},
					})
				}
			}
		}
	}

	needs := len(c.DietaryRestrictions) + len(c.AccessibilityNeeds)
	constrained := func(r Record) bool {
		return r.Constraints != nil && (len(r.Constraints.DietaryRestrictions) > 0 || len(r.Constraints.AccessibilityNeeds) > 0)
	}
	switch {
	case needs >= heavyNeedsThreshold:
		out = append(out, Conflict{
			Type:            ConflictConstraint,
			Severity:        SeverityMedium,
			Description:     fmt.Sprintf("%d dietary/accessibility needs may limit destination options.", needs),
			AffectedMembers: memberIDs(recs, constrained),
			Resolutions:     []string{"Choose accessible destinations with diverse food options", "Plan ahead for special needs"},
		})
	case needs > 0:
		out = append(out, Conflict{
			Type:            ConflictConstraint,
			Severity:        SeverityLow,
			Description:     "Members have dietary or accessibility needs that are easy to accommodate.",
			AffectedMembers: memberIDs(recs, constrained),
			Resolutions:     []string{"Note constraints in itinerary planning"},
		})
	}
	return out
}

// HardNoSubject strips the negation from a hard no, so "No camping" yields
// "camping". Entries without a negation are returned lower-cased as is.
func HardNoSubject(hardNo string) string {
	s := strings.ToLower(strings.TrimSpace(hardNo))
	s = noPrefixRe.ReplaceAllString(s, "")
	return strings.Trim(s, " .!,;")
}

// subjectStem drops a trailing "ing" so "camping" also matches "must camp".
func subjectStem(subject string) string {
	if strings.HasSuffix(subject, "ing") && len(subject) > 5 {
		return strings.TrimSuffix(subject, "ing")
	}
	return subject
}

func memberIDs(recs []Record, keep func(Record) bool) []string {
	ids := []string{}
	for _, r := range recs {
		if keep(r) && r.UserID != "" {
			ids = append(ids, r.UserID)
		}
	}
	return ids
}
