package workflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/preference"
	"github.com/c360studio/tripsync/workflow/validation"
)

// LoopStatus is the state of a regeneration loop.
type LoopStatus string

const (
	LoopIterating     LoopStatus = "iterating"
	LoopPassed        LoopStatus = "passed"
	LoopLimitReached  LoopStatus = "limit_reached"
	LoopUnsatisfiable LoopStatus = "unsatisfiable"
)

// String returns the status name.
func (s LoopStatus) String() string { return string(s) }

// IsValid returns true if s is a known loop status.
func (s LoopStatus) IsValid() bool {
	switch s {
	case LoopIterating, LoopPassed, LoopLimitReached, LoopUnsatisfiable:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once the loop can no longer iterate.
func (s LoopStatus) IsTerminal() bool {
	return s == LoopPassed || s == LoopLimitReached || s == LoopUnsatisfiable
}

// CanTransitionTo returns true if the loop may move from s to target.
// Terminal statuses never transition.
func (s LoopStatus) CanTransitionTo(target LoopStatus) bool {
	if s != LoopIterating {
		return false
	}
	return target.IsValid()
}

// RegenerationResult is the terminal outcome of Regenerate.
type RegenerationResult struct {
	Status             LoopStatus          `json:"status"`
	RegenCount         int                 `json:"regen_count"`
	Itinerary          itinerary.Itinerary `json:"itinerary"`
	UnresolvedFeedback []string            `json:"unresolved_feedback"`
	Suggestions        []string            `json:"suggestions"`
	Validation         *validation.Report  `json:"validation,omitempty"`
}

// FeedbackConflict explains why one feedback item cannot be satisfied.
type FeedbackConflict struct {
	Feedback   string `json:"feedback"`
	Reason     string `json:"reason"`
	Suggestion string `json:"suggestion"`
}

// Regenerate re-runs the itinerary pipeline until validation passes, the
// iteration cap is reached, or the feedback is shown to contradict a hard
// constraint. The last itinerary that passed validation is never discarded;
// if none passes, the itinerary the loop started from is returned.
//
// The returned error is non-nil only when ctx is cancelled.
func Regenerate(ctx context.Context, s *State, p *Pipeline) (RegenerationResult, error) {
	lastValid, _ := s.ItineraryFinal()
	lastValid = lastValid.Clone()
	profile, _ := s.Profile()
	userFeedback := append([]string{}, s.FeedbackItems()...)

	result := RegenerationResult{
		Status:             LoopIterating,
		UnresolvedFeedback: []string{},
		Suggestions:        []string{},
	}
	transition := func(to LoopStatus) {
		if result.Status.CanTransitionTo(to) {
			result.Status = to
		}
	}
	finish := func() (RegenerationResult, error) {
		result.RegenCount = s.RegenCount()
		result.Itinerary = lastValid
		s.Set(KeyItineraryFinal, lastValid)
		return result, nil
	}

	if conflicts := FeedbackConflicts(userFeedback, profile, lastValid); len(conflicts) > 0 {
		transition(LoopUnsatisfiable)
		for _, c := range conflicts {
			result.UnresolvedFeedback = append(result.UnresolvedFeedback, c.Feedback)
			result.Suggestions = append(result.Suggestions, c.Reason+". "+c.Suggestion)
		}
		result.UnresolvedFeedback = lo.Uniq(result.UnresolvedFeedback)
		s.AddProgress("regeneration", "Feedback conflicts with group constraints", map[string]any{"conflicts": len(conflicts)})
		return finish()
	}

	accumulated := userFeedback
	var lastReport *validation.Report
	for s.RegenCount() < s.MaxRegenIterations() {
		s.Set(KeyFeedbackItems, accumulated)
		err := p.Run(ctx, s)
		s.Set(KeyRegenCount, s.RegenCount()+1)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, fmt.Errorf("regeneration cancelled: %w", ctxErr)
			}
			accumulated = lo.Uniq(append(accumulated, failureFeedback(err)...))
			continue
		}

		report, _ := s.Validation()
		lastReport = &report
		if report.Passed() {
			final, _ := s.ItineraryFinal()
			lastValid = final.Clone()
			transition(LoopPassed)
			break
		}
		accumulated = lo.Uniq(append(accumulated, report.Feedback()...))
	}

	if result.Status == LoopPassed {
		result.Validation = lastReport
		s.AddProgress("regeneration", "Regenerated itinerary passed validation", map[string]any{"regen_count": s.RegenCount()})
		return finish()
	}

	transition(LoopLimitReached)
	result.Validation = lastReport
	result.UnresolvedFeedback = accumulated
	if lastReport != nil {
		result.Suggestions = lastReport.Feedback()
	}
	if report, ok := s.CostReport(); ok && !report.Passed() {
		result.Suggestions = lo.Uniq(append(result.Suggestions, report.Suggestions...))
	}
	s.AddProgress("regeneration", "Regeneration limit reached", map[string]any{"regen_count": s.RegenCount()})
	return finish()
}

// failureFeedback turns a failed iteration into feedback for the next one.
func failureFeedback(err error) []string {
	var budget *BudgetExceededError
	if errors.As(err, &budget) {
		return append(append([]string{}, budget.Report.Issues...), budget.Report.Suggestions...)
	}
	return []string{"Previous attempt failed: " + err.Error()}
}

var (
	requestVerbRe = regexp.MustCompile(`(?i)\b(add|include|want|need|plan|book|schedule|more|try|do|go|see|visit|eat|have)\b`)
	removalVerbRe = regexp.MustCompile(`(?i)\b(remove|drop|skip|avoid|no|without|less|fewer|cancel|replace)\b`)
	freeTripRe    = regexp.MustCompile(`(?i)(\bfree\b|\$0\b|\bzero cost\b|\bno cost\b)`)
	wholeTripRe   = regexp.MustCompile(`(?i)\b(entire|whole|all|everything|trip|itinerary)\b`)
	spendDemandRe = regexp.MustCompile(`(?i)\b(?:at least|increase\w*|raise|bump|spend|total of|upgrade\w*)\b[^$\d]{0,30}\$\s?(\d[\d,]*)`)
)

// FeedbackConflicts reports the feedback items that can only be satisfied by
// breaking a hard constraint: adding a hard no, food that breaks a dietary
// restriction, demanding activities for a mobility need, a free trip when the
// itinerary has costs, or a total above the group budget.
func FeedbackConflicts(feedback []string, profile preference.GroupProfile, current itinerary.Itinerary) []FeedbackConflict {
	var out []FeedbackConflict
	budgetCap, hasCap := profile.BudgetCap()
	currentTotal := current.TotalEstimatedCostPerPerson
	if sum := itinerary.ValidateCosts(current, nil).TotalCalculated; sum > currentTotal {
		currentTotal = sum
	}

	for _, item := range feedback {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		requests := requestVerbRe.MatchString(item) && !removalVerbRe.MatchString(item)

		if c, ok := hardNoConflict(item, requests, profile.Constraints.HardNos); ok {
			out = append(out, c)
			continue
		}
		if c, ok := dietaryConflict(item, requests, profile.Constraints.DietaryRestrictions); ok {
			out = append(out, c)
			continue
		}
		if c, ok := mobilityConflict(item, requests, profile.Constraints.AccessibilityNeeds); ok {
			out = append(out, c)
			continue
		}
		if freeTripRe.MatchString(item) && wholeTripRe.MatchString(item) && !removalVerbRe.MatchString(item) && currentTotal > 0 {
			out = append(out, FeedbackConflict{
				Feedback:   item,
				Reason:     fmt.Sprintf("The trip cannot be free: the current plan costs $%d per person", currentTotal),
				Suggestion: "Ask for more free activities instead of a free trip",
			})
			continue
		}
		if hasCap {
			if m := spendDemandRe.FindStringSubmatch(item); m != nil {
				amount, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
				if err == nil && amount > budgetCap {
					out = append(out, FeedbackConflict{
						Feedback:   item,
						Reason:     fmt.Sprintf("Requested total $%d exceeds the group budget maximum of $%d", amount, budgetCap),
						Suggestion: "Ask the group to raise their budgets before regenerating",
					})
				}
			}
		}
	}
	return out
}

func hardNoConflict(item string, requests bool, hardNos []string) (FeedbackConflict, bool) {
	if !requests {
		return FeedbackConflict{}, false
	}
	for _, hn := range lo.Uniq(hardNos) {
		re := validation.HardNoPattern(hn)
		if re == nil || !re.MatchString(item) {
			continue
		}
		return FeedbackConflict{
			Feedback:   item,
			Reason:     fmt.Sprintf("Feedback asks for %s, but a member listed the hard no %q", preference.HardNoSubject(hn), hn),
			Suggestion: "Drop this request or ask that member to remove their hard no",
		}, true
	}
	return FeedbackConflict{}, false
}

func dietaryConflict(item string, requests bool, restrictions []string) (FeedbackConflict, bool) {
	if !requests {
		return FeedbackConflict{}, false
	}
	lower := strings.ToLower(item)
	for _, r := range restrictions {
		for _, term := range validation.DietaryTerms(r) {
			if !regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `s?\b`).MatchString(lower) {
				continue
			}
			return FeedbackConflict{
				Feedback:   item,
				Reason:     fmt.Sprintf("Feedback asks for %s, which conflicts with the %s restriction", term, r),
				Suggestion: fmt.Sprintf("Ask for a venue that also serves %s options", r),
			}, true
		}
	}
	return FeedbackConflict{}, false
}

func mobilityConflict(item string, requests bool, needs []string) (FeedbackConflict, bool) {
	if !requests {
		return FeedbackConflict{}, false
	}
	activity := validation.DemandingActivity(item)
	if activity == "" {
		return FeedbackConflict{}, false
	}
	for _, need := range needs {
		if validation.IsMobilityNeed(need) {
			return FeedbackConflict{
				Feedback:   item,
				Reason:     fmt.Sprintf("Feedback asks for %s, which conflicts with the %s need", strings.ToLower(activity), need),
				Suggestion: "Ask for an accessible alternative such as a guided drive or boat tour",
			}, true
		}
	}
	return FeedbackConflict{}, false
}
