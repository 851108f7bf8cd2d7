package workflow

import (
	"fmt"
	"strings"
)

// Action is a routing outcome.
type Action string

const (
	ActionRecommendations Action = "recommendations"
	ActionItinerary       Action = "itinerary"
	ActionRegenerate      Action = "regenerate"
	ActionConflictsOnly   Action = "conflicts_only"
	ActionExplain         Action = "explain"
	ActionError           Action = "error"
)

// String returns the action name.
func (a Action) String() string { return string(a) }

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	switch a {
	case ActionRecommendations, ActionItinerary, ActionRegenerate,
		ActionConflictsOnly, ActionExplain, ActionError:
		return true
	default:
		return false
	}
}

const reasonRegenLimit = "Max regeneration limit reached"

// RouterDecision is the outcome of a routing check.
type RouterDecision struct {
	Action         Action   `json:"action"`
	Reason         string   `json:"reason"`
	MissingInputs  []string `json:"missing_inputs"`
	ReadyToProceed bool     `json:"ready_to_proceed"`
}

// Router picks the next action from the state contents.
type Router interface {
	Decide(s *State, requested Action) RouterDecision
}

// RouterFunc adapts a function to Router.
type RouterFunc func(s *State, requested Action) RouterDecision

// Decide calls f.
func (f RouterFunc) Decide(s *State, requested Action) RouterDecision { return f(s, requested) }

// DefaultRouter checks the required inputs of each action against the state.
// It never fills in missing inputs.
type DefaultRouter struct{}

// Decide implements Router.
func (DefaultRouter) Decide(s *State, requested Action) RouterDecision {
	var missing []string
	switch requested {
	case ActionRecommendations:
		if len(s.RawPreferences()) == 0 {
			missing = append(missing, "preferences")
		}
	case ActionItinerary:
		if !s.Has(KeySelectedDestination) {
			missing = append(missing, "selected_destination")
		}
		if !s.Has(KeyAggregatedGroupProfile) {
			missing = append(missing, "preferences")
		}
	case ActionRegenerate:
		if !s.Has(KeyItineraryFinal) {
			missing = append(missing, "itinerary_final")
		}
		if len(s.FeedbackItems()) == 0 {
			missing = append(missing, "feedback_items")
		}
		if len(missing) == 0 && s.RegenCount() >= s.MaxRegenIterations() {
			return RouterDecision{
				Action:        ActionError,
				Reason:        reasonRegenLimit,
				MissingInputs: []string{},
			}
		}
	case ActionConflictsOnly, ActionExplain:
	default:
		return RouterDecision{
			Action:        ActionError,
			Reason:        fmt.Sprintf("Unknown action %q", requested),
			MissingInputs: []string{},
		}
	}

	if len(missing) > 0 {
		return RouterDecision{
			Action:        ActionError,
			Reason:        fmt.Sprintf("Cannot run %s: missing %s", requested, strings.Join(missing, ", ")),
			MissingInputs: missing,
		}
	}
	return RouterDecision{
		Action:         requested,
		Reason:         fmt.Sprintf("All inputs present for %s", requested),
		MissingInputs:  []string{},
		ReadyToProceed: true,
	}
}

// Route runs the DefaultRouter and records the decision in router_action.
func Route(s *State, requested Action) RouterDecision {
	return RouteWith(DefaultRouter{}, s, requested)
}

// RouteWith runs r and records the decision in router_action.
func RouteWith(r Router, s *State, requested Action) RouterDecision {
	d := r.Decide(s, requested)
	if d.MissingInputs == nil {
		d.MissingInputs = []string{}
	}
	s.Set(KeyRouterAction, d)
	return d
}

// Err converts a not-ready decision into an error for the caller.
func (d RouterDecision) Err() error {
	if d.ReadyToProceed {
		return nil
	}
	if d.Reason == reasonRegenLimit {
		return fmt.Errorf("%s: %w", d.Reason, ErrRegenerationLimit)
	}
	return &InputError{Missing: d.MissingInputs, Reason: d.Reason}
}
