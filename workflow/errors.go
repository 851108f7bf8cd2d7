package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/preference"
)

// ErrRegenerationLimit is returned by callers that refuse to start another
// regeneration. Regenerate itself reports StatusLimitReached instead.
var ErrRegenerationLimit = errors.New("regeneration limit reached")

// ErrNoGenerator is returned when a generation stage runs without a backend.
var ErrNoGenerator = errors.New("no generator configured")

// InputError reports missing or invalid preference or selection data.
type InputError struct {
	Missing []string
	Reason  string
}

func (e *InputError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "missing required inputs: " + strings.Join(e.Missing, ", ")
}

// StageOutputMissingError reports a stage that finished without producing one
// of its declared outputs.
type StageOutputMissingError struct {
	Stage string
	Key   Key
}

func (e *StageOutputMissingError) Error() string {
	return fmt.Sprintf("stage %s produced no %s", e.Stage, e.Key)
}

// StageError wraps a stage failure with the stage name.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// BudgetExceededError blocks polish when the cost gate fails. It carries the
// report so callers can surface its suggestions.
type BudgetExceededError struct {
	Report itinerary.CostSanityReport
}

func (e *BudgetExceededError) Error() string {
	msg := "cost validation failed: " + e.Report.ActionRequired
	if len(e.Report.Issues) > 0 {
		msg += " (" + strings.Join(e.Report.Issues, "; ") + ")"
	}
	return msg
}

// ConflictBlockedError stops generation when the group's conflicts leave no
// feasible trip. It carries the report so callers can show the resolutions.
type ConflictBlockedError struct {
	Report preference.ConflictReport
}

func (e *ConflictBlockedError) Error() string {
	return e.Report.Summary
}

// Resolutions lists the suggested resolutions of the blocking conflicts.
func (e *ConflictBlockedError) Resolutions() []string {
	var out []string
	for _, c := range e.Report.Conflicts {
		if c.Severity == preference.SeverityHigh {
			out = append(out, c.Resolutions...)
		}
	}
	return out
}

// FailedStage returns the name of the stage that produced err, if any.
func FailedStage(err error) string {
	var missing *StageOutputMissingError
	if errors.As(err, &missing) {
		return missing.Stage
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
