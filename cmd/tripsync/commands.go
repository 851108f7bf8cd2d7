package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/c360studio/tripsync/itinerary"
	"github.com/c360studio/tripsync/preference"
)

// exitError carries a process exit code without an error message.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func exitCode(err error) (int, bool) {
	var e exitError
	if errors.As(err, &e) {
		return e.code, true
	}
	return 0, false
}

// AggregateOutput is printed by the aggregate command.
type AggregateOutput struct {
	GroupProfile preference.GroupProfile   `json:"group_profile"`
	Conflicts    preference.ConflictReport `json:"conflicts"`
}

func aggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate <prefs.json>",
		Short: "Print the group profile and conflicts for a preferences file",
		Long: `Reads a JSON array of member preference records ("-" reads stdin),
normalizes them, and prints the aggregated group profile with its conflict
report.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var recs []preference.Record
			if err := json.Unmarshal(data, &recs); err != nil {
				return fmt.Errorf("parse preferences: %w", err)
			}

			recs = preference.Normalize(recs)
			profile := preference.Aggregate(recs)
			return writeJSON(cmd.OutOrStdout(), AggregateOutput{
				GroupProfile: profile,
				Conflicts:    preference.DetectConflicts(profile, recs),
			})
		},
	}
}

// CostOutput is printed by the validate-costs command.
type CostOutput struct {
	Validation itinerary.CostValidation   `json:"validation"`
	Report     itinerary.CostSanityReport `json:"report"`
}

func validateCostsCmd() *cobra.Command {
	var budget int

	cmd := &cobra.Command{
		Use:   "validate-costs <itinerary.json>",
		Short: "Check an itinerary's costs against an optional budget",
		Long: `Reads an itinerary ("-" reads stdin), prints the cost validation and the
sanity report, and exits with status 1 when the report is FAIL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			var it itinerary.Itinerary
			if err := json.Unmarshal(data, &it); err != nil {
				return fmt.Errorf("parse itinerary: %w", err)
			}

			var budgetMax *int
			if cmd.Flags().Changed("budget") {
				budgetMax = &budget
			}
			validation := itinerary.ValidateCosts(it, budgetMax)
			report := itinerary.SanityReport(validation)
			if err := writeJSON(cmd.OutOrStdout(), CostOutput{Validation: validation, Report: report}); err != nil {
				return err
			}
			if !report.Passed() {
				return exitError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&budget, "budget", 0, "Per-person budget ceiling in USD")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
