package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zatekoja/databaseguru/backend/internal/bootstrap"
	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/evaluation"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay golden cases and report correction quality",
		Long: `Run every golden case against the configured databases and print a summary.

Cases run one after another, so corrections learned from an early case are
available to later ones. The command fails when a threshold is missed.

Examples:
  evaluate run
  evaluate run --cases my_cases.json --min-pass-rate 0.8
  evaluate run --fresh-memory --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			casesPath, _ := cmd.Flags().GetString("cases")
			freshMemory, _ := cmd.Flags().GetBool("fresh-memory")
			thresholds := evaluation.Thresholds{}
			thresholds.MinPassRate, _ = cmd.Flags().GetFloat64("min-pass-rate")
			thresholds.MinRepairRate, _ = cmd.Flags().GetFloat64("min-repair-rate")
			thresholds.MaxAvgAttempts, _ = cmd.Flags().GetFloat64("max-avg-attempts")

			cases, err := evaluation.LoadGoldenCases(resolveCasesPath(casesPath))
			if err != nil {
				return err
			}
			if err := evaluation.ValidateGoldenCases(cases); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			engine, err := bootstrap.NewEngine(ctx, cfg, bootstrap.Options{ForceMemoryStore: freshMemory})
			if err != nil {
				return fmt.Errorf("failed to build query engine: %w", err)
			}
			defer engine.Close()

			summary, err := evaluation.NewRunner(engine.Service).Run(ctx, cases)
			if err != nil {
				return fmt.Errorf("evaluation failed: %w", err)
			}

			violations := thresholds.Check(summary)
			if jsonOut {
				if err := printJSON(cmd, map[string]any{
					"summary":    summary,
					"results":    summary.Results,
					"violations": violations,
				}); err != nil {
					return err
				}
			} else {
				printSummary(cmd, summary, violations)
			}

			if len(violations) > 0 {
				return fmt.Errorf("%d threshold(s) not met", len(violations))
			}
			return nil
		},
	}

	cmd.Flags().String("cases", defaultCasesPath, "Path to the golden cases file")
	cmd.Flags().Bool("fresh-memory", false, "Start from an empty in-memory corrections store")
	cmd.Flags().Float64("min-pass-rate", 0, "Fail when the pass rate is below this value")
	cmd.Flags().Float64("min-repair-rate", 0, "Fail when the repair rate is below this value")
	cmd.Flags().Float64("max-avg-attempts", 0, "Fail when the average attempt count is above this value")
	return cmd
}

func printSummary(cmd *cobra.Command, s *evaluation.EvalSummary, violations []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cases:          %d\n", s.TotalCases)
	fmt.Fprintf(out, "Passed:         %d (%.1f%%)\n", s.Passed, s.PassRate*100)
	fmt.Fprintf(out, "Succeeded:      %.1f%%\n", s.SuccessRate*100)
	fmt.Fprintf(out, "First try:      %.1f%%\n", s.FirstTryRate*100)
	fmt.Fprintf(out, "Repaired:       %.1f%%\n", s.RepairRate*100)
	fmt.Fprintf(out, "Avg attempts:   %.2f\n", s.AvgAttempts)
	fmt.Fprintf(out, "Avg latency:    %s\n", s.AvgLatency)
	fmt.Fprintf(out, "Flagged:        %d\n", s.FlaggedCount)

	if len(s.ByErrorKind) > 0 {
		fmt.Fprintln(out, "\nBy first error:")
		kinds := make([]entities.ErrorKind, 0, len(s.ByErrorKind))
		for kind := range s.ByErrorKind {
			kinds = append(kinds, kind)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
		for _, kind := range kinds {
			g := s.ByErrorKind[kind]
			fmt.Fprintf(out, "  %-20s %d cases, %d passed, %.2f attempts\n", kind, g.Count, g.Passed, g.AvgAttempts)
		}
	}

	var failed []evaluation.EvalResult
	for _, res := range s.Results {
		if !res.Passed {
			failed = append(failed, res)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintln(out, "\nFailed cases:")
		for _, res := range failed {
			fmt.Fprintf(out, "  %s (%d attempts) %s\n", res.CaseID, res.Attempts, res.Error)
		}
	}

	for _, v := range violations {
		fmt.Fprintf(out, "\nTHRESHOLD: %s", v)
	}
	if len(violations) > 0 {
		fmt.Fprintln(out)
	}
}
