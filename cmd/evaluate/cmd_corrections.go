package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zatekoja/databaseguru/backend/internal/adapters/database"
	"github.com/zatekoja/databaseguru/backend/internal/application/services"
	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
	"github.com/zatekoja/databaseguru/backend/internal/domain/repositories"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/databaseguru/backend/pkg/config"
)

func newCorrectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "corrections",
		Short: "Inspect or clear the learned corrections store",
		Long: `Work with the corrections the engine has learned. Requires CORRECTION_STORE=postgres;
an in-memory store only lives inside a running server.`,
	}
	cmd.AddCommand(
		newCorrectionsListCmd(),
		newCorrectionsStatsCmd(),
		newCorrectionsResetCmd(),
		newCorrectionsDeleteCmd(),
	)
	return cmd
}

// withMemory opens the persistent corrections store for the duration of fn.
func withMemory(fn func(ctx context.Context, memory *services.CorrectionMemory) error) error {
	ctx := context.Background()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Correction.Store != config.StorePostgres {
		return errors.New("corrections are only persisted with CORRECTION_STORE=postgres")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to corrections store: %w", err)
	}
	defer pgClient.Close()

	adapter := database.NewCorrectionAdapter(pgClient)
	if err := adapter.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize corrections schema: %w", err)
	}
	return fn(ctx, services.NewCorrectionMemory(adapter, services.NewErrorClassifier(), true))
}

func newCorrectionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List learned corrections, most confident first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			errorKind, _ := cmd.Flags().GetString("error-kind")
			databaseKind, _ := cmd.Flags().GetString("database-kind")
			minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
			limit, _ := cmd.Flags().GetInt("limit")

			filter := repositories.CorrectionFilter{
				ErrorKind:     entities.ErrorKind(strings.ToUpper(errorKind)),
				DatabaseKind:  strings.ToLower(databaseKind),
				MinConfidence: minConfidence,
				Limit:         limit,
			}
			if filter.ErrorKind != "" && !filter.ErrorKind.IsValid() {
				return fmt.Errorf("unknown error kind %q", errorKind)
			}

			return withMemory(func(ctx context.Context, memory *services.CorrectionMemory) error {
				corrections, err := memory.List(ctx, filter)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(cmd, corrections)
				}
				if len(corrections) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No learned corrections.")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tKIND\tDATABASE\tCONFIDENCE\tAPPLIED\tCORRECTED SQL")
				for _, c := range corrections {
					fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\t%s\n", c.ID, c.ErrorKind, c.DatabaseKind,
						c.Score.Confidence(), c.Score.TimesApplied(), truncate(c.CorrectedSQL, 60))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().String("error-kind", "", "Only corrections for this error kind")
	cmd.Flags().String("database-kind", "", "Only corrections for this database kind")
	cmd.Flags().Float64("min-confidence", 0, "Minimum confidence")
	cmd.Flags().Int("limit", 50, "Maximum number of corrections")
	return cmd
}

func newCorrectionsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the learned corrections store",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			return withMemory(func(ctx context.Context, memory *services.CorrectionMemory) error {
				stats, err := memory.Stats(ctx)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total:              %d\n", stats.Total)
				fmt.Fprintf(out, "Matchable:          %d\n", stats.Matchable)
				fmt.Fprintf(out, "Average confidence: %.2f\n", stats.AverageConfidence)
				for kind, n := range stats.ByErrorKind {
					fmt.Fprintf(out, "  %-20s %d\n", kind, n)
				}
				return nil
			})
		},
	}
}

func newCorrectionsResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every learned correction",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return errors.New("refusing to remove every learned correction without --yes")
			}
			return withMemory(func(ctx context.Context, memory *services.CorrectionMemory) error {
				removed, err := memory.Reset(ctx)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(cmd, map[string]int{"removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d learned corrections.\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm the reset")
	return cmd
}

func newCorrectionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove one learned correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMemory(func(ctx context.Context, memory *services.CorrectionMemory) error {
				if err := memory.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
				return nil
			})
		},
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
