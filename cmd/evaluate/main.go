package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/observability"
	"github.com/zatekoja/databaseguru/backend/pkg/config"
	"github.com/zatekoja/databaseguru/backend/pkg/secrets"
)

const defaultCasesPath = "config/golden_cases.json"

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Benchmark and maintain the query correction engine",
		Long: `evaluate replays golden cases through the correction engine and reports
how often queries succeed, how often failing queries get repaired and how
many attempts that takes.

Databases, the corrections store and the model are configured through the
same environment variables as the API server.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			observability.InitConsoleLogger(cmd.ErrOrStderr(), "databaseguru-evaluate", level)
		},
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newCorrectionsCmd(),
	)
	return rootCmd
}

// resolveCasesPath finds the default cases file from the repository root or the backend directory.
func resolveCasesPath(path string) string {
	if path != defaultCasesPath {
		return path
	}
	if _, err := os.Stat(path); err != nil {
		if _, err := os.Stat("backend/" + path); err == nil {
			return "backend/" + path
		}
	}
	return path
}

// loadConfig exports Vault secrets, when enabled, and reads the environment.
func loadConfig(ctx context.Context) (*config.Config, error) {
	if _, err := secrets.ApplyVaultSecrets(ctx, secrets.LoadVaultConfigFromEnv()); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
