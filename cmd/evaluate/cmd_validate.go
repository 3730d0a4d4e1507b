package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zatekoja/databaseguru/backend/internal/evaluation"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a golden cases file without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			casesPath, _ := cmd.Flags().GetString("cases")

			path := resolveCasesPath(casesPath)
			cases, err := evaluation.LoadGoldenCases(path)
			if err != nil {
				return err
			}
			if err := evaluation.ValidateGoldenCases(cases); err != nil {
				return err
			}

			byDifficulty := make(map[evaluation.Difficulty]int)
			for _, gc := range cases {
				byDifficulty[gc.Difficulty]++
			}
			if jsonOut {
				return printJSON(cmd, map[string]any{
					"path":          path,
					"cases":         len(cases),
					"by_difficulty": byDifficulty,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d cases (easy %d, medium %d, hard %d)\n", path, len(cases),
				byDifficulty[evaluation.DifficultyEasy], byDifficulty[evaluation.DifficultyMedium], byDifficulty[evaluation.DifficultyHard])
			return nil
		},
	}
	cmd.Flags().String("cases", defaultCasesPath, "Path to the golden cases file")
	return cmd
}
