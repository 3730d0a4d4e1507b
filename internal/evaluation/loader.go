package evaluation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadGoldenCases reads and parses a golden case set from a JSON file.
func LoadGoldenCases(path string) ([]GoldenCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read golden cases file: %w", err)
	}

	var cases []GoldenCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse golden cases: %w", err)
	}

	return cases, nil
}

// ValidateGoldenCases checks that all golden cases have required fields and valid values.
func ValidateGoldenCases(cases []GoldenCase) error {
	seen := make(map[string]struct{}, len(cases))

	for i, c := range cases {
		if c.ID == "" {
			return fmt.Errorf("case at index %d: missing id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("case at index %d: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = struct{}{}

		if c.ConnectionID == "" {
			return fmt.Errorf("case %q: missing connection_id", c.ID)
		}
		if strings.TrimSpace(c.Question) == "" && strings.TrimSpace(c.SQL) == "" {
			return fmt.Errorf("case %q: needs a question or sql", c.ID)
		}
		if c.MaxAttempts < 0 {
			return fmt.Errorf("case %q: max_attempts must not be negative", c.ID)
		}
		if !c.Difficulty.IsValid() {
			return fmt.Errorf("case %q: invalid difficulty %q (must be easy/medium/hard)", c.ID, c.Difficulty)
		}
	}

	return nil
}
