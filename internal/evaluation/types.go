package evaluation

import (
	"time"

	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
)

// Difficulty is the labelled hardness of a golden case.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"   // runs first time
	DifficultyMedium Difficulty = "medium" // one deterministic repair
	DifficultyHard   Difficulty = "hard"   // needs the model or a learned correction
)

// IsValid checks if the difficulty value is one of the defined constants.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// GoldenCase is a labelled question or statement with its expected outcome.
type GoldenCase struct {
	ID           string `json:"id"`
	ConnectionID string `json:"connection_id"`
	Question     string `json:"question,omitempty"`
	SQL          string `json:"sql,omitempty"`
	// ExpectFailure marks cases that must end unsuccessful, such as guarded writes.
	ExpectFailure bool `json:"expect_failure,omitempty"`
	// MaxAttempts fails the case when more attempts were needed. Zero disables the check.
	MaxAttempts int        `json:"max_attempts,omitempty"`
	Difficulty  Difficulty `json:"difficulty"`
}

// EvalResult holds the evaluation outcome for a single case.
type EvalResult struct {
	CaseID         string
	Difficulty     Difficulty
	Passed         bool
	Succeeded      bool
	Attempts       int
	FirstTry       bool
	FirstErrorKind entities.ErrorKind
	FinalStrategy  entities.CorrectionStrategy
	Flagged        bool
	Error          string
	Latency        time.Duration
}

// EvalSummary holds aggregate metrics across all golden cases.
type EvalSummary struct {
	TotalCases   int
	Passed       int
	PassRate     float64
	SuccessRate  float64
	FirstTryRate float64
	// RepairRate is the share of runs whose first attempt failed that still succeeded.
	RepairRate   float64
	AvgAttempts  float64
	AvgLatency   time.Duration
	FlaggedCount int
	ByDifficulty map[Difficulty]*GroupSummary
	ByErrorKind  map[entities.ErrorKind]*GroupSummary
	Results      []EvalResult `json:"-"`
}

// GroupSummary holds metrics grouped by difficulty or first error kind.
type GroupSummary struct {
	Count       int
	Passed      int
	AvgAttempts float64
}
