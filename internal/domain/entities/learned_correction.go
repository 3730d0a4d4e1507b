package entities

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

const (
	// InitialConfidence is assigned to a freshly learned correction.
	InitialConfidence = 0.7
	// MinMatchConfidence is the floor below which a correction is never offered.
	MinMatchConfidence = 0.5

	confidenceSuccessDelta = 0.05
	confidenceFailureDelta = 0.10
)

// CorrectionScore tracks how well a learned correction performs on reuse.
// It only changes through ApplySuccess and ApplyFailure.
type CorrectionScore struct {
	timesApplied int
	timesFailed  int
	successRate  float64
	confidence   float64
}

// NewCorrectionScore returns the score of a correction learned for the first time.
func NewCorrectionScore() CorrectionScore {
	return CorrectionScore{
		timesApplied: 1,
		successRate:  1.0,
		confidence:   InitialConfidence,
	}
}

// RestoreCorrectionScore rebuilds a score loaded from storage. Out-of-range values are clamped.
func RestoreCorrectionScore(timesApplied, timesFailed int, successRate, confidence float64) CorrectionScore {
	if timesApplied < 0 {
		timesApplied = 0
	}
	if timesFailed < 0 {
		timesFailed = 0
	}
	return CorrectionScore{
		timesApplied: timesApplied,
		timesFailed:  timesFailed,
		successRate:  clampUnit(successRate),
		confidence:   clampUnit(confidence),
	}
}

// ApplySuccess records a successful reuse.
func (s CorrectionScore) ApplySuccess() CorrectionScore {
	s.successRate = s.foldOutcome(1.0)
	s.timesApplied++
	s.confidence = clampUnit(s.confidence + confidenceSuccessDelta)
	return s
}

// ApplyFailure records a reuse that did not fix the query.
func (s CorrectionScore) ApplyFailure() CorrectionScore {
	s.successRate = s.foldOutcome(0.0)
	s.timesFailed++
	s.confidence = clampUnit(s.confidence - confidenceFailureDelta)
	return s
}

func (s CorrectionScore) foldOutcome(outcome float64) float64 {
	samples := float64(s.timesApplied + s.timesFailed)
	return clampUnit((s.successRate*samples + outcome) / (samples + 1))
}

func (s CorrectionScore) TimesApplied() int    { return s.timesApplied }
func (s CorrectionScore) TimesFailed() int     { return s.timesFailed }
func (s CorrectionScore) SuccessRate() float64 { return s.successRate }
func (s CorrectionScore) Confidence() float64  { return s.confidence }

// IsMatchable reports whether the score is high enough to offer the correction.
func (s CorrectionScore) IsMatchable() bool {
	return s.confidence >= MinMatchConfidence
}

type correctionScoreJSON struct {
	TimesApplied int     `json:"times_applied"`
	TimesFailed  int     `json:"times_failed"`
	SuccessRate  float64 `json:"success_rate"`
	Confidence   float64 `json:"confidence"`
}

func (s CorrectionScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(correctionScoreJSON{
		TimesApplied: s.timesApplied,
		TimesFailed:  s.timesFailed,
		SuccessRate:  roundScore(s.successRate),
		Confidence:   roundScore(s.confidence),
	})
}

func (s *CorrectionScore) UnmarshalJSON(data []byte) error {
	var raw correctionScoreJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = RestoreCorrectionScore(raw.TimesApplied, raw.TimesFailed, raw.SuccessRate, raw.Confidence)
	return nil
}

// LearnedCorrection is a reusable mapping from an error pattern to a fix.
type LearnedCorrection struct {
	ID            string          `json:"id" db:"id"`
	ErrorKind     ErrorKind       `json:"error_kind" db:"error_kind"`
	ErrorPattern  string          `json:"error_pattern" db:"error_pattern"`
	DatabaseKind  string          `json:"database_kind" db:"database_kind"`
	OriginalSQL   string          `json:"original_sql" db:"original_sql"`
	OriginalError string          `json:"original_error" db:"original_error"`
	CorrectedSQL  string          `json:"corrected_sql" db:"corrected_sql"`
	Description   string          `json:"description,omitempty" db:"description"`
	TablePattern  string          `json:"table_pattern,omitempty" db:"table_pattern"`
	ColumnPattern string          `json:"column_pattern,omitempty" db:"column_pattern"`
	Score         CorrectionScore `json:"score"`
	LearnedAt     time.Time       `json:"learned_at" db:"learned_at"`
	LastAppliedAt *time.Time      `json:"last_applied_at,omitempty" db:"last_applied_at"`
}

// MergeKey identifies corrections that must be merged rather than duplicated.
func (c *LearnedCorrection) MergeKey() string {
	parts := []string{string(c.ErrorKind), c.DatabaseKind, c.TablePattern, c.ColumnPattern}
	if c.TablePattern == "" && c.ColumnPattern == "" {
		parts = append(parts, c.ErrorPattern)
	}
	return strings.Join(parts, "|")
}

// CorrectionStats summarises the learned corrections store.
type CorrectionStats struct {
	Total             int                 `json:"total"`
	ByErrorKind       map[ErrorKind]int   `json:"by_error_kind"`
	AverageConfidence float64             `json:"average_confidence"`
	Matchable         int                 `json:"matchable"`
	MostApplied       []LearnedCorrection `json:"most_applied"`
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func roundScore(v float64) float64 {
	return math.Round(v*10000) / 10000
}
