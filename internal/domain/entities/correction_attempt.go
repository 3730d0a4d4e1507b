package entities

// CorrectionStrategy names the step that produced the SQL of an attempt.
type CorrectionStrategy string

const (
	StrategyGenerated    CorrectionStrategy = "generated"
	StrategySupplied     CorrectionStrategy = "supplied"
	StrategyQuickFix     CorrectionStrategy = "quick_fix"
	StrategyLearned      CorrectionStrategy = "learned"
	StrategyModel        CorrectionStrategy = "model"
	StrategyVerification CorrectionStrategy = "verification"
)

// CorrectionAttempt is one execution try within a single orchestrator run.
type CorrectionAttempt struct {
	AttemptNumber int                `json:"attempt_number"`
	SQL           string             `json:"sql"`
	Error         string             `json:"error,omitempty"`
	ErrorKind     ErrorKind          `json:"error_kind,omitempty"`
	Succeeded     bool               `json:"succeeded"`
	ElapsedMs     float64            `json:"elapsed_ms"`
	RowCount      *int               `json:"row_count,omitempty"`
	Strategy      CorrectionStrategy `json:"strategy"`
}
