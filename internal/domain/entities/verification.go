package entities

// IssueKind names a suspicious pattern found in a successful result.
type IssueKind string

const (
	IssueEmptyResult         IssueKind = "EMPTY_RESULT"
	IssueAllNulls            IssueKind = "ALL_NULLS"
	IssueExtremeValue        IssueKind = "EXTREME_VALUE"
	IssueUnexpectedZeroCount IssueKind = "UNEXPECTED_ZERO_COUNT"
	IssueNegativeCount       IssueKind = "NEGATIVE_COUNT"
	IssueNone                IssueKind = "NONE"
)

const (
	// EscalateConfidence is the verification confidence at which a result is corrected again.
	EscalateConfidence = 0.7
	// WarningConfidence is the lowest confidence surfaced to callers.
	WarningConfidence = 0.5
)

// Severity tells the orchestrator what to do with a verification result.
type Severity string

const (
	SeverityEscalate Severity = "escalate"
	SeverityWarning  Severity = "warning"
	SeverityHidden   Severity = "hidden"
)

// DiagnosticProbe is a read-only query run to confirm a suspicion.
type DiagnosticProbe struct {
	Table    string `json:"table"`
	SQL      string `json:"sql"`
	RowCount *int   `json:"row_count,omitempty"`
	Sample   []Row  `json:"sample,omitempty"`
	Error    string `json:"error,omitempty"`
}

// VerificationResult is the verdict on a successful execution.
type VerificationResult struct {
	IsSuspicious      bool              `json:"is_suspicious"`
	Confidence        float64           `json:"confidence"`
	IssueKind         IssueKind         `json:"issue_kind"`
	Description       string            `json:"description"`
	SuggestedFix      string            `json:"suggested_fix,omitempty"`
	DiagnosticQueries []string          `json:"diagnostic_queries,omitempty"`
	Diagnostics       []DiagnosticProbe `json:"diagnostics,omitempty"`
}

// Severity maps the confidence of a suspicious result onto an action.
func (v VerificationResult) Severity() Severity {
	if !v.IsSuspicious {
		return SeverityHidden
	}
	switch {
	case v.Confidence >= EscalateConfidence:
		return SeverityEscalate
	case v.Confidence >= WarningConfidence:
		return SeverityWarning
	default:
		return SeverityHidden
	}
}

// VerificationWarning is a non-blocking note returned alongside rows.
type VerificationWarning struct {
	IssueKind    IssueKind `json:"issue_kind"`
	Confidence   float64   `json:"confidence"`
	Description  string    `json:"description"`
	SuggestedFix string    `json:"suggested_fix,omitempty"`
}

// AsWarning converts a verification result into a caller-facing warning.
func (v VerificationResult) AsWarning() VerificationWarning {
	return VerificationWarning{
		IssueKind:    v.IssueKind,
		Confidence:   v.Confidence,
		Description:  v.Description,
		SuggestedFix: v.SuggestedFix,
	}
}
