package entities

// Row is one result row keyed by column name.
type Row map[string]any

// ExecResult is what a connection returns for a successful statement.
type ExecResult struct {
	Columns   []string `json:"columns"`
	Rows      []Row    `json:"rows"`
	RowCount  int      `json:"row_count"`
	ElapsedMs float64  `json:"elapsed_ms"`
	Truncated bool     `json:"truncated"`
}

// DatabaseQueryResult is the final outcome of one connection in a fan-out.
type DatabaseQueryResult struct {
	ConnectionID       string                `json:"connection_id"`
	DatabaseKind       string                `json:"database_kind"`
	SQL                string                `json:"sql"`
	Succeeded          bool                  `json:"succeeded"`
	Columns            []string              `json:"columns,omitempty"`
	Rows               []Row                 `json:"rows,omitempty"`
	RowCount           *int                  `json:"row_count,omitempty"`
	Truncated          bool                  `json:"truncated,omitempty"`
	ElapsedMs          float64               `json:"elapsed_ms"`
	Error              string                `json:"error,omitempty"`
	CorrectionAttempts int                   `json:"correction_attempts"`
	AttemptHistory     []CorrectionAttempt   `json:"attempt_history"`
	Warnings           []VerificationWarning `json:"warnings,omitempty"`
}

// TimeoutError is the error text reported for a connection that ran out of time.
const TimeoutError = "timeout"
