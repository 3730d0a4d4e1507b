package entities

// QuickFix is the outcome of a schema-based correction attempt. It is never persisted.
type QuickFix struct {
	Succeeded   bool    `json:"succeeded"`
	FixedSQL    string  `json:"fixed_sql,omitempty"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
	Original    string  `json:"original,omitempty"`
	Replacement string  `json:"replacement,omitempty"`
	Kind        string  `json:"kind,omitempty"`
}
