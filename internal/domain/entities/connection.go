package entities

// Database kinds understood by the connectors.
const (
	DatabaseKindPostgres = "postgres"
	DatabaseKindMySQL    = "mysql"
	DatabaseKindSQLite   = "sqlite"
)

// ConnectionSpec describes a user database the engine can query.
type ConnectionSpec struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	DSN  string `json:"-"`
	// ReadOnly sessions are refused writes by the database itself.
	ReadOnly bool `json:"read_only"`
}
