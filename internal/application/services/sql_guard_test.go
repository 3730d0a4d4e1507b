package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zatekoja/databaseguru/backend/internal/application/services"
	apperrors "github.com/zatekoja/databaseguru/backend/pkg/errors"
)

func TestSQLGuard_Check(t *testing.T) {
	guard := services.NewSQLGuard()

	tests := []struct {
		name       string
		sql        string
		allowWrite bool
		wantErr    string
	}{
		{name: "select", sql: "SELECT * FROM products"},
		{name: "cte", sql: "WITH t AS (SELECT 1) SELECT * FROM t;"},
		{name: "keyword inside literal", sql: "SELECT * FROM logs WHERE message = 'delete; drop table x'"},
		{name: "keyword inside identifier", sql: "SELECT updated_at, created_by FROM orders"},
		{name: "replace function", sql: "SELECT REPLACE(name, 'a', 'b') FROM products"},
		{name: "comment is ignored", sql: "SELECT 1 -- then delete everything"},
		{name: "empty", sql: "   ", wantErr: "empty"},
		{name: "update", sql: "UPDATE products SET price = 0", wantErr: "write operation not allowed: UPDATE"},
		{name: "insert", sql: "INSERT INTO products (name) VALUES ('x')", wantErr: "write operation not allowed: INSERT"},
		{name: "replace into", sql: "REPLACE INTO products VALUES (1)", wantErr: "write operation not allowed"},
		{name: "update allowed", sql: "UPDATE products SET price = 0", allowWrite: true},
		{name: "drop always blocked", sql: "DROP TABLE products", allowWrite: true, wantErr: "dangerous operation not allowed: DROP"},
		{name: "truncate always blocked", sql: "TRUNCATE products", allowWrite: true, wantErr: "TRUNCATE"},
		{name: "alter table always blocked", sql: "ALTER  TABLE products ADD COLUMN x int", allowWrite: true, wantErr: "ALTER TABLE"},
		{name: "create table always blocked", sql: "CREATE TABLE x (id int)", allowWrite: true, wantErr: "CREATE TABLE"},
		{name: "create index allowed with writes", sql: "CREATE INDEX idx ON products (name)", allowWrite: true},
		{name: "multiple statements", sql: "SELECT 1; SELECT 2", wantErr: "multiple SQL statements"},
		{name: "not a read", sql: "CALL refresh_stats()", wantErr: "only read-only statements"},
		{name: "select into creates a table", sql: "SELECT * INTO stolen FROM users", wantErr: "write operation not allowed: SELECT INTO"},
		{name: "select into outfile", sql: "SELECT email FROM users INTO OUTFILE '/tmp/u.csv'", wantErr: "SELECT INTO"},
		{name: "into inside literal", sql: "SELECT * FROM notes WHERE body = 'log into the portal'"},
		{name: "pragma read", sql: "PRAGMA user_version"},
		{name: "pragma table info", sql: "PRAGMA table_info('products')"},
		{name: "pragma schema qualified read", sql: "PRAGMA main.index_list(products)"},
		{name: "pragma assignment", sql: "PRAGMA user_version = 7", wantErr: "write operation not allowed: PRAGMA"},
		{name: "pragma call form write", sql: "PRAGMA journal_mode(delete)", wantErr: "write operation not allowed"},
		{name: "pragma function setter", sql: "PRAGMA foreign_keys(0)", wantErr: "PRAGMA assignment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.Check(tt.sql, tt.allowWrite)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
		})
	}
}
