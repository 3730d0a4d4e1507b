package connectors

import (
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPostgresAccessMode(t *testing.T) {
	cfg, err := pgxpool.ParseConfig("postgres://reader@localhost:5432/sales")
	require.NoError(t, err)

	applyPostgresAccessMode(cfg, false)
	assert.NotContains(t, cfg.ConnConfig.RuntimeParams, "default_transaction_read_only")

	applyPostgresAccessMode(cfg, true)
	assert.Equal(t, "on", cfg.ConnConfig.RuntimeParams["default_transaction_read_only"])
}

func TestApplyMySQLAccessMode(t *testing.T) {
	cfg, err := mysql.ParseDSN("reader:pw@tcp(db:3306)/crm")
	require.NoError(t, err)

	applyMySQLAccessMode(cfg, false)
	assert.NotContains(t, cfg.Params, "transaction_read_only")

	applyMySQLAccessMode(cfg, true)
	assert.Equal(t, "1", cfg.Params["transaction_read_only"])
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "shop.db", sqliteDSN("shop.db", false))
	assert.Equal(t, "shop.db?_pragma=query_only(1)", sqliteDSN("shop.db", true))
	assert.Equal(t, "file:shop.db?mode=ro&_pragma=query_only(1)", sqliteDSN("file:shop.db?mode=ro", true))
}
