package bootstrap_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/zatekoja/databaseguru/backend/internal/application/services"
	"github.com/zatekoja/databaseguru/backend/internal/bootstrap"
	"github.com/zatekoja/databaseguru/backend/pkg/config"
)

func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE products (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
		INSERT INTO products (name) VALUES ('kettle'), ('toaster');`)
	require.NoError(t, err)
	return path
}

func testConfig(dsn string) *config.Config {
	return &config.Config{
		Correction: config.CorrectionConfig{
			MaxRetries:     1,
			QueryTimeout:   5 * time.Second,
			MaxRows:        100,
			SyncWorkers:    2,
			Store:          config.StorePostgres,
			CandidateLimit: 5,
		},
		Connections: []config.ConnectionConfig{{ID: "shop", Kind: "sqlite", DSN: dsn}},
	}
}

func TestNewEngine_RunsSuppliedSQL(t *testing.T) {
	ctx := context.Background()
	engine, err := bootstrap.NewEngine(ctx, testConfig(seedSQLite(t)), bootstrap.Options{ForceMemoryStore: true})
	require.NoError(t, err)
	defer engine.Close()

	assert.Nil(t, engine.Store)
	assert.Nil(t, engine.Cache)
	assert.Equal(t, []string{"shop"}, engine.Registry.IDs())

	results, err := engine.Service.Run(ctx, services.RunInput{
		SQL: map[string]string{"shop": "SELECT COUNT(*) AS n FROM products"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Succeeded, results[0].Error)
	require.Len(t, results[0].Rows, 1)
	assert.EqualValues(t, 2, results[0].Rows[0]["n"])
}

func TestNewEngine_QuestionWithoutModel(t *testing.T) {
	ctx := context.Background()
	engine, err := bootstrap.NewEngine(ctx, testConfig(seedSQLite(t)), bootstrap.Options{ForceMemoryStore: true})
	require.NoError(t, err)
	defer engine.Close()

	results, err := engine.Service.Run(ctx, services.RunInput{Question: "how many products", ConnectionIDs: []string{"shop"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Succeeded)
	assert.Equal(t, "no question or SQL to execute", results[0].Error)
}

func TestNewEngine_UnsupportedKind(t *testing.T) {
	cfg := testConfig("")
	cfg.Connections = []config.ConnectionConfig{{ID: "warehouse", Kind: "oracle", DSN: "x"}}

	_, err := bootstrap.NewEngine(context.Background(), cfg, bootstrap.Options{ForceMemoryStore: true})
	assert.Error(t, err)
}

func TestEngine_CloseIsIdempotent(t *testing.T) {
	engine, err := bootstrap.NewEngine(context.Background(), testConfig(seedSQLite(t)), bootstrap.Options{ForceMemoryStore: true})
	require.NoError(t, err)

	assert.NoError(t, engine.Close())
	assert.NoError(t, engine.Close())
}
