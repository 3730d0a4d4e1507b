package connectors_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/databaseguru/backend/internal/adapters/connectors"
)

func setupMySQL(t *testing.T) (*connectors.MySQLConnection, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return connectors.NewMySQLConnectionFromDB("warehouse", db), mock
}

func TestMySQLConnection_Execute(t *testing.T) {
	conn, mock := setupMySQL(t)
	mock.ExpectQuery("SELECT name, total FROM orders").
		WillReturnRows(sqlmock.NewRows([]string{"name", "total"}).
			AddRow([]byte("Ada"), []byte("12.50")).
			AddRow([]byte("Grace"), nil))

	res, err := conn.Execute(context.Background(), "SELECT name, total FROM orders", 10)

	require.NoError(t, err)
	assert.Equal(t, "warehouse", conn.ID())
	assert.Equal(t, "mysql", conn.Kind())
	assert.Equal(t, []string{"name", "total"}, res.Columns)
	assert.Equal(t, 2, res.RowCount)
	assert.False(t, res.Truncated)
	assert.Equal(t, "Ada", res.Rows[0]["name"])
	assert.Equal(t, "12.50", res.Rows[0]["total"])
	assert.Nil(t, res.Rows[1]["total"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLConnection_ExecuteTruncates(t *testing.T) {
	conn, mock := setupMySQL(t)
	rows := sqlmock.NewRows([]string{"id"})
	for i := 1; i <= 5; i++ {
		rows.AddRow(int64(i))
	}
	mock.ExpectQuery("SELECT id FROM orders").WillReturnRows(rows)

	res, err := conn.Execute(context.Background(), "SELECT id FROM orders", 3)

	require.NoError(t, err)
	assert.Equal(t, 3, res.RowCount)
	assert.True(t, res.Truncated)
	assert.Equal(t, int64(3), res.Rows[2]["id"])
}

func TestMySQLConnection_ExecuteReturnsDriverError(t *testing.T) {
	conn, mock := setupMySQL(t)
	driverErr := errors.New("Error 1146 (42S02): Table 'shop.prodcuts' doesn't exist")
	mock.ExpectQuery("SELECT * FROM prodcuts").WillReturnError(driverErr)

	_, err := conn.Execute(context.Background(), "SELECT * FROM prodcuts", 10)

	require.Error(t, err)
	assert.Equal(t, driverErr.Error(), err.Error())
}
