package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/databaseguru/backend/internal/application/services"
	"github.com/zatekoja/databaseguru/backend/internal/domain/entities"
)

func TestResultVerifier_Checks(t *testing.T) {
	verifier := services.NewResultVerifier(services.VerifierConfig{})

	tests := []struct {
		name       string
		sql        string
		result     *entities.ExecResult
		issue      entities.IssueKind
		confidence float64
		suspicious bool
	}{
		{
			name:       "empty result",
			sql:        "SELECT * FROM products WHERE price > 1000",
			result:     rows(),
			issue:      entities.IssueEmptyResult,
			confidence: 0.7,
			suspicious: true,
		},
		{
			name:       "all nulls",
			sql:        "SELECT p.nam FROM products p",
			result:     rows(entities.Row{"nam": nil}, entities.Row{"nam": nil}),
			issue:      entities.IssueAllNulls,
			confidence: 0.8,
			suspicious: true,
		},
		{
			name:       "extreme value",
			sql:        "SELECT SUM(total) AS revenue FROM orders JOIN order_items ON true",
			result:     rows(entities.Row{"revenue": 4.2e12}),
			issue:      entities.IssueExtremeValue,
			confidence: 0.6,
			suspicious: true,
		},
		{
			name:       "extreme numeric string",
			sql:        "SELECT SUM(total) AS revenue FROM orders",
			result:     rows(entities.Row{"revenue": "-12345678901.50"}),
			issue:      entities.IssueExtremeValue,
			confidence: 0.6,
			suspicious: true,
		},
		{
			name:       "zero count",
			sql:        "SELECT COUNT(*) FROM customers",
			result:     rows(entities.Row{"count": int64(0)}),
			issue:      entities.IssueUnexpectedZeroCount,
			confidence: 0.5,
			suspicious: true,
		},
		{
			name:       "negative count",
			sql:        "SELECT COUNT(*) - 2 AS count FROM customers",
			result:     rows(entities.Row{"count": int64(-1)}),
			issue:      entities.IssueNegativeCount,
			confidence: 1.0,
			suspicious: true,
		},
		{
			name:       "negative count as json number",
			sql:        "SELECT COUNT(id) AS n FROM customers",
			result:     rows(entities.Row{"n": json.Number("-1")}),
			issue:      entities.IssueNegativeCount,
			confidence: 1.0,
			suspicious: true,
		},
		{
			name:       "negative non-count is fine",
			sql:        "SELECT id, total FROM orders",
			result:     rows(entities.Row{"id": 1, "total": -25.0}),
			issue:      entities.IssueNone,
			suspicious: false,
		},
		{
			name:   "plain rows",
			sql:    "SELECT name, price FROM products",
			result: rows(entities.Row{"name": "Widget", "price": 9.99}),
			issue:  entities.IssueNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := verifier.Verify(context.Background(), "question", tt.sql, tt.result, shopSchema(), "postgres", nil)
			assert.Equal(t, tt.suspicious, got.IsSuspicious)
			assert.Equal(t, tt.issue, got.IssueKind)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
		})
	}
}

func TestResultVerifier_NegativeCountNeverMissed(t *testing.T) {
	verifier := services.NewResultVerifier(services.VerifierConfig{EnableDiagnostics: true})
	conn := newMockConnection("shop", "postgres")

	for _, v := range []any{-1, int32(-1), int64(-1), -1.0, "-1", []byte("-1")} {
		got := verifier.Verify(context.Background(), "how many customers", "SELECT COUNT(*) FROM customers",
			rows(entities.Row{"count": v}), shopSchema(), "postgres", conn)
		assert.Equal(t, entities.IssueNegativeCount, got.IssueKind)
		assert.Equal(t, 1.0, got.Confidence)
		assert.Equal(t, entities.SeverityEscalate, got.Severity())
	}
	conn.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestResultVerifier_ZeroCountOnPopulatedTableEscalates(t *testing.T) {
	verifier := services.NewResultVerifier(services.VerifierConfig{EnableDiagnostics: true})
	conn := newMockConnection("shop", "postgres")

	conn.On("Execute", mock.Anything, "SELECT COUNT(*) AS count FROM customers", 1).
		Return(rows(entities.Row{"count": int64(150)}), nil)
	conn.On("Execute", mock.Anything, "SELECT * FROM customers LIMIT 5", 5).
		Return(rows(entities.Row{"id": 1, "email": "Ada@example.com"}), nil)

	got := verifier.Verify(context.Background(), "how many customers signed up", "SELECT COUNT(*) FROM customers WHERE email = 'ada@example.com'",
		rows(entities.Row{"count": int64(0)}), shopSchema(), "postgres", conn)

	assert.Equal(t, entities.IssueUnexpectedZeroCount, got.IssueKind)
	assert.Equal(t, 0.75, got.Confidence)
	assert.Equal(t, entities.SeverityEscalate, got.Severity())
	assert.Equal(t, []string{"SELECT COUNT(*) AS count FROM customers", "SELECT * FROM customers LIMIT 5"}, got.DiagnosticQueries)
	require.Len(t, got.Diagnostics, 2)
	require.NotNil(t, got.Diagnostics[0].RowCount)
	assert.Equal(t, 150, *got.Diagnostics[0].RowCount)
	assert.Contains(t, got.Description, "customers has 150 rows")

	hints := verifier.ImprovementHints(got)
	assert.Contains(t, hints, "Table customers has 150 rows")
	assert.Contains(t, hints, "Sample rows from customers")
	conn.AssertExpectations(t)
}

func TestResultVerifier_EmptyTableLowersConfidence(t *testing.T) {
	verifier := services.NewResultVerifier(services.VerifierConfig{EnableDiagnostics: true})
	conn := newMockConnection("shop", "postgres")

	conn.On("Execute", mock.Anything, "SELECT COUNT(*) AS count FROM orders", 1).
		Return(rows(entities.Row{"count": int64(0)}), nil)
	conn.On("Execute", mock.Anything, "SELECT * FROM orders LIMIT 5", 5).
		Return(rows(), nil)

	got := verifier.Verify(context.Background(), "list orders", "SELECT * FROM orders", rows(), shopSchema(), "postgres", conn)

	assert.Equal(t, entities.IssueEmptyResult, got.IssueKind)
	assert.Equal(t, 0.3, got.Confidence)
	assert.Equal(t, entities.SeverityHidden, got.Severity())
}

func TestResultVerifier_ProbeFailureKeepsVerdict(t *testing.T) {
	verifier := services.NewResultVerifier(services.VerifierConfig{EnableDiagnostics: true})
	conn := newMockConnection("shop", "postgres")

	conn.On("Execute", mock.Anything, "SELECT COUNT(*) AS count FROM orders", 1).
		Return(nil, errors.New("permission denied for table orders"))

	got := verifier.Verify(context.Background(), "list orders", "SELECT * FROM orders", rows(), shopSchema(), "postgres", conn)

	assert.Equal(t, 0.7, got.Confidence)
	require.Len(t, got.Diagnostics, 1)
	assert.NotEmpty(t, got.Diagnostics[0].Error)
}

func TestResultVerifier_DiagnosticsDisabled(t *testing.T) {
	verifier := services.NewResultVerifier(services.VerifierConfig{EnableDiagnostics: false})
	conn := newMockConnection("shop", "postgres")

	got := verifier.Verify(context.Background(), "list orders", "SELECT * FROM orders", rows(), shopSchema(), "postgres", conn)

	assert.Equal(t, entities.IssueEmptyResult, got.IssueKind)
	assert.Empty(t, got.Diagnostics)
	conn.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything, mock.Anything)
}

func TestResultVerifier_CustomThreshold(t *testing.T) {
	verifier := services.NewResultVerifier(services.VerifierConfig{ExtremeValueThreshold: 100})

	got := verifier.Verify(context.Background(), "q", "SELECT price FROM products", rows(entities.Row{"price": 250}), shopSchema(), "postgres", nil)

	assert.Equal(t, entities.IssueExtremeValue, got.IssueKind)
	assert.Equal(t, entities.SeverityWarning, got.Severity())
}

func TestResultVerifier_TextColumnsAreNotNumbers(t *testing.T) {
	verifier := services.NewResultVerifier(services.VerifierConfig{})
	schema := &entities.Schema{Tables: []entities.TableSchema{{
		Name: "customers",
		Columns: []entities.ColumnSchema{
			{Name: "id", Type: "integer"},
			{Name: "phone", Type: "character varying(20)"},
		},
	}}}

	t.Run("declared textual", func(t *testing.T) {
		got := verifier.Verify(context.Background(), "q", "SELECT id, phone FROM customers",
			rows(entities.Row{"id": 1, "phone": "15551234567"}, entities.Row{"id": 2, "phone": "447700900123"}),
			schema, "postgres", nil)

		assert.False(t, got.IsSuspicious)
		assert.Equal(t, entities.IssueNone, got.IssueKind)
	})

	t.Run("mixed strings without a schema", func(t *testing.T) {
		got := verifier.Verify(context.Background(), "q", "SELECT phone FROM contacts",
			rows(entities.Row{"phone": "15551234567"}, entities.Row{"phone": "+44 7700 900123"}),
			nil, "sqlite", nil)

		assert.False(t, got.IsSuspicious)
	})

	t.Run("numeric text aggregate still checked", func(t *testing.T) {
		got := verifier.Verify(context.Background(), "q", "SELECT SUM(total) AS revenue FROM customers",
			rows(entities.Row{"revenue": "98765432101.25"}),
			schema, "mysql", nil)

		assert.Equal(t, entities.IssueExtremeValue, got.IssueKind)
	})
}
