package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zatekoja/databaseguru/backend/internal/application/services"
)

func TestReplaceIdentifier(t *testing.T) {
	t.Run("does not touch longer identifiers", func(t *testing.T) {
		got, n := services.ReplaceIdentifier("SELECT * FROM order_items o JOIN order x ON o.order_id = x.id", "order", "orders")
		assert.Equal(t, 1, n)
		assert.Equal(t, "SELECT * FROM order_items o JOIN orders x ON o.order_id = x.id", got)
	})

	t.Run("skips ORDER BY keyword", func(t *testing.T) {
		got, n := services.ReplaceIdentifier("SELECT id FROM order ORDER BY id", "order", "orders")
		assert.Equal(t, 1, n)
		assert.Equal(t, "SELECT id FROM orders ORDER BY id", got)
	})

	t.Run("skips string literals", func(t *testing.T) {
		got, n := services.ReplaceIdentifier("SELECT * FROM prodcuts WHERE note = 'prodcuts are ''great'''", "prodcuts", "products")
		assert.Equal(t, 1, n)
		assert.Equal(t, "SELECT * FROM products WHERE note = 'prodcuts are ''great'''", got)
	})

	t.Run("case insensitive", func(t *testing.T) {
		got, n := services.ReplaceIdentifier("select * from Prodcuts", "prodcuts", "products")
		assert.Equal(t, 1, n)
		assert.Equal(t, "select * from products", got)
	})

	t.Run("no occurrence", func(t *testing.T) {
		got, n := services.ReplaceIdentifier("SELECT 1", "prodcuts", "products")
		assert.Zero(t, n)
		assert.Equal(t, "SELECT 1", got)
	})
}

func TestReplaceQualifiedIdentifier(t *testing.T) {
	got, n := services.ReplaceQualifiedIdentifier("SELECT p.pric, o.pric FROM products p JOIN offers o ON o.pid = p.id", "p", "pric", "price")
	assert.Equal(t, 1, n)
	assert.Equal(t, "SELECT p.price, o.pric FROM products p JOIN offers o ON o.pid = p.id", got)
}

func TestReferencedTables(t *testing.T) {
	refs := services.ReferencedTables(`SELECT * FROM public.orders o JOIN customers AS c ON c.id = o.customer_id LEFT JOIN items WHERE x = 'from nowhere'`)
	assert.Equal(t, []services.TableReference{
		{Name: "orders", Alias: "o"},
		{Name: "customers", Alias: "c"},
		{Name: "items"},
	}, refs)
}
