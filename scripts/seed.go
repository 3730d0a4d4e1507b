package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/observability"
)

// Seeds the demo "shop" SQLite database the golden cases in config/golden_cases.json run against.
// Point DB_CONNECTIONS at it with shop=sqlite:<path>.
func main() {
	observability.InitLogger("databaseguru-seed", "development", os.Getenv("LOG_LEVEL"))

	path := os.Getenv("SEED_PATH")
	if path == "" {
		path = "shop.db"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to open database")
	}
	defer db.Close()

	ctx := context.Background()

	if os.Getenv("RESET_DB") == "true" {
		log.Info().Msg("RESET_DB=true detected, dropping tables before seeding")
		for _, table := range []string{"order_items", "orders", "customers", "products"} {
			if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				log.Fatal().Err(err).Str("table", table).Msg("Failed to reset table")
			}
		}
	}

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			price REAL NOT NULL
		);
		CREATE TABLE IF NOT EXISTS customers (
			id INTEGER PRIMARY KEY,
			customer_name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			country TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY,
			customer_id INTEGER NOT NULL REFERENCES customers(id),
			status TEXT NOT NULL,
			total REAL NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS order_items (
			order_id INTEGER NOT NULL REFERENCES orders(id),
			product_id INTEGER NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL,
			PRIMARY KEY (order_id, product_id)
		);`)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create tables")
	}

	dialect := goqu.Dialect("sqlite3")
	insert := func(table string, rows []goqu.Record) {
		query, _, err := dialect.Insert(table).Rows(rows).OnConflict(goqu.DoNothing()).ToSQL()
		if err != nil {
			log.Fatal().Err(err).Str("table", table).Msg("Failed to build insert")
		}
		if _, err := db.ExecContext(ctx, query); err != nil {
			log.Error().Err(err).Str("table", table).Msg("Failed to seed table")
			return
		}
		log.Info().Str("table", table).Int("rows", len(rows)).Msg("Seeded table")
	}

	// 1. Products
	insert("products", []goqu.Record{
		{"id": 1, "name": "Electric Kettle", "category": "Kitchen", "price": 34.99},
		{"id": 2, "name": "Toaster", "category": "Kitchen", "price": 24.50},
		{"id": 3, "name": "Desk Lamp", "category": "Office", "price": 18.00},
		{"id": 4, "name": "Standing Desk", "category": "Office", "price": 349.00},
		{"id": 5, "name": "Noise Cancelling Headphones", "category": "Audio", "price": 199.99},
		{"id": 6, "name": "Bluetooth Speaker", "category": "Audio", "price": 59.90},
		{"id": 7, "name": "Coffee Grinder", "category": "Kitchen", "price": 44.00},
		{"id": 8, "name": "Notebook", "category": "Office", "price": 4.25},
	})

	// 2. Customers
	insert("customers", []goqu.Record{
		{"id": 1, "customer_name": "Ada Obi", "email": "ada@example.com", "country": "NG"},
		{"id": 2, "customer_name": "Tunde Bello", "email": "tunde@example.com", "country": "NG"},
		{"id": 3, "customer_name": "Mira Patel", "email": "mira@example.com", "country": "GB"},
		{"id": 4, "customer_name": "Lukas Weber", "email": "lukas@example.com", "country": "DE"},
	})

	// 3. Orders spread over the last year
	statuses := []string{"paid", "paid", "shipped", "refunded"}
	now := time.Now().UTC()
	var orders, items []goqu.Record
	for i := 1; i <= 24; i++ {
		productID := (i % 8) + 1
		quantity := (i % 3) + 1
		orders = append(orders, goqu.Record{
			"id":          i,
			"customer_id": (i % 4) + 1,
			"status":      statuses[i%len(statuses)],
			"total":       float64(quantity) * (10 + float64(productID)*7.5),
			"created_at":  now.AddDate(0, -(i % 12), -i).Format(time.RFC3339),
		})
		items = append(items, goqu.Record{"order_id": i, "product_id": productID, "quantity": quantity})
	}
	insert("orders", orders)
	insert("order_items", items)

	log.Info().Str("path", path).Msg("Seeding completed")
}
