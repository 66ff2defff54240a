package main

import (
	"context"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	branchID := seedBranch(ctx, pool)
	log.Printf("Using Branch ID: %s", branchID)

	seedProducts(ctx, pool, branchID)

	log.Println("Seeding completed successfully!")
}

func seedBranch(ctx context.Context, pool *pgxpool.Pool) string {
	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO branches (code, name) VALUES ('PUSAT', 'Toko Pusat')
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id;
	`).Scan(&id)
	if err != nil {
		log.Fatalf("Failed to create default branch: %v", err)
	}
	return id
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, branchID string) {
	products := []struct {
		Code          string
		Name          string
		ConsumerPrice int64
		CounterPrice  int64
		Stock         int32
	}{
		{"BRS-5KG", "Beras Premium 5kg", 78000, 74000, 120},
		{"MYK-2L", "Minyak Goreng 2L", 38000, 35500, 200},
		{"GUL-1KG", "Gula Pasir 1kg", 16500, 15000, 300},
		{"TPG-1KG", "Tepung Terigu 1kg", 13000, 11800, 250},
		{"KPI-200G", "Kopi Bubuk 200g", 24500, 22000, 150},
		{"TEH-50S", "Teh Celup 50 sachet", 12500, 11000, 180},
		{"SBN-BAR", "Sabun Mandi Batang", 4500, 3900, 400},
		{"SHP-170", "Shampoo 170ml", 21500, 19500, 90},
		{"MIE-DUS", "Mie Instan 1 Dus", 112000, 104000, 60},
		{"AQG-19L", "Air Galon 19L", 21000, 18000, 75},
	}

	log.Println("Seeding Products...")
	for _, p := range products {
		var id string
		err := pool.QueryRow(ctx, `
			INSERT INTO products (code, name, consumer_price, counter_price)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (code) DO UPDATE SET
				name = EXCLUDED.name,
				consumer_price = EXCLUDED.consumer_price,
				counter_price = EXCLUDED.counter_price
			RETURNING id;
		`, p.Code, p.Name, p.ConsumerPrice, p.CounterPrice).Scan(&id)
		if err != nil {
			log.Fatalf("Failed to seed product %s: %v", p.Code, err)
		}

		_, err = pool.Exec(ctx, `
			INSERT INTO branch_stocks (product_id, branch_id, qty)
			VALUES ($1, $2, $3)
			ON CONFLICT (product_id, branch_id) DO UPDATE SET qty = EXCLUDED.qty;
		`, id, branchID, p.Stock)
		if err != nil {
			log.Fatalf("Failed to seed stock for %s: %v", p.Code, err)
		}
	}
	log.Printf("Seeded %d products", len(products))
}
