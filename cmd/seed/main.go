// seed inserts a verified test user and a product catalogue into the local dev database.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ErlanBelekov/identity-service/internal/domain"
	"github.com/ErlanBelekov/identity-service/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/identity-service/internal/password"
	"golang.org/x/crypto/bcrypt"
)

const (
	seedEmail    = "seed@test.local"
	seedPassword = "seed-password"
)

type productSpec struct {
	name        string
	description string
	price       float64
}

var products = []productSpec{
	{"Desk Lamp", "Adjustable LED lamp with three colour temperatures", 34.90},
	{"Notebook", "A5 dotted notebook, 160 pages", 12.00},
	{"Mechanical Keyboard", "Tenkeyless, brown switches", 89.00},
	{"USB-C Hub", "7-in-1 with HDMI and card reader", 45.50},
	{"Monitor Stand", "Bamboo riser with storage drawer", 39.99},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set; run: direnv allow")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	hash, err := password.NewHasher(bcrypt.MinCost).Hash(seedPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	// Upsert test user, already verified so it can be used straight away
	var userID string
	err = pool.QueryRow(ctx, `
		INSERT INTO users (full_name, email, password_hash, verified)
		VALUES ('Seed User', $1, $2, TRUE)
		ON CONFLICT (email) DO UPDATE
		SET password_hash = EXCLUDED.password_hash, verified = TRUE, updated_at = NOW()
		RETURNING id`,
		seedEmail, hash,
	).Scan(&userID)
	if err != nil {
		log.Fatalf("upsert user: %v", err)
	}

	repo := postgres.NewProductRepository(pool)
	existing, err := repo.List(ctx)
	if err != nil {
		log.Fatalf("list products: %v", err)
	}

	// Only seed an empty catalogue (idempotent re-runs)
	var inserted int
	if len(existing) == 0 {
		for _, spec := range products {
			_, err := repo.Create(ctx, &domain.Product{
				Name:        spec.name,
				Description: spec.description,
				Price:       spec.price,
			})
			if err != nil {
				log.Fatalf("insert product %s: %v", spec.name, err)
			}
			inserted++
		}
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  User:              %s / %s\n", seedEmail, seedPassword)
	fmt.Printf("  User ID:           %s\n", userID)
	fmt.Printf("  Products created:  %d  (%d already existing)\n", inserted, len(existing))
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1: log in as the seed user:")
	fmt.Println()
	fmt.Printf("    curl -s -X POST http://localhost:8080/api/v1/auth/login \\\n")
	fmt.Printf("      -H 'Content-Type: application/json' \\\n")
	fmt.Printf("      -d '{\"email\":\"%s\",\"password\":\"%s\"}'\n", seedEmail, seedPassword)
	fmt.Println("    # → {\"status\":200,\"success\":true,\"token\":\"eyJ...\",...}")
	fmt.Println()
	fmt.Println("  Step 2: list products with the token:")
	fmt.Println()
	fmt.Println("    export JWT=eyJ...")
	fmt.Println("    curl -s http://localhost:8080/api/v1/product/all -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  Step 3: the same request without the header is refused:")
	fmt.Println()
	fmt.Println("    curl -s http://localhost:8080/api/v1/product/all")
	fmt.Println("    # → 401 {\"message\":\"Authorization token not found\",...}")
}
