// Command seeder loads a small demo catalog so the API can be exercised
// without a vendor CSV. Safe to re-run; rows are upserted by style number.
package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
)

type style struct {
	StyleNo       string
	Title         string
	IsCap         bool
	Colors        []string
	Sizes         []string
	BasePrices    string
	CapPrices     sql.NullString
	SizeUpcharges string
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedCatalog(db)

	log.Println("Seeding completed successfully!")
}

func seedCatalog(db *sql.DB) {
	garmentTiers := `[{"minQty":2,"unit":3400},{"minQty":6,"unit":3000},{"minQty":12,"unit":2600},{"minQty":24,"unit":2200},{"minQty":48,"unit":2000},{"minQty":72,"unit":1800}]`
	premiumTiers := `[{"minQty":2,"unit":4200},{"minQty":6,"unit":3800},{"minQty":12,"unit":3300},{"minQty":24,"unit":2900},{"minQty":48,"unit":2600},{"minQty":72,"unit":2400}]`
	hoodieTiers := `[{"minQty":2,"unit":5600},{"minQty":6,"unit":5100},{"minQty":12,"unit":4600},{"minQty":24,"unit":4100},{"minQty":48,"unit":3800},{"minQty":72,"unit":3500}]`
	capTiers := `[{"minQty":2,"unit":1200},{"minQty":24,"unit":1000},{"minQty":144,"unit":850}]`

	styles := []style{
		{
			StyleNo:       "PC61",
			Title:         "Essential Tee",
			Colors:        []string{"Black", "Navy", "White", "Athletic Heather"},
			Sizes:         []string{"S", "M", "L", "XL", "2XL", "3XL"},
			BasePrices:    garmentTiers,
			SizeUpcharges: `{"2XL":150,"3XL":300}`,
		},
		{
			StyleNo:       "PC61LS",
			Title:         "Essential Long Sleeve Tee",
			Colors:        []string{"Black", "Navy", "White"},
			Sizes:         []string{"S", "M", "L", "XL", "2XL"},
			BasePrices:    premiumTiers,
			SizeUpcharges: `{"2XL":200}`,
		},
		{
			StyleNo:       "PC90H",
			Title:         "Pullover Hooded Sweatshirt",
			Colors:        []string{"Black", "Dark Green", "Red"},
			Sizes:         []string{"S", "M", "L", "XL", "2XL", "3XL", "4XL"},
			BasePrices:    hoodieTiers,
			SizeUpcharges: `{"2XL":250,"3XL":400,"4XL":500}`,
		},
		{
			StyleNo:       "CP80",
			Title:         "Six-Panel Twill Cap",
			IsCap:         true,
			Colors:        []string{"Black", "Navy", "Khaki"},
			Sizes:         []string{"OSFA"},
			BasePrices:    garmentTiers,
			CapPrices:     sql.NullString{String: capTiers, Valid: true},
			SizeUpcharges: `{}`,
		},
		{
			StyleNo:       "C112",
			Title:         "Trucker Snapback Cap",
			IsCap:         true,
			Colors:        []string{"Black/White", "Navy/White"},
			Sizes:         []string{"OSFA"},
			BasePrices:    garmentTiers,
			CapPrices:     sql.NullString{String: capTiers, Valid: true},
			SizeUpcharges: `{}`,
		},
	}

	log.Println("Seeding catalog styles...")
	for _, s := range styles {
		_, err := db.Exec(`
			INSERT INTO products (style_no, title, is_cap, colors, sizes, base_prices, cap_prices, size_upcharges, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (style_no) DO UPDATE SET
				title = EXCLUDED.title,
				is_cap = EXCLUDED.is_cap,
				colors = EXCLUDED.colors,
				sizes = EXCLUDED.sizes,
				base_prices = EXCLUDED.base_prices,
				cap_prices = EXCLUDED.cap_prices,
				size_upcharges = EXCLUDED.size_upcharges,
				updated_at = now();
		`, s.StyleNo, s.Title, s.IsCap, pq.Array(s.Colors), pq.Array(s.Sizes), s.BasePrices, s.CapPrices, s.SizeUpcharges)
		if err != nil {
			log.Printf("Failed to seed style %s: %v", s.StyleNo, err)
		}
	}
}
