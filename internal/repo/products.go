package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stitchline/backend-quote/internal/pricing"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("repo: not found")

// ProductDoc is the per-style catalog document: one row per style aggregating
// its colors, sizes, tier tables, and size upcharges.
type ProductDoc struct {
	StyleNo       string
	Title         string
	IsCap         bool
	Colors        []string
	Sizes         []string
	BasePrices    pricing.TierTable
	CapPrices     pricing.TierTable
	SizeUpcharges map[string]pricing.Money
	UpdatedAt     time.Time
}

// Products provides access to the catalog documents.
type Products struct {
	DB *pgxpool.Pool
}

const productColumns = `style_no, title, is_cap, colors, sizes, base_prices, cap_prices, size_upcharges, updated_at`

// GetByStyle loads one catalog document by its style number.
func (r Products) GetByStyle(ctx context.Context, styleNo string) (ProductDoc, error) {
	row := r.DB.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE style_no = $1`, styleNo)
	doc, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductDoc{}, ErrNotFound
		}
		return ProductDoc{}, fmt.Errorf("get product %q: %w", styleNo, err)
	}
	return doc, nil
}

// SearchStyles returns style numbers matching the prefix, case-insensitive,
// ordered by style number and capped at limit.
func (r Products) SearchStyles(ctx context.Context, prefix string, limit int) ([]string, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT style_no FROM products
		 WHERE lower(style_no) LIKE lower($1) || '%'
		 ORDER BY style_no
		 LIMIT $2`, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("search styles: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var styleNo string
		if err := rows.Scan(&styleNo); err != nil {
			return nil, err
		}
		out = append(out, styleNo)
	}
	return out, rows.Err()
}

// ListStyleNos returns every style number in the catalog, ordered. Used by the
// search reindexer.
func (r Products) ListStyleNos(ctx context.Context) ([]string, error) {
	rows, err := r.DB.Query(ctx, `SELECT style_no FROM products ORDER BY style_no`)
	if err != nil {
		return nil, fmt.Errorf("list style numbers: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var styleNo string
		if err := rows.Scan(&styleNo); err != nil {
			return nil, err
		}
		out = append(out, styleNo)
	}
	return out, rows.Err()
}

// UpsertBatch writes the documents in one batched round trip. The upsert is
// keyed on style_no so re-running an ingest with identical input converges on
// the same rows.
func (r Products) UpsertBatch(ctx context.Context, docs []ProductDoc) error {
	if len(docs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, doc := range docs {
		basePrices, err := json.Marshal(doc.BasePrices)
		if err != nil {
			return fmt.Errorf("marshal base prices for %q: %w", doc.StyleNo, err)
		}
		var capPrices []byte
		if len(doc.CapPrices) > 0 {
			capPrices, err = json.Marshal(doc.CapPrices)
			if err != nil {
				return fmt.Errorf("marshal cap prices for %q: %w", doc.StyleNo, err)
			}
		}
		upcharges, err := json.Marshal(orEmptyUpcharges(doc.SizeUpcharges))
		if err != nil {
			return fmt.Errorf("marshal upcharges for %q: %w", doc.StyleNo, err)
		}
		batch.Queue(
			`INSERT INTO products (style_no, title, is_cap, colors, sizes, base_prices, cap_prices, size_upcharges, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			 ON CONFLICT (style_no) DO UPDATE SET
			   title = EXCLUDED.title,
			   is_cap = EXCLUDED.is_cap,
			   colors = EXCLUDED.colors,
			   sizes = EXCLUDED.sizes,
			   base_prices = EXCLUDED.base_prices,
			   cap_prices = EXCLUDED.cap_prices,
			   size_upcharges = EXCLUDED.size_upcharges,
			   updated_at = now()`,
			doc.StyleNo, doc.Title, doc.IsCap, doc.Colors, doc.Sizes, basePrices, capPrices, upcharges,
		)
	}
	results := r.DB.SendBatch(ctx, batch)
	defer results.Close()
	for range docs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert products batch: %w", err)
		}
	}
	return nil
}

func scanProduct(row pgx.Row) (ProductDoc, error) {
	var (
		doc        ProductDoc
		basePrices []byte
		capPrices  []byte
		upcharges  []byte
	)
	if err := row.Scan(&doc.StyleNo, &doc.Title, &doc.IsCap, &doc.Colors, &doc.Sizes, &basePrices, &capPrices, &upcharges, &doc.UpdatedAt); err != nil {
		return ProductDoc{}, err
	}
	if len(basePrices) > 0 {
		if err := json.Unmarshal(basePrices, &doc.BasePrices); err != nil {
			return ProductDoc{}, fmt.Errorf("decode base prices: %w", err)
		}
	}
	if len(capPrices) > 0 {
		if err := json.Unmarshal(capPrices, &doc.CapPrices); err != nil {
			return ProductDoc{}, fmt.Errorf("decode cap prices: %w", err)
		}
	}
	if len(upcharges) > 0 {
		if err := json.Unmarshal(upcharges, &doc.SizeUpcharges); err != nil {
			return ProductDoc{}, fmt.Errorf("decode size upcharges: %w", err)
		}
	}
	return doc, nil
}

func orEmptyUpcharges(m map[string]pricing.Money) map[string]pricing.Money {
	if m == nil {
		return map[string]pricing.Money{}
	}
	return m
}
