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

// QuoteLineRecord is one persisted order line of a quote.
type QuoteLineRecord struct {
	Position   int
	StyleNo    string
	ColorName  string
	Quantities map[string]int
	IsCap      bool
	UnitPrice  pricing.Money
	Subtotal   pricing.Money
}

// QuoteRecord is a persisted quote with its money roll-up.
type QuoteRecord struct {
	ID           string
	Number       string
	CustomerName string
	QuoteDate    time.Time
	ExpiresAt    time.Time
	GarmentQty   int
	CapQty       int
	Subtotal     pricing.Money
	Tax          pricing.Money
	Total        pricing.Money
	CreatedAt    time.Time
	Lines        []QuoteLineRecord
}

// Quotes provides access to persisted quotes.
type Quotes struct {
	DB           *pgxpool.Pool
	NumberPrefix string
}

// Insert stores the quote and its lines in one transaction, assigning the
// quote number from the shared sequence.
func (r Quotes) Insert(ctx context.Context, q QuoteRecord) (QuoteRecord, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return QuoteRecord{}, fmt.Errorf("begin quote insert: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('quote_number_seq')`).Scan(&seq); err != nil {
		return QuoteRecord{}, fmt.Errorf("next quote number: %w", err)
	}
	prefix := r.NumberPrefix
	if prefix == "" {
		prefix = "Q"
	}
	q.Number = fmt.Sprintf("%s-%06d", prefix, seq)

	err = tx.QueryRow(ctx,
		`INSERT INTO quotes (number, customer_name, quote_date, expires_at, garment_qty, cap_qty, subtotal, tax, total)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		q.Number, q.CustomerName, q.QuoteDate, q.ExpiresAt, q.GarmentQty, q.CapQty, q.Subtotal, q.Tax, q.Total,
	).Scan(&q.ID, &q.CreatedAt)
	if err != nil {
		return QuoteRecord{}, fmt.Errorf("insert quote: %w", err)
	}

	for i, line := range q.Lines {
		quantities, err := json.Marshal(line.Quantities)
		if err != nil {
			return QuoteRecord{}, fmt.Errorf("marshal line %d quantities: %w", i, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO quote_lines (quote_id, position, style_no, color_name, quantities, is_cap, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			q.ID, line.Position, line.StyleNo, line.ColorName, quantities, line.IsCap, line.UnitPrice, line.Subtotal,
		)
		if err != nil {
			return QuoteRecord{}, fmt.Errorf("insert quote line %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return QuoteRecord{}, fmt.Errorf("commit quote insert: %w", err)
	}
	return q, nil
}

const quoteColumns = `id, number, customer_name, quote_date, expires_at, garment_qty, cap_qty, subtotal, tax, total, created_at`

// Get loads a quote and its lines by id.
func (r Quotes) Get(ctx context.Context, id string) (QuoteRecord, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id)
	q, err := scanQuote(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return QuoteRecord{}, ErrNotFound
		}
		return QuoteRecord{}, fmt.Errorf("get quote %q: %w", id, err)
	}

	rows, err := r.DB.Query(ctx,
		`SELECT position, style_no, color_name, quantities, is_cap, unit_price, subtotal
		 FROM quote_lines WHERE quote_id = $1 ORDER BY position`, id)
	if err != nil {
		return QuoteRecord{}, fmt.Errorf("get quote lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			line       QuoteLineRecord
			quantities []byte
		)
		if err := rows.Scan(&line.Position, &line.StyleNo, &line.ColorName, &quantities, &line.IsCap, &line.UnitPrice, &line.Subtotal); err != nil {
			return QuoteRecord{}, err
		}
		if len(quantities) > 0 {
			if err := json.Unmarshal(quantities, &line.Quantities); err != nil {
				return QuoteRecord{}, fmt.Errorf("decode line quantities: %w", err)
			}
		}
		q.Lines = append(q.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return QuoteRecord{}, err
	}
	return q, nil
}

// List returns quotes newest first without their lines, plus the total count.
func (r Quotes) List(ctx context.Context, limit, offset int) ([]QuoteRecord, int64, error) {
	var total int64
	if err := r.DB.QueryRow(ctx, `SELECT count(*) FROM quotes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count quotes: %w", err)
	}
	rows, err := r.DB.Query(ctx,
		`SELECT `+quoteColumns+` FROM quotes ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()
	var out []QuoteRecord
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

func scanQuote(row pgx.Row) (QuoteRecord, error) {
	var q QuoteRecord
	err := row.Scan(&q.ID, &q.Number, &q.CustomerName, &q.QuoteDate, &q.ExpiresAt,
		&q.GarmentQty, &q.CapQty, &q.Subtotal, &q.Tax, &q.Total, &q.CreatedAt)
	return q, err
}
