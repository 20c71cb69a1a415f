// Package ingest turns vendor CSV exports of per-SKU rows into per-style
// catalog documents and loads them into Postgres.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stitchline/backend-quote/internal/obs"
	"github.com/stitchline/backend-quote/internal/pricing"
)

// Row is one vendor CSV record: a single style-color-size combination with its
// price tiers and optional size surcharge. Prices arrive as decimal dollars
// and are converted to cents.
type Row struct {
	StyleNo       string
	Title         string
	ColorName     string
	Size          string
	IsCap         bool
	GarmentPrices [6]pricing.Money
	CapPrices     [3]pricing.Money
	HasCapPrices  bool
	Upcharge      pricing.Money
}

var expectedHeader = []string{
	"style_no", "title", "color", "size", "category",
	"price_2", "price_6", "price_12", "price_24", "price_48", "price_72",
	"cap_price_2", "cap_price_24", "cap_price_144",
	"size_upcharge",
}

// ReadRows parses the vendor export. A missing or mismatched header aborts
// the whole run. Malformed data rows do not: each one is logged with its
// 1-based line number, counted, and skipped so a single bad record cannot
// sink an otherwise healthy upload. The skipped count is returned alongside
// the rows that parsed.
func ReadRows(r io.Reader, log zerolog.Logger) ([]Row, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read csv header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, 0, err
	}

	var (
		rows    []Row
		skipped int
	)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			// Field-count and quoting problems are scoped to one record;
			// anything else means the source itself is unreadable.
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return nil, skipped, fmt.Errorf("read csv line %d: %w", line, err)
			}
			skipped++
			obs.IngestRowsTotal.WithLabelValues("skipped").Inc()
			log.Warn().Err(err).Int("line", line).Msg("skipping unreadable csv row")
			continue
		}
		row, err := parseRow(record)
		if err != nil {
			skipped++
			obs.IngestRowsTotal.WithLabelValues("skipped").Inc()
			log.Warn().Err(err).Int("line", line).Msg("skipping malformed csv row")
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

func checkHeader(header []string) error {
	if len(header) != len(expectedHeader) {
		return fmt.Errorf("csv header has %d columns, want %d", len(header), len(expectedHeader))
	}
	for i, want := range expectedHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return fmt.Errorf("csv header column %d is %q, want %q", i+1, header[i], want)
		}
	}
	return nil
}

func parseRow(record []string) (Row, error) {
	if len(record) != len(expectedHeader) {
		return Row{}, fmt.Errorf("row has %d columns, want %d", len(record), len(expectedHeader))
	}
	row := Row{
		StyleNo:   strings.TrimSpace(record[0]),
		Title:     strings.TrimSpace(record[1]),
		ColorName: strings.TrimSpace(record[2]),
		Size:      strings.TrimSpace(record[3]),
		IsCap:     strings.EqualFold(strings.TrimSpace(record[4]), "cap"),
	}
	for i := 0; i < 6; i++ {
		price, err := parseMoney(record[5+i])
		if err != nil {
			return Row{}, fmt.Errorf("price column %s: %w", expectedHeader[5+i], err)
		}
		row.GarmentPrices[i] = price
	}
	capRaw := [3]string{record[11], record[12], record[13]}
	if strings.TrimSpace(capRaw[0]) != "" || strings.TrimSpace(capRaw[1]) != "" || strings.TrimSpace(capRaw[2]) != "" {
		for i, raw := range capRaw {
			price, err := parseMoney(raw)
			if err != nil {
				return Row{}, fmt.Errorf("price column %s: %w", expectedHeader[11+i], err)
			}
			row.CapPrices[i] = price
		}
		row.HasCapPrices = true
	}
	if strings.TrimSpace(record[14]) != "" {
		upcharge, err := parseMoney(record[14])
		if err != nil {
			return Row{}, fmt.Errorf("size_upcharge: %w", err)
		}
		row.Upcharge = upcharge
	}
	return row, nil
}

// parseMoney converts a decimal dollar amount such as "34.00" or "2.5" into
// cents, rejecting more than two fraction digits rather than rounding.
func parseMoney(raw string) (pricing.Money, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty amount")
	}
	negative := strings.HasPrefix(raw, "-")
	if negative {
		return 0, fmt.Errorf("negative amount %q", raw)
	}
	whole, frac, _ := strings.Cut(raw, ".")
	if whole == "" {
		whole = "0"
	}
	dollars, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	var cents int64
	switch len(frac) {
	case 0:
	case 1:
		cents, err = strconv.ParseInt(frac, 10, 64)
		cents *= 10
	case 2:
		cents, err = strconv.ParseInt(frac, 10, 64)
	default:
		return 0, fmt.Errorf("too many decimal places in %q", raw)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	return dollars*100 + cents, nil
}
