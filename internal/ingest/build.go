package ingest

import (
	"github.com/rs/zerolog"

	"github.com/stitchline/backend-quote/internal/obs"
	"github.com/stitchline/backend-quote/internal/pricing"
	"github.com/stitchline/backend-quote/internal/repo"
)

// BuildResult carries the aggregated documents plus row accounting.
type BuildResult struct {
	Docs        []repo.ProductDoc
	RowsTotal   int
	RowsSkipped int
}

// Build groups per-SKU rows into one document per style. Colors and sizes keep
// first-seen order, the tier tables come from the style's first row, and
// upcharges are collected from any row carrying a non-zero surcharge. Rows
// without a style number are logged and skipped; they never fail the run.
// The grouping is deterministic, so re-running over the same input reproduces
// the same documents.
func Build(rows []Row, log zerolog.Logger) BuildResult {
	res := BuildResult{RowsTotal: len(rows)}
	byStyle := make(map[string]*repo.ProductDoc)
	var order []string
	seenColor := make(map[string]map[string]bool)
	seenSize := make(map[string]map[string]bool)

	for i, row := range rows {
		if row.StyleNo == "" {
			res.RowsSkipped++
			obs.IngestRowsTotal.WithLabelValues("skipped").Inc()
			log.Warn().Int("row", i+1).Str("title", row.Title).Msg("skipping row without style number")
			continue
		}
		obs.IngestRowsTotal.WithLabelValues("ok").Inc()

		doc, ok := byStyle[row.StyleNo]
		if !ok {
			doc = &repo.ProductDoc{
				StyleNo:       row.StyleNo,
				Title:         row.Title,
				IsCap:         row.IsCap,
				BasePrices:    tierTable(pricing.GarmentBreaks, row.GarmentPrices[:]),
				SizeUpcharges: map[string]pricing.Money{},
			}
			if row.HasCapPrices {
				doc.CapPrices = tierTable(pricing.CapBreaks, row.CapPrices[:])
			}
			byStyle[row.StyleNo] = doc
			order = append(order, row.StyleNo)
			seenColor[row.StyleNo] = make(map[string]bool)
			seenSize[row.StyleNo] = make(map[string]bool)
		}
		if row.ColorName != "" && !seenColor[row.StyleNo][row.ColorName] {
			seenColor[row.StyleNo][row.ColorName] = true
			doc.Colors = append(doc.Colors, row.ColorName)
		}
		if row.Size != "" && !seenSize[row.StyleNo][row.Size] {
			seenSize[row.StyleNo][row.Size] = true
			doc.Sizes = append(doc.Sizes, row.Size)
		}
		if row.Upcharge > 0 && row.Size != "" {
			doc.SizeUpcharges[row.Size] = row.Upcharge
		}
	}

	res.Docs = make([]repo.ProductDoc, 0, len(order))
	for _, styleNo := range order {
		res.Docs = append(res.Docs, *byStyle[styleNo])
	}
	return res
}

func tierTable(breaks []int, prices []pricing.Money) pricing.TierTable {
	table := make(pricing.TierTable, len(breaks))
	for i, minQty := range breaks {
		table[i] = pricing.Tier{MinQty: minQty, Unit: prices[i]}
	}
	return table
}
