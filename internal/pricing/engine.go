package pricing

// Money represents a monetary value stored in minor units.
type Money = int64

// GarmentBreaks lists the cumulative-quantity breakpoints of every garment tier table.
var GarmentBreaks = []int{2, 6, 12, 24, 48, 72}

// CapBreaks lists the cumulative-quantity breakpoints of every cap tier table.
var CapBreaks = []int{2, 24, 144}

// Tier maps a minimum cumulative quantity to a unit price.
type Tier struct {
	MinQty int   `json:"minQty"`
	Unit   Money `json:"unit"`
}

// TierTable is an ordered set of tiers, ascending by MinQty.
type TierTable []Tier

// UnitPrice returns the unit price of the highest tier whose breakpoint does not
// exceed qty. Quantities below the lowest breakpoint price at the lowest tier.
func (t TierTable) UnitPrice(qty int) Money {
	if len(t) == 0 {
		return 0
	}
	for i := len(t) - 1; i > 0; i-- {
		if qty >= t[i].MinQty {
			return t[i].Unit
		}
	}
	return t[0].Unit
}

// Product carries the pricing-relevant attributes of a catalog entry.
type Product struct {
	StyleNo       string
	Title         string
	IsCap         bool
	BasePrices    TierTable
	CapPrices     TierTable
	SizeUpcharges map[string]Money
}

// Table selects the tier table appropriate for the product category.
func (p Product) Table() TierTable {
	if p.IsCap && len(p.CapPrices) > 0 {
		return p.CapPrices
	}
	return p.BasePrices
}

// Line is one style+color selection with per-size quantities. Zero and negative
// quantities are ignored rather than stored.
type Line struct {
	StyleNo    string
	ColorName  string
	Quantities map[string]int
}

// TotalQty sums the positive per-size quantities of the line.
func (l Line) TotalQty() int {
	var total int
	for _, qty := range l.Quantities {
		if qty > 0 {
			total += qty
		}
	}
	return total
}

// Resolver maps a style/color selection to its product. The second return value
// reports whether the combination exists in the catalog.
type Resolver func(styleNo, colorName string) (Product, bool)

// LineSubtotal prices a single line against the cumulative quantity of its
// category pool. The returned unit price is the tier base price before
// upcharges; per-size upcharges are additive on top of it.
func LineSubtotal(line Line, product Product, categoryQty int) (subtotal, unit Money) {
	unit = product.Table().UnitPrice(categoryQty)
	for size, qty := range line.Quantities {
		if qty <= 0 {
			continue
		}
		perUnit := unit + product.SizeUpcharges[size]
		subtotal += perUnit * Money(qty)
	}
	return subtotal, unit
}

// LineResult is the priced projection of one order line.
type LineResult struct {
	Index     int
	StyleNo   string
	ColorName string
	Title     string
	IsCap     bool
	Quantity  int
	UnitPrice Money
	Subtotal  Money
	Invalid   bool
}

// Result aggregates the priced order. Invalid lines contribute zero quantity and
// zero price but remain present and flagged.
type Result struct {
	Lines        []LineResult
	GarmentQty   int
	CapQty       int
	Subtotal     Money
	InvalidLines int
}

// Quote prices a full order in two passes: quantities are first summed into
// garment and cap pools across all lines, then every line is priced against the
// pool of its category. A line's unit price therefore depends on its sibling
// lines, and editing one line can reprice the others.
func Quote(lines []Line, resolve Resolver) Result {
	res := Result{Lines: make([]LineResult, len(lines))}
	products := make([]Product, len(lines))
	resolved := make([]bool, len(lines))

	for i, line := range lines {
		lr := LineResult{Index: i, StyleNo: line.StyleNo, ColorName: line.ColorName, Quantity: line.TotalQty()}
		product, ok := resolve(line.StyleNo, line.ColorName)
		if !ok {
			lr.Invalid = true
			lr.Quantity = 0
			res.InvalidLines++
			res.Lines[i] = lr
			continue
		}
		products[i] = product
		resolved[i] = true
		lr.Title = product.Title
		lr.IsCap = product.IsCap
		if product.IsCap {
			res.CapQty += lr.Quantity
		} else {
			res.GarmentQty += lr.Quantity
		}
		res.Lines[i] = lr
	}

	for i, line := range lines {
		if !resolved[i] {
			continue
		}
		pool := res.GarmentQty
		if products[i].IsCap {
			pool = res.CapQty
		}
		subtotal, unit := LineSubtotal(line, products[i], pool)
		res.Lines[i].UnitPrice = unit
		res.Lines[i].Subtotal = subtotal
		res.Subtotal += subtotal
	}
	return res
}

// Summary carries the order-level money roll-up.
type Summary struct {
	Subtotal Money
	Tax      Money
	Total    Money
}

// Totals applies the sales-tax rate expressed in basis points to the subtotal.
// The tax amount rounds half-up to the nearest cent.
func Totals(subtotal Money, taxBps int) Summary {
	if subtotal < 0 {
		subtotal = 0
	}
	tax := (subtotal*Money(taxBps) + 5000) / 10000
	return Summary{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal + tax,
	}
}
