// Package quote computes and persists tiered-price quotes for embroidery
// orders.
package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/stitchline/backend-quote/internal/common"
	"github.com/stitchline/backend-quote/internal/obs"
	"github.com/stitchline/backend-quote/internal/pricing"
	"github.com/stitchline/backend-quote/internal/repo"
)

type resolverSource interface {
	Resolver(ctx context.Context) pricing.Resolver
}

type quoteStore interface {
	Insert(ctx context.Context, q repo.QuoteRecord) (repo.QuoteRecord, error)
	Get(ctx context.Context, id string) (repo.QuoteRecord, error)
	List(ctx context.Context, limit, offset int) ([]repo.QuoteRecord, int64, error)
}

// LineRequest is one order line in an incoming quote payload.
type LineRequest struct {
	StyleNo    string         `json:"styleNo" validate:"required"`
	ColorName  string         `json:"colorName" validate:"required"`
	Quantities map[string]int `json:"quantities" validate:"required,dive,gt=0"`
}

// Request is the payload for preview and create.
type Request struct {
	CustomerName string        `json:"customerName" validate:"required,max=200"`
	QuoteDate    string        `json:"quoteDate" validate:"omitempty,datetime=2006-01-02"`
	Lines        []LineRequest `json:"lines" validate:"required,min=1,max=100,dive"`
}

// LineView is the priced projection of one line in API responses.
type LineView struct {
	Index     int           `json:"index"`
	StyleNo   string        `json:"styleNo"`
	ColorName string        `json:"colorName"`
	Title     string        `json:"title,omitempty"`
	IsCap     bool          `json:"isCap"`
	Quantity  int           `json:"quantity"`
	UnitPrice pricing.Money `json:"unitPrice"`
	Subtotal  pricing.Money `json:"subtotal"`
	Invalid   bool          `json:"invalid,omitempty"`
}

// Preview is the computed quote before persistence.
type Preview struct {
	Lines        []LineView    `json:"lines"`
	GarmentQty   int           `json:"garmentQty"`
	CapQty       int           `json:"capQty"`
	Subtotal     pricing.Money `json:"subtotal"`
	Tax          pricing.Money `json:"tax"`
	Total        pricing.Money `json:"total"`
	InvalidLines int           `json:"invalidLines,omitempty"`
}

// View is a persisted quote in API responses.
type View struct {
	ID           string        `json:"id"`
	Number       string        `json:"number"`
	CustomerName string        `json:"customerName"`
	QuoteDate    string        `json:"quoteDate"`
	ExpiresAt    string        `json:"expiresAt"`
	GarmentQty   int           `json:"garmentQty"`
	CapQty       int           `json:"capQty"`
	Subtotal     pricing.Money `json:"subtotal"`
	Tax          pricing.Money `json:"tax"`
	Total        pricing.Money `json:"total"`
	CreatedAt    time.Time     `json:"createdAt"`
	Lines        []LineView    `json:"lines,omitempty"`
}

// Service validates, prices, and persists quotes.
type Service struct {
	catalog      resolverSource
	store        quoteStore
	validate     *validator.Validate
	log          zerolog.Logger
	taxBps       int
	validityDays int
	now          func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Catalog      resolverSource
	Store        quoteStore
	Validate     *validator.Validate
	Logger       zerolog.Logger
	TaxRateBPS   int
	ValidityDays int
	Now          func() time.Time
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("quote: catalog is required")
	}
	validate := cfg.Validate
	if validate == nil {
		validate = validator.New()
	}
	taxBps := cfg.TaxRateBPS
	if taxBps < 0 {
		taxBps = 0
	}
	validityDays := cfg.ValidityDays
	if validityDays <= 0 {
		validityDays = 30
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		catalog:      cfg.Catalog,
		store:        cfg.Store,
		validate:     validate,
		log:          cfg.Logger,
		taxBps:       taxBps,
		validityDays: validityDays,
		now:          now,
	}, nil
}

// Preview prices the order without persisting it. Lines whose style/color
// combination does not resolve are flagged invalid and contribute nothing;
// totals still cover the valid remainder.
func (s *Service) Preview(ctx context.Context, req Request) (Preview, error) {
	if err := s.validate.Struct(req); err != nil {
		return Preview{}, invalidPayload(err)
	}
	result := pricing.Quote(toLines(req.Lines), s.catalog.Resolver(ctx))
	if result.InvalidLines > 0 {
		obs.QuoteComputeTotal.WithLabelValues("partial").Inc()
		obs.QuoteInvalidLines.Add(float64(result.InvalidLines))
	} else {
		obs.QuoteComputeTotal.WithLabelValues("ok").Inc()
	}
	summary := pricing.Totals(result.Subtotal, s.taxBps)
	return Preview{
		Lines:        toLineViews(result.Lines),
		GarmentQty:   result.GarmentQty,
		CapQty:       result.CapQty,
		Subtotal:     summary.Subtotal,
		Tax:          summary.Tax,
		Total:        summary.Total,
		InvalidLines: result.InvalidLines,
	}, nil
}

// Create prices the order and persists it with an assigned number and expiry.
// Unlike Preview it refuses orders containing invalid lines: a stored quote is
// a commitment and must not silently drop part of the order.
func (s *Service) Create(ctx context.Context, req Request) (View, error) {
	if err := s.validate.Struct(req); err != nil {
		return View{}, invalidPayload(err)
	}
	if s.store == nil {
		return View{}, errors.New("quote: store not configured")
	}

	quoteDate, err := s.parseQuoteDate(req.QuoteDate)
	if err != nil {
		return View{}, err
	}

	result := pricing.Quote(toLines(req.Lines), s.catalog.Resolver(ctx))
	if result.InvalidLines > 0 {
		obs.QuoteComputeTotal.WithLabelValues("rejected").Inc()
		obs.QuoteInvalidLines.Add(float64(result.InvalidLines))
		return View{}, &common.AppError{
			Code:       "INVALID_LINES",
			Message:    fmt.Sprintf("%d line(s) reference unknown style/color combinations", result.InvalidLines),
			HTTPStatus: http.StatusUnprocessableEntity,
			Details:    map[string]any{"invalidLines": invalidIndexes(result.Lines)},
		}
	}
	obs.QuoteComputeTotal.WithLabelValues("ok").Inc()
	summary := pricing.Totals(result.Subtotal, s.taxBps)

	record := repo.QuoteRecord{
		CustomerName: req.CustomerName,
		QuoteDate:    quoteDate,
		ExpiresAt:    quoteDate.AddDate(0, 0, s.validityDays),
		GarmentQty:   result.GarmentQty,
		CapQty:       result.CapQty,
		Subtotal:     summary.Subtotal,
		Tax:          summary.Tax,
		Total:        summary.Total,
		Lines:        toLineRecords(req.Lines, result.Lines),
	}
	stored, err := s.store.Insert(ctx, record)
	if err != nil {
		return View{}, fmt.Errorf("store quote: %w", err)
	}
	s.log.Info().
		Str("quote_number", stored.Number).
		Int("lines", len(stored.Lines)).
		Int64("total", stored.Total).
		Msg("quote created")
	return toView(stored, true), nil
}

// Get loads one stored quote with its lines.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	if s.store == nil {
		return View{}, errors.New("quote: store not configured")
	}
	record, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return View{}, common.NotFound("quote not found", err)
		}
		return View{}, err
	}
	return toView(record, true), nil
}

// List returns stored quotes without lines, newest first.
func (s *Service) List(ctx context.Context, page, perPage int) ([]View, int64, error) {
	if s.store == nil {
		return nil, 0, errors.New("quote: store not configured")
	}
	offset := (page - 1) * perPage
	if offset < 0 {
		offset = 0
	}
	records, total, err := s.store.List(ctx, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	views := make([]View, 0, len(records))
	for _, record := range records {
		views = append(views, toView(record, false))
	}
	return views, total, nil
}

func (s *Service) parseQuoteDate(raw string) (time.Time, error) {
	if raw == "" {
		now := s.now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	quoteDate, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, common.BadRequest("quoteDate", "quoteDate must be YYYY-MM-DD", err)
	}
	return quoteDate, nil
}

func toLines(reqs []LineRequest) []pricing.Line {
	lines := make([]pricing.Line, len(reqs))
	for i, lr := range reqs {
		lines[i] = pricing.Line{StyleNo: lr.StyleNo, ColorName: lr.ColorName, Quantities: lr.Quantities}
	}
	return lines
}

func toLineViews(results []pricing.LineResult) []LineView {
	views := make([]LineView, len(results))
	for i, lr := range results {
		views[i] = LineView{
			Index:     lr.Index,
			StyleNo:   lr.StyleNo,
			ColorName: lr.ColorName,
			Title:     lr.Title,
			IsCap:     lr.IsCap,
			Quantity:  lr.Quantity,
			UnitPrice: lr.UnitPrice,
			Subtotal:  lr.Subtotal,
			Invalid:   lr.Invalid,
		}
	}
	return views
}

func toLineRecords(reqs []LineRequest, results []pricing.LineResult) []repo.QuoteLineRecord {
	records := make([]repo.QuoteLineRecord, len(results))
	for i, lr := range results {
		records[i] = repo.QuoteLineRecord{
			Position:  i,
			StyleNo:   lr.StyleNo,
			ColorName: lr.ColorName,
			IsCap:     lr.IsCap,
			UnitPrice: lr.UnitPrice,
			Subtotal:  lr.Subtotal,
		}
		if i < len(reqs) {
			records[i].Quantities = reqs[i].Quantities
		}
	}
	return records
}

func toView(record repo.QuoteRecord, withLines bool) View {
	view := View{
		ID:           record.ID,
		Number:       record.Number,
		CustomerName: record.CustomerName,
		QuoteDate:    record.QuoteDate.Format("2006-01-02"),
		ExpiresAt:    record.ExpiresAt.Format("2006-01-02"),
		GarmentQty:   record.GarmentQty,
		CapQty:       record.CapQty,
		Subtotal:     record.Subtotal,
		Tax:          record.Tax,
		Total:        record.Total,
		CreatedAt:    record.CreatedAt,
	}
	if withLines {
		view.Lines = make([]LineView, 0, len(record.Lines))
		for _, line := range record.Lines {
			qty := 0
			for _, q := range line.Quantities {
				if q > 0 {
					qty += q
				}
			}
			view.Lines = append(view.Lines, LineView{
				Index:     line.Position,
				StyleNo:   line.StyleNo,
				ColorName: line.ColorName,
				IsCap:     line.IsCap,
				Quantity:  qty,
				UnitPrice: line.UnitPrice,
				Subtotal:  line.Subtotal,
			})
		}
	}
	return view
}

func invalidIndexes(results []pricing.LineResult) []int {
	var out []int
	for _, lr := range results {
		if lr.Invalid {
			out = append(out, lr.Index)
		}
	}
	return out
}

func invalidPayload(err error) *common.AppError {
	var verrs validator.ValidationErrors
	details := map[string]any{}
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
	}
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    "invalid quote payload",
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details:    details,
	}
}
