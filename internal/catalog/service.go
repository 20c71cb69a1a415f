package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stitchline/backend-quote/internal/common"
	"github.com/stitchline/backend-quote/internal/obs"
	"github.com/stitchline/backend-quote/internal/pricing"
	"github.com/stitchline/backend-quote/internal/repo"
)

type store interface {
	GetByStyle(ctx context.Context, styleNo string) (repo.ProductDoc, error)
	SearchStyles(ctx context.Context, prefix string, limit int) ([]string, error)
}

type styleIndex interface {
	Search(ctx context.Context, prefix string, limit int) ([]string, error)
}

type breaker interface {
	Allow(ctx context.Context) bool
	Report(ctx context.Context, ok bool)
}

// Product is the public catalog payload for one style, optionally narrowed to a
// selected color.
type Product struct {
	StyleNo       string                   `json:"styleNo"`
	Title         string                   `json:"title"`
	IsCap         bool                     `json:"isCap"`
	Colors        []string                 `json:"colors"`
	Sizes         []string                 `json:"sizes"`
	BasePrices    pricing.TierTable        `json:"basePrices"`
	CapPrices     pricing.TierTable        `json:"capPrices,omitempty"`
	SizeUpcharges map[string]pricing.Money `json:"sizeUpcharges"`
}

// Pricing projects the payload into the shape the pricing engine consumes.
func (p Product) Pricing() pricing.Product {
	return pricing.Product{
		StyleNo:       p.StyleNo,
		Title:         p.Title,
		IsCap:         p.IsCap,
		BasePrices:    p.BasePrices,
		CapPrices:     p.CapPrices,
		SizeUpcharges: p.SizeUpcharges,
	}
}

// Service answers style/color lookups and incremental style search.
type Service struct {
	store      store
	cache      *Cache
	index      styleIndex
	breaker    breaker
	log        zerolog.Logger
	maxResults int
	searchTTL  time.Duration
}

// ServiceConfig groups Service dependencies. Index and Breaker are optional;
// without them search goes straight to the database.
type ServiceConfig struct {
	Store      store
	Cache      *Cache
	Index      styleIndex
	Breaker    breaker
	Logger     zerolog.Logger
	MaxResults int
	// SearchTTL bounds how long search results stay cached. Search pages go
	// stale faster than style documents, so they get their own, shorter TTL.
	SearchTTL time.Duration
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	maxResults := cfg.MaxResults
	if maxResults < 1 {
		maxResults = 20
	}
	return &Service{
		store:      cfg.Store,
		cache:      cfg.Cache,
		index:      cfg.Index,
		breaker:    cfg.Breaker,
		log:        cfg.Logger,
		maxResults: maxResults,
		searchTTL:  cfg.SearchTTL,
	}, nil
}

// FindProduct resolves a style number, verifying the selected color belongs to
// the style's color set when one is given. An empty colorName skips the check
// so callers can fetch the style document before a color is picked.
func (s *Service) FindProduct(ctx context.Context, styleNo, colorName string) (Product, error) {
	styleNo = strings.TrimSpace(styleNo)
	if styleNo == "" {
		return Product{}, common.BadRequest("styleNo", "styleNo is required", nil)
	}

	product, err := s.loadProduct(ctx, styleNo)
	if err != nil {
		return Product{}, err
	}

	colorName = strings.TrimSpace(colorName)
	if colorName != "" && !hasColor(product.Colors, colorName) {
		return Product{}, common.NotFound(fmt.Sprintf("style %s has no color %q", styleNo, colorName), nil)
	}
	return product, nil
}

// Resolver adapts the service into the pricing engine's lookup shape. Lookup
// failures of any kind mark the line invalid; the engine keeps pricing the
// remaining lines.
func (s *Service) Resolver(ctx context.Context) pricing.Resolver {
	return func(styleNo, colorName string) (pricing.Product, bool) {
		product, err := s.FindProduct(ctx, styleNo, colorName)
		if err != nil {
			return pricing.Product{}, false
		}
		return product.Pricing(), true
	}
}

// SearchStyles returns style numbers starting with the given prefix,
// case-insensitive, ordered and capped at the configured page size. The Redis
// index serves the query when its breaker admits it; otherwise the database
// answers directly.
func (s *Service) SearchStyles(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []string{}, nil
	}

	cacheKey := "catalog:search:" + strings.ToUpper(prefix)
	if s.cache != nil {
		var cached []string
		if ok, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}

	styles, err := s.searchIndex(ctx, prefix)
	if err != nil {
		obs.SearchFallbackTotal.Inc()
		s.log.Warn().Err(err).Str("prefix", prefix).Msg("style index unavailable, querying database")
		styles, err = s.store.SearchStyles(ctx, prefix, s.maxResults)
		if err != nil {
			return nil, fmt.Errorf("search styles: %w", err)
		}
	}
	if styles == nil {
		styles = []string{}
	}
	if s.cache != nil {
		_ = s.cache.SetJSONTTL(ctx, cacheKey, styles, s.searchTTL)
	}
	return styles, nil
}

var errIndexUnavailable = errors.New("catalog: style index unavailable")

func (s *Service) searchIndex(ctx context.Context, prefix string) ([]string, error) {
	if s.index == nil {
		return nil, errIndexUnavailable
	}
	if s.breaker != nil && !s.breaker.Allow(ctx) {
		return nil, errIndexUnavailable
	}
	styles, err := s.index.Search(ctx, prefix, s.maxResults)
	if s.breaker != nil {
		s.breaker.Report(ctx, err == nil)
	}
	if err != nil {
		return nil, err
	}
	return styles, nil
}

// ProductCacheKey returns the Redis key holding the cached document for one
// style. Writers that replace style rows invalidate these keys so readers do
// not serve superseded tiers for the rest of the TTL.
func ProductCacheKey(styleNo string) string {
	return "catalog:product:" + styleNo
}

func (s *Service) loadProduct(ctx context.Context, styleNo string) (Product, error) {
	cacheKey := ProductCacheKey(styleNo)
	if s.cache != nil {
		var cached Product
		if ok, err := s.cache.GetJSON(ctx, cacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}
	doc, err := s.store.GetByStyle(ctx, styleNo)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Product{}, common.NotFound(fmt.Sprintf("style %s not found", styleNo), err)
		}
		return Product{}, fmt.Errorf("get style %q: %w", styleNo, err)
	}
	product := fromDoc(doc)
	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, cacheKey, product)
	}
	return product, nil
}

func fromDoc(doc repo.ProductDoc) Product {
	upcharges := doc.SizeUpcharges
	if upcharges == nil {
		upcharges = map[string]pricing.Money{}
	}
	return Product{
		StyleNo:       doc.StyleNo,
		Title:         doc.Title,
		IsCap:         doc.IsCap,
		Colors:        doc.Colors,
		Sizes:         doc.Sizes,
		BasePrices:    doc.BasePrices,
		CapPrices:     doc.CapPrices,
		SizeUpcharges: upcharges,
	}
}

func hasColor(colors []string, colorName string) bool {
	for _, c := range colors {
		if strings.EqualFold(c, colorName) {
			return true
		}
	}
	return false
}
