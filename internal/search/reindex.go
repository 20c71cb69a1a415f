package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stitchline/backend-quote/internal/catalog"
	"github.com/stitchline/backend-quote/internal/obs"
)

type styleLister interface {
	ListStyleNos(ctx context.Context) ([]string, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// Reindexer rebuilds the style index from the catalog of record.
type Reindexer struct {
	Store styleLister
	Index Index
	// Cache, when set, has its per-style product documents dropped after a
	// rebuild. A reindex runs because catalog rows changed, so documents
	// cached before it are stale.
	Cache cacheInvalidator
	Log   zerolog.Logger
}

// Run loads every style number from the database and swaps it into the index.
func (r Reindexer) Run(ctx context.Context) error {
	if r.Store == nil {
		return errors.New("search: reindexer store not configured")
	}
	styleNos, err := r.Store.ListStyleNos(ctx)
	if err != nil {
		obs.ReindexRunsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("list styles for reindex: %w", err)
	}
	if err := r.Index.Rebuild(ctx, styleNos); err != nil {
		obs.ReindexRunsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("rebuild style index: %w", err)
	}
	r.dropCachedProducts(ctx, styleNos)
	obs.ReindexRunsTotal.WithLabelValues("ok").Inc()
	r.Log.Info().Int("styles", len(styleNos)).Msg("style index rebuilt")
	return nil
}

func (r Reindexer) dropCachedProducts(ctx context.Context, styleNos []string) {
	if r.Cache == nil || len(styleNos) == 0 {
		return
	}
	keys := make([]string, len(styleNos))
	for i, styleNo := range styleNos {
		keys[i] = catalog.ProductCacheKey(styleNo)
	}
	// Best effort. A failed flush means readers see old prices until the
	// document TTL runs out, the same exposure as before the rebuild.
	if err := r.Cache.Invalidate(ctx, keys...); err != nil {
		r.Log.Warn().Err(err).Int("keys", len(keys)).Msg("failed to drop cached style documents")
	}
}
