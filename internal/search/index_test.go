package search_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/backend-quote/internal/catalog"
	"github.com/stitchline/backend-quote/internal/obs"
	"github.com/stitchline/backend-quote/internal/search"
)

func newTestIndex(t *testing.T) (search.Index, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return search.Index{R: client, Key: "search:styles"}, client
}

func TestIndexSearch(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Rebuild(ctx, []string{"PC61", "pc54", "CP80", "PC61LS"}))

	t.Run("prefix match is case-insensitive and ordered", func(t *testing.T) {
		styles, err := idx.Search(ctx, "pc", 20)
		require.NoError(t, err)
		require.Equal(t, []string{"pc54", "PC61", "PC61LS"}, styles)
	})

	t.Run("limit caps the result page", func(t *testing.T) {
		styles, err := idx.Search(ctx, "PC", 2)
		require.NoError(t, err)
		require.Len(t, styles, 2)
	})

	t.Run("no match yields empty slice", func(t *testing.T) {
		styles, err := idx.Search(ctx, "ZZ", 20)
		require.NoError(t, err)
		require.Empty(t, styles)
	})

	t.Run("empty prefix yields nothing", func(t *testing.T) {
		styles, err := idx.Search(ctx, "  ", 20)
		require.NoError(t, err)
		require.Empty(t, styles)
	})
}

func TestRebuildReplacesPreviousContents(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Rebuild(ctx, []string{"PC61", "CP80"}))
	require.NoError(t, idx.Rebuild(ctx, []string{"DT6000"}))

	styles, err := idx.Search(ctx, "PC", 20)
	require.NoError(t, err)
	require.Empty(t, styles)

	styles, err = idx.Search(ctx, "DT", 20)
	require.NoError(t, err)
	require.Equal(t, []string{"DT6000"}, styles)
}

type staticLister struct {
	styles []string
	err    error
}

func (s staticLister) ListStyleNos(context.Context) ([]string, error) {
	return s.styles, s.err
}

func TestReindexerRun(t *testing.T) {
	obs.MustRegisterDomainMetrics("stitch", prometheus.NewRegistry())
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	r := search.Reindexer{
		Store: staticLister{styles: []string{"PC61", "CP80"}},
		Index: idx,
		Log:   zerolog.Nop(),
	}
	require.NoError(t, r.Run(ctx))

	styles, err := idx.Search(ctx, "CP", 20)
	require.NoError(t, err)
	require.Equal(t, []string{"CP80"}, styles)
}

func TestReindexerPropagatesStoreFailure(t *testing.T) {
	obs.MustRegisterDomainMetrics("stitch", prometheus.NewRegistry())
	idx, _ := newTestIndex(t)
	r := search.Reindexer{
		Store: staticLister{err: errors.New("db down")},
		Index: idx,
		Log:   zerolog.Nop(),
	}
	require.Error(t, r.Run(context.Background()))
}

func TestReindexerDropsStaleProductDocuments(t *testing.T) {
	obs.MustRegisterDomainMetrics("stitch", prometheus.NewRegistry())
	idx, client := newTestIndex(t)
	ctx := context.Background()

	cache := catalog.NewCache(client, time.Minute)
	require.NoError(t, cache.SetJSON(ctx, catalog.ProductCacheKey("PC61"), map[string]string{"title": "old tiers"}))
	require.NoError(t, cache.SetJSON(ctx, catalog.ProductCacheKey("DT6000"), map[string]string{"title": "untouched"}))

	r := search.Reindexer{
		Store: staticLister{styles: []string{"PC61", "CP80"}},
		Index: idx,
		Cache: cache,
		Log:   zerolog.Nop(),
	}
	require.NoError(t, r.Run(ctx))

	var doc map[string]string
	found, err := cache.GetJSON(ctx, catalog.ProductCacheKey("PC61"), &doc)
	require.NoError(t, err)
	require.False(t, found, "reindexed style should be evicted")

	found, err = cache.GetJSON(ctx, catalog.ProductCacheKey("DT6000"), &doc)
	require.NoError(t, err)
	require.True(t, found, "styles outside the rebuild keep their documents")
}
