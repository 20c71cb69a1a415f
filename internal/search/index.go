// Package search maintains a Redis-backed style-number index used for
// incremental autocomplete lookups.
package search

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const memberSep = "\x00"

// Index answers prefix queries against a sorted set of style numbers. Members
// are stored as "UPPERCASED<sep>original" with a constant score so ZRANGEBYLEX
// gives case-insensitive lexicographic matching while preserving the original
// casing for display.
type Index struct {
	R   *redis.Client
	Key string
}

func (i Index) key() string {
	if i.Key == "" {
		return "search:styles"
	}
	return i.Key
}

// Search returns up to limit style numbers whose uppercased form starts with
// the given prefix, in lexicographic order.
func (i Index) Search(ctx context.Context, prefix string, limit int) ([]string, error) {
	if i.R == nil {
		return nil, errors.New("search: redis client not configured")
	}
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return []string{}, nil
	}
	members, err := i.R.ZRangeByLex(ctx, i.key(), &redis.ZRangeBy{
		Min:   "[" + prefix,
		Max:   "[" + prefix + "\xff",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		if idx := strings.Index(m, memberSep); idx >= 0 {
			out = append(out, m[idx+len(memberSep):])
		} else {
			out = append(out, m)
		}
	}
	return out, nil
}

// Rebuild replaces the index contents with the given style numbers. The new
// set is staged under a temporary key and swapped in atomically so concurrent
// searches never observe a partially built index.
func (i Index) Rebuild(ctx context.Context, styleNos []string) error {
	if i.R == nil {
		return errors.New("search: redis client not configured")
	}
	key := i.key()
	staging := key + ":staging"

	pipe := i.R.TxPipeline()
	pipe.Del(ctx, staging)
	for _, styleNo := range styleNos {
		styleNo = strings.TrimSpace(styleNo)
		if styleNo == "" {
			continue
		}
		member := strings.ToUpper(styleNo) + memberSep + styleNo
		pipe.ZAdd(ctx, staging, redis.Z{Score: 0, Member: member})
	}
	pipe.Rename(ctx, staging, key)
	_, err := pipe.Exec(ctx)
	if err != nil && len(styleNos) == 0 {
		// Renaming a missing staging key fails when the catalog is empty;
		// dropping the live key gives the same result.
		return i.R.Del(ctx, key).Err()
	}
	return err
}
