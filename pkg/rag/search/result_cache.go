package search

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"docqa-be/internal/pkg/logger"
	"docqa-be/pkg/cache"
	"docqa-be/pkg/rag/rank"
)

const DefaultResultTTL = 5 * time.Minute

// ResultCache memoizes every passage at or above the threshold, ranked, per
// (query, topK, threshold, filter). The passage cap is applied by the caller. Entries are tagged by owner and collection for invalidation.
type ResultCache struct {
	cache *cache.Cache[[]rank.CandidatePassage]
}

func NewResultCache(store cache.Store, log logger.ILogger, opts cache.Options) *ResultCache {
	if opts.Namespace == "" {
		opts.Namespace = "search"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultResultTTL
	}
	return &ResultCache{cache: cache.New[[]rank.CandidatePassage](store, log, opts)}
}

// Key hashes the normalized query with every parameter that changes the result.
func Key(query string, topK int, threshold float64, f Filter) string {
	docs := append([]string(nil), f.DocumentIDs...)
	sort.Strings(docs)
	return cache.HashKey(
		cache.Normalize(query),
		strconv.Itoa(topK),
		strconv.FormatFloat(threshold, 'f', -1, 64),
		"owner="+f.UserID,
		"collection="+f.CollectionID,
		"documents="+strings.Join(docs, ","),
	)
}

func OwnerTag(userID string) string { return "owner:" + userID }

func CollectionTag(collectionID string) string { return "collection:" + collectionID }

func tagsFor(f Filter) []string {
	tags := []string{OwnerTag(f.UserID)}
	if f.CollectionID != "" {
		tags = append(tags, CollectionTag(f.CollectionID))
	}
	return tags
}

func (c *ResultCache) GetOrCompute(ctx context.Context, key string, f Filter, compute func(ctx context.Context) ([]rank.CandidatePassage, error)) ([]rank.CandidatePassage, error) {
	return c.cache.GetOrCompute(ctx, key, tagsFor(f), compute)
}

// InvalidateOwner drops every cached search of userID. It returns the number
// of entries removed.
func (c *ResultCache) InvalidateOwner(ctx context.Context, userID string) int {
	return c.cache.Invalidate(ctx, OwnerTag(userID))
}

func (c *ResultCache) InvalidateCollection(ctx context.Context, collectionID string) int {
	return c.cache.Invalidate(ctx, CollectionTag(collectionID))
}
