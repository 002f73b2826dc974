package searchclient

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/internal/querybuilder"
	"github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/logger"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Search-Relevance-Evaluator/pkg/redis"
)

// CacheKeyPrefix namespaces every cached response.
const CacheKeyPrefix = "relevance:search:"

// KV is the subset of the Redis client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// CachedSearcher serves repeated queries from Redis. It is meant for offline
// runs against a frozen index, e.g. while tuning the score table. Cache
// failures are logged and fall through to the wrapped Searcher.
type CachedSearcher struct {
	next     Searcher
	kv       KV
	endpoint string
	ttl      time.Duration
	logger   *slog.Logger
	hits     atomic.Int64
	misses   atomic.Int64
}

var _ Searcher = (*CachedSearcher)(nil)

// NewCached wraps next. endpoint is part of the key so that runs against
// different indices never share entries.
func NewCached(next Searcher, kv KV, endpoint string, ttl time.Duration) *CachedSearcher {
	return &CachedSearcher{
		next:     next,
		kv:       kv,
		endpoint: endpoint,
		ttl:      ttl,
		logger:   logger.WithComponent("search-cache"),
	}
}

func (c *CachedSearcher) Search(ctx context.Context, req querybuilder.Request) ([]Hit, error) {
	body, err := querybuilder.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}
	key := c.buildKey(body)
	if hits, ok := c.get(ctx, key); ok {
		return hits, nil
	}
	hits, err := c.next.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, hits)
	return hits, nil
}

// Invalidate drops every cached response.
func (c *CachedSearcher) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.kv.FlushByPattern(ctx, CacheKeyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating search cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *CachedSearcher) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CachedSearcher) get(ctx context.Context, key string) ([]Hit, bool) {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var hits []Hit
	if err := json.Unmarshal([]byte(data), &hits); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "key", key)
	return hits, true
}

func (c *CachedSearcher) set(ctx context.Context, key string, hits []Hit) {
	data, err := json.Marshal(hits)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *CachedSearcher) buildKey(body []byte) string {
	h := sha256.New()
	h.Write([]byte(c.endpoint))
	h.Write([]byte{0})
	h.Write(body)
	return fmt.Sprintf("%s%x", CacheKeyPrefix, h.Sum(nil)[:16])
}
