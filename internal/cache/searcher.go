package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/pysugar/nexus-console/internal/logview"
)

var (
	searchCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_search_cache_hits_total",
		Help: "Number of log searches served from the redis cache",
	})
	searchCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_search_cache_misses_total",
		Help: "Number of log searches that missed the redis cache",
	})
)

// Searcher caches backend search results in redis. Identical parameter
// sets within the TTL hit the cache and never reach the backend; any
// redis failure degrades to a plain miss.
type Searcher struct {
	inner  logview.Searcher
	client *Client
	ttl    time.Duration
}

// NewSearcher wraps inner with a redis result cache.
func NewSearcher(inner logview.Searcher, client *Client, ttl time.Duration) *Searcher {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Searcher{inner: inner, client: client, ttl: ttl}
}

// SearchLogs implements logview.Searcher.
func (s *Searcher) SearchLogs(ctx context.Context, accessToken string, p logview.SearchParams) (logview.Page, error) {
	key := cacheKey(p)

	if data, err := s.client.Get(ctx, key); err == nil {
		var page logview.Page
		if err := json.Unmarshal(data, &page); err == nil {
			searchCacheHits.Inc()
			return page, nil
		}
	}
	searchCacheMisses.Inc()

	page, err := s.inner.SearchLogs(ctx, accessToken, p)
	if err != nil {
		return logview.Page{}, err
	}

	if data, err := json.Marshal(page); err == nil {
		if err := s.client.Set(ctx, key, data, s.ttl); err != nil {
			log.Printf("[Cache] failed to store search result: %v", err)
		}
	}
	return page, nil
}

// cacheKey hashes the serialized search params. Map iteration order does
// not matter: encoding/json sorts map keys.
func cacheKey(p logview.SearchParams) string {
	data, _ := json.Marshal(p)
	sum := sha256.Sum256(data)
	return "console:search:" + hex.EncodeToString(sum[:])
}
