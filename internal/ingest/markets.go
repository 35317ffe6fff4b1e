package ingest

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/polyinsider/tradewatch/internal/store"
)

const (
	// CLOBAPIBaseURL is the Polymarket CLOB API endpoint
	CLOBAPIBaseURL = "https://clob.polymarket.com"
	// DefaultMarketTTL is how long a successful lookup is reused
	DefaultMarketTTL = 30 * time.Minute
)

// market is the subset of the CLOB market document we render.
type market struct {
	Question   string `json:"question"`
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	MarketSlug string `json:"market_slug"`
}

// MarketSource looks up cosmetic market metadata by condition id.
type MarketSource struct {
	restClient
	cache *cache.Cache
}

// NewMarketSource creates a metadata client caching successes for ttl.
func NewMarketSource(baseURL string, ttl time.Duration, opts ...Option) *MarketSource {
	if baseURL == "" {
		baseURL = CLOBAPIBaseURL
	}
	if ttl <= 0 {
		ttl = DefaultMarketTTL
	}
	return &MarketSource{
		restClient: newRESTClient(baseURL, opts),
		cache:      cache.New(ttl, 2*ttl),
	}
}

// MarketInfo returns the question and slug for conditionID. Any failure
// yields an empty MarketInfo; failures are not cached.
func (m *MarketSource) MarketInfo(ctx context.Context, conditionID string) store.MarketInfo {
	if conditionID == "" {
		return store.MarketInfo{}
	}
	if v, ok := m.cache.Get(conditionID); ok {
		return v.(store.MarketInfo)
	}

	var doc market
	if err := m.getJSON(ctx, "/markets/"+conditionID, nil, &doc); err != nil {
		m.logger.Debug("market_lookup_failed", "condition_id", truncate(conditionID, 18), "error", err)
		return store.MarketInfo{}
	}

	info := store.MarketInfo{
		Question: coalesce(doc.Question, doc.Title),
		Slug:     coalesce(doc.Slug, doc.MarketSlug),
	}
	if !info.IsZero() {
		m.cache.SetDefault(conditionID, info)
	}
	return info
}
