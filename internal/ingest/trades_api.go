package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/polyinsider/tradewatch/internal/store"
)

const (
	// DataAPIBaseURL is the Polymarket data API endpoint
	DataAPIBaseURL = "https://data-api.polymarket.com"
	// DefaultPageLimit is the number of trades requested per wallet
	DefaultPageLimit = 50
)

// TradeFeed reads a wallet's most recent trades from the data API.
type TradeFeed struct {
	restClient
	limit int
}

// NewTradeFeed creates a feed client.
func NewTradeFeed(baseURL string, limit int, opts ...Option) *TradeFeed {
	if baseURL == "" {
		baseURL = DataAPIBaseURL
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	return &TradeFeed{
		restClient: newRESTClient(baseURL, opts),
		limit:      limit,
	}
}

// FetchTrades returns up to the configured number of trades for wallet,
// newest first, in the order the API returned them.
func (f *TradeFeed) FetchTrades(ctx context.Context, wallet string) ([]store.TradeEvent, error) {
	q := url.Values{}
	q.Set("user", wallet)
	q.Set("limit", strconv.Itoa(f.limit))

	var page []feedTrade
	if err := f.getJSON(ctx, "/trades", q, &page); err != nil {
		return nil, fmt.Errorf("fetch trades for %s: %w", wallet, err)
	}

	events := make([]store.TradeEvent, 0, len(page))
	for _, t := range page {
		events = append(events, t.toEvent())
	}

	f.logger.Debug("trades_fetched", "wallet", wallet, "count", len(events))
	return events, nil
}
