// Package store provides the domain model, cursor persistence and the
// display-name table.
package store

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Marker identifies a single trade in a wallet's feed. Two trades with the
// same marker are the same trade.
type Marker string

// MarkerOf builds the composite marker for a trade.
func MarkerOf(txHash, timestamp, conditionID string) Marker {
	return Marker(txHash + "-" + timestamp + "-" + conditionID)
}

// Side is the direction of a trade.
type Side int

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

// ParseSide maps a feed side string to a Side, case-insensitively.
func ParseSide(s string) Side {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy
	case "SELL":
		return SideSell
	default:
		return SideUnknown
	}
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// TradeEvent is one trade from a wallet's activity feed.
type TradeEvent struct {
	// Marker is the composite key of the trade
	Marker Marker

	// Side is BUY, SELL or UNKNOWN
	Side Side

	// RawSide is the side as reported by the feed, upper-cased ("?" if missing)
	RawSide string

	// Price is the execution price in [0,1]; invalid if the feed value was not numeric
	Price decimal.NullDecimal

	// Size is the number of shares; invalid if the feed value was not numeric
	Size decimal.NullDecimal

	// ConditionID is the market condition the trade belongs to
	ConditionID string

	// TransactionHash is the on-chain transaction hash
	TransactionHash string

	// Timestamp is the feed timestamp as text (unix seconds)
	Timestamp string

	// Outcome is the outcome token label (Yes/No/...), may be empty
	Outcome string

	// Title is the market title as reported by the feed, may be empty
	Title string
}

// MarketInfo is the cosmetic metadata of a market.
type MarketInfo struct {
	Question string
	Slug     string
}

// IsZero reports whether no metadata is available.
func (m MarketInfo) IsZero() bool {
	return m.Question == "" && m.Slug == ""
}

// DeliveryMessage is a rendered notification.
type DeliveryMessage struct {
	Text     string
	RichText bool
}

// Identity is a tracked handle or wallet. It is owned by the scheduler and
// mutated only by that identity's pass.
type Identity struct {
	// Handle is the configured value (pseudonym or address)
	Handle string

	// Wallet is the resolved proxy wallet, empty until resolved
	Wallet string

	// NotifiedUnresolved is set once the "not found" notification was sent
	NotifiedUnresolved bool
}

// CursorKey is the Cursor Store key for a wallet.
func CursorKey(wallet string) string {
	return strings.ToLower(wallet)
}
