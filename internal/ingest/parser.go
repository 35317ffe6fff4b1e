// Package ingest talks to the Polymarket collaborators: the per-wallet trade
// feed, market metadata, wallet search and the live activity stream.
package ingest

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/polyinsider/tradewatch/internal/store"
)

// flexString decodes a JSON string or number into its text form. The data
// API is not consistent about quoting numeric fields.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*f = flexString(b)
	default:
		// bools, objects and arrays carry nothing usable
		*f = ""
	}
	return nil
}

func (f flexString) String() string {
	return strings.TrimSpace(string(f))
}

// feedTrade is one element of the data API /trades page.
type feedTrade struct {
	ProxyWallet     flexString `json:"proxyWallet"`
	Side            flexString `json:"side"`
	ConditionID     flexString `json:"conditionId"`
	Size            flexString `json:"size"`
	Price           flexString `json:"price"`
	Timestamp       flexString `json:"timestamp"`
	Title           flexString `json:"title"`
	Outcome         flexString `json:"outcome"`
	TransactionHash flexString `json:"transactionHash"`
}

// toEvent converts a feed record to a TradeEvent. Missing or malformed
// fields degrade to unknown values rather than failing the page.
func (t feedTrade) toEvent() store.TradeEvent {
	rawSide := strings.ToUpper(t.Side.String())
	if rawSide == "" {
		rawSide = "?"
	}

	txHash := t.TransactionHash.String()
	ts := t.Timestamp.String()
	conditionID := t.ConditionID.String()

	return store.TradeEvent{
		Marker:          store.MarkerOf(txHash, ts, conditionID),
		Side:            store.ParseSide(rawSide),
		RawSide:         rawSide,
		Price:           parseDecimal(t.Price.String()),
		Size:            parseDecimal(t.Size.String()),
		ConditionID:     conditionID,
		TransactionHash: txHash,
		Timestamp:       ts,
		Outcome:         t.Outcome.String(),
		Title:           t.Title.String(),
	}
}

// parseDecimal returns an invalid NullDecimal for empty or non-numeric input.
func parseDecimal(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
