// Package detector flags trades worth highlighting in a notification.
package detector

import (
	"github.com/shopspring/decimal"

	"github.com/polyinsider/tradewatch/internal/store"
)

// Signal types for detection
const (
	SignalWhale = "WHALE"
)

// Detector applies rules to decide which trades stand out.
type Detector struct {
	whaleValueUSD decimal.Decimal
}

// NewDetector creates a new Detector. A non-positive threshold disables the
// whale rule.
func NewDetector(whaleValueUSD float64) *Detector {
	return &Detector{whaleValueUSD: decimal.NewFromFloat(whaleValueUSD)}
}

// Detect returns the signals raised by a trade.
func (d *Detector) Detect(ev store.TradeEvent) []string {
	var signals []string

	// IF price * size >= threshold THEN WHALE
	if value, ok := NotionalUSD(ev); ok && d.whaleValueUSD.IsPositive() {
		if value.GreaterThanOrEqual(d.whaleValueUSD) {
			signals = append(signals, SignalWhale)
		}
	}

	return signals
}

// NotionalUSD is price * size, available only when both parsed.
func NotionalUSD(ev store.TradeEvent) (decimal.Decimal, bool) {
	if !ev.Price.Valid || !ev.Size.Valid {
		return decimal.Zero, false
	}
	return ev.Price.Decimal.Mul(ev.Size.Decimal), true
}
