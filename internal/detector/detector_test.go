package detector

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/polyinsider/tradewatch/internal/store"
)

func trade(price, size string) store.TradeEvent {
	ev := store.TradeEvent{Marker: "m"}
	if p, err := decimal.NewFromString(price); err == nil {
		ev.Price = decimal.NewNullDecimal(p)
	}
	if s, err := decimal.NewFromString(size); err == nil {
		ev.Size = decimal.NewNullDecimal(s)
	}
	return ev
}

func TestDetector(t *testing.T) {
	d := NewDetector(10000)

	// Test Case 1: Whale
	signals := d.Detect(trade("0.5", "25000"))
	if len(signals) != 1 || signals[0] != SignalWhale {
		t.Errorf("Expected 1 Whale signal, got %v", signals)
	}

	// Test Case 2: Exactly at the threshold
	signals = d.Detect(trade("0.25", "40000"))
	if len(signals) != 1 {
		t.Errorf("Expected threshold trade to flag, got %v", signals)
	}

	// Test Case 3: Small trade
	signals = d.Detect(trade("0.5", "100"))
	if len(signals) != 0 {
		t.Errorf("Expected 0 signals for small trade, got %v", signals)
	}

	// Test Case 4: Unparseable price never flags
	signals = d.Detect(trade("abc", "1000000"))
	if len(signals) != 0 {
		t.Errorf("Expected 0 signals for invalid price, got %v", signals)
	}
}

func TestDisabledWhaleRule(t *testing.T) {
	d := NewDetector(0)
	if signals := d.Detect(trade("0.9", "1000000")); len(signals) != 0 {
		t.Errorf("Expected whale rule disabled, got %v", signals)
	}
}

func TestNotionalUSD(t *testing.T) {
	v, ok := NotionalUSD(trade("0.437", "100"))
	if !ok {
		t.Fatal("Expected notional to be available")
	}
	if !v.Equal(decimal.RequireFromString("43.7")) {
		t.Errorf("notional = %s, want 43.7", v)
	}

	if _, ok := NotionalUSD(trade("0.4", "")); ok {
		t.Error("Expected no notional without size")
	}
}
