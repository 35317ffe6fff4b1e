// Package notify renders trade notifications and delivers them to the chat
// endpoint without exceeding its rate limit.
package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/polyinsider/tradewatch/internal/detector"
	"github.com/polyinsider/tradewatch/internal/store"
)

// UnknownPlaceholder is rendered for values the feed did not supply.
const UnknownPlaceholder = "?"

const untitledMarket = "(untitled)"

var hundred = decimal.NewFromInt(100)

// Formatter renders TradeEvents as rich-text chat messages.
type Formatter struct {
	eventURLBase string
	detector     *detector.Detector
}

// NewFormatter creates a Formatter. det may be nil.
func NewFormatter(eventURLBase string, det *detector.Detector) *Formatter {
	return &Formatter{
		eventURLBase: strings.TrimSuffix(eventURLBase, "/"),
		detector:     det,
	}
}

// Format builds the message for one trade. It never performs I/O; info is
// the zero value when market metadata was unavailable.
func (f *Formatter) Format(ev store.TradeEvent, displayName string, info store.MarketInfo) store.DeliveryMessage {
	question := info.Question
	if question == "" {
		question = ev.Title
	}
	if question == "" {
		question = untitledMarket
	}

	var eventLine string
	if link := f.EventLink(info.Slug); link != "" {
		eventLine = fmt.Sprintf("<b>Event:</b> <a href=\"%s\">%s</a>", html.EscapeString(link), html.EscapeString(question))
	} else {
		eventLine = "<b>Event:</b> " + html.EscapeString(question)
	}

	header := fmt.Sprintf("%s %s · %s", SideIcon(ev.Side), html.EscapeString(displayName), html.EscapeString(sideLabel(ev)))
	if f.detector != nil {
		for _, signal := range f.detector.Detect(ev) {
			if signal == detector.SignalWhale {
				header += " 🐋"
			}
		}
	}

	outcome := ""
	if ev.Outcome != "" {
		outcome = " · <b>Outcome:</b> " + html.EscapeString(ev.Outcome)
	}

	text := fmt.Sprintf("<b>%s</b>\n%s\n<b>Price:</b> %s · <b>Size:</b> %s%s",
		header,
		eventLine,
		PriceToCents(ev.Price),
		FormatSize(ev.Size),
		outcome,
	)

	return store.DeliveryMessage{Text: text, RichText: true}
}

// EventLink returns the public market page for slug, or "" without a slug.
func (f *Formatter) EventLink(slug string) string {
	if slug == "" {
		return ""
	}
	return f.eventURLBase + "/" + slug
}

// PriceToCents renders a [0,1] price as cents rounded to two decimals,
// e.g. 0.437 -> "43.7¢".
func PriceToCents(p decimal.NullDecimal) string {
	if !p.Valid {
		return UnknownPlaceholder
	}
	return p.Decimal.Mul(hundred).Round(2).String() + "¢"
}

// FormatSize renders a share count, or the placeholder when missing.
func FormatSize(s decimal.NullDecimal) string {
	if !s.Valid {
		return UnknownPlaceholder
	}
	return s.Decimal.String()
}

// SideIcon is the indicator shown in front of a trade.
func SideIcon(s store.Side) string {
	switch s {
	case store.SideBuy:
		return "🟢"
	case store.SideSell:
		return "🔴"
	default:
		return "⚪️"
	}
}

func sideLabel(ev store.TradeEvent) string {
	if ev.RawSide != "" {
		return ev.RawSide
	}
	if ev.Side == store.SideUnknown {
		return UnknownPlaceholder
	}
	return ev.Side.String()
}

// DisplayName picks the name shown for a wallet: the names table first, then
// the configured handle, then a shortened address.
func DisplayName(names store.Names, handle, wallet string) string {
	if name, ok := names.Lookup(wallet); ok {
		return name
	}
	if handle != "" {
		return handle
	}
	return ShortAddress(wallet)
}

// ShortAddress abbreviates an address as 0x1234…abcd.
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
