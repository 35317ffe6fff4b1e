// Package reconcile turns a newest-first trade page and a stored cursor into
// the trades that have not been delivered yet.
package reconcile

import "github.com/polyinsider/tradewatch/internal/store"

// Result is the outcome of reconciling one page.
type Result struct {
	// New holds unseen trades, oldest first.
	New []store.TradeEvent

	// Cursor is the marker to store once New has been processed. It equals
	// the input cursor when nothing changed.
	Cursor store.Marker

	// WarmStart is set when the identity had no cursor and the page only
	// seeded one.
	WarmStart bool

	// CursorLost is set when a cursor was present but not found in the page,
	// so the whole page is treated as new and older trades may be missing.
	CursorLost bool
}

// Reconcile diffs page (newest first) against cursor. An empty cursor means
// the identity was never seen: the newest marker is adopted and nothing is
// emitted, so a new subject's history does not flood the channel.
func Reconcile(page []store.TradeEvent, cursor store.Marker) Result {
	if len(page) == 0 {
		return Result{Cursor: cursor}
	}

	if cursor == "" {
		return Result{Cursor: page[0].Marker, WarmStart: true}
	}

	n := len(page)
	found := false
	for i, ev := range page {
		if ev.Marker == cursor {
			n = i
			found = true
			break
		}
	}

	if n == 0 {
		return Result{Cursor: cursor}
	}

	fresh := make([]store.TradeEvent, n)
	for i := 0; i < n; i++ {
		fresh[i] = page[n-1-i]
	}

	return Result{
		New:        fresh,
		Cursor:     page[0].Marker,
		CursorLost: !found,
	}
}
