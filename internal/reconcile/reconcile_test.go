package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polyinsider/tradewatch/internal/store"
)

func ev(m string) store.TradeEvent {
	return store.TradeEvent{Marker: store.Marker(m)}
}

func markers(events []store.TradeEvent) []store.Marker {
	out := make([]store.Marker, 0, len(events))
	for _, e := range events {
		out = append(out, e.Marker)
	}
	return out
}

func TestReconcile(t *testing.T) {
	t.Run("warm start seeds the newest marker and emits nothing", func(t *testing.T) {
		res := Reconcile([]store.TradeEvent{ev("e3"), ev("e2"), ev("e1")}, "")
		assert.Empty(t, res.New)
		assert.Equal(t, store.Marker("e3"), res.Cursor)
		assert.True(t, res.WarmStart)
	})

	t.Run("warm start on an empty page keeps no cursor", func(t *testing.T) {
		res := Reconcile(nil, "")
		assert.Empty(t, res.New)
		assert.Equal(t, store.Marker(""), res.Cursor)
		assert.False(t, res.WarmStart)
	})

	t.Run("empty page leaves the cursor unchanged", func(t *testing.T) {
		res := Reconcile(nil, "e1")
		assert.Empty(t, res.New)
		assert.Equal(t, store.Marker("e1"), res.Cursor)
	})

	t.Run("cursor at the head is a no-op", func(t *testing.T) {
		res := Reconcile([]store.TradeEvent{ev("m"), ev("e1")}, "m")
		assert.Empty(t, res.New)
		assert.Equal(t, store.Marker("m"), res.Cursor)
		assert.False(t, res.CursorLost)
	})

	t.Run("new trades are emitted oldest first", func(t *testing.T) {
		res := Reconcile([]store.TradeEvent{ev("e3"), ev("e2"), ev("e1")}, "e1")
		assert.Equal(t, []store.Marker{"e2", "e3"}, markers(res.New))
		assert.Equal(t, store.Marker("e3"), res.Cursor)
		assert.False(t, res.CursorLost)
	})

	t.Run("unseen cursor treats the whole page as new", func(t *testing.T) {
		res := Reconcile([]store.TradeEvent{ev("e3"), ev("e2"), ev("e1")}, "gone")
		assert.Equal(t, []store.Marker{"e1", "e2", "e3"}, markers(res.New))
		assert.Equal(t, store.Marker("e3"), res.Cursor)
		assert.True(t, res.CursorLost)
	})

	t.Run("does not modify the input page", func(t *testing.T) {
		page := []store.TradeEvent{ev("e3"), ev("e2"), ev("e1")}
		Reconcile(page, "e1")
		assert.Equal(t, []store.Marker{"e3", "e2", "e1"}, markers(page))
	})
}
