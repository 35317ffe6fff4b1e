package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyinsider/tradewatch/internal/store"
)

const wallet = "0x56687bf447db6ffa42ffe2204a05edaa20f55839"

func TestFlexString(t *testing.T) {
	var v struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
		C flexString `json:"c"`
		D flexString `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"0.5","b":1724423552,"c":null,"d":true}`), &v))
	assert.Equal(t, "0.5", v.A.String())
	assert.Equal(t, "1724423552", v.B.String())
	assert.Equal(t, "", v.C.String())
	assert.Equal(t, "", v.D.String())
}

func TestTradeFeed(t *testing.T) {
	t.Run("decodes a newest-first page", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/trades", r.URL.Path)
			assert.Equal(t, wallet, r.URL.Query().Get("user"))
			assert.Equal(t, "25", r.URL.Query().Get("limit"))
			fmt.Fprint(w, `[
				{"proxyWallet":"`+wallet+`","side":"buy","conditionId":"0xc1","size":120,"price":0.437,"timestamp":1724423552,"title":"Will it rain?","outcome":"Yes","transactionHash":"0xaa"},
				{"side":"","conditionId":"0xc2","size":"n/a","price":"","timestamp":"1724423000","transactionHash":"0xbb"}
			]`)
		}))
		defer srv.Close()

		feed := NewTradeFeed(srv.URL, 25, WithTimeout(time.Second))
		events, err := feed.FetchTrades(context.Background(), wallet)
		require.NoError(t, err)
		require.Len(t, events, 2)

		first := events[0]
		assert.Equal(t, store.Marker("0xaa-1724423552-0xc1"), first.Marker)
		assert.Equal(t, store.SideBuy, first.Side)
		assert.Equal(t, "BUY", first.RawSide)
		require.True(t, first.Price.Valid)
		assert.Equal(t, "0.437", first.Price.Decimal.String())
		assert.Equal(t, "120", first.Size.Decimal.String())
		assert.Equal(t, "Yes", first.Outcome)
		assert.Equal(t, "Will it rain?", first.Title)

		second := events[1]
		assert.Equal(t, store.Marker("0xbb-1724423000-0xc2"), second.Marker)
		assert.Equal(t, store.SideUnknown, second.Side)
		assert.Equal(t, "?", second.RawSide)
		assert.False(t, second.Price.Valid)
		assert.False(t, second.Size.Valid)
	})

	t.Run("non-2xx is an APIError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream down", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewTradeFeed(srv.URL, 0).FetchTrades(context.Background(), wallet)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
		assert.Contains(t, apiErr.Body, "upstream down")
	})

	t.Run("a page that is not a list fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"error":"bad user"}`)
		}))
		defer srv.Close()

		_, err := NewTradeFeed(srv.URL, 0).FetchTrades(context.Background(), wallet)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode failed")
	})
}

func TestMarketSource(t *testing.T) {
	t.Run("caches successful lookups", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			assert.Equal(t, "/markets/0xc1", r.URL.Path)
			fmt.Fprint(w, `{"question":"Will it rain?","market_slug":"will-it-rain"}`)
		}))
		defer srv.Close()

		m := NewMarketSource(srv.URL, time.Minute)
		info := m.MarketInfo(context.Background(), "0xc1")
		assert.Equal(t, store.MarketInfo{Question: "Will it rain?", Slug: "will-it-rain"}, info)

		again := m.MarketInfo(context.Background(), "0xc1")
		assert.Equal(t, info, again)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("question falls back to title", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"title":"Rain market","slug":"rain"}`)
		}))
		defer srv.Close()

		info := NewMarketSource(srv.URL, time.Minute).MarketInfo(context.Background(), "0xc1")
		assert.Equal(t, store.MarketInfo{Question: "Rain market", Slug: "rain"}, info)
	})

	t.Run("failures are empty and not cached", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		m := NewMarketSource(srv.URL, time.Minute)
		assert.True(t, m.MarketInfo(context.Background(), "0xc1").IsZero())
		assert.True(t, m.MarketInfo(context.Background(), "0xc1").IsZero())
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("empty condition id makes no request", func(t *testing.T) {
		m := NewMarketSource("http://127.0.0.1:1", time.Minute)
		assert.True(t, m.MarketInfo(context.Background(), "").IsZero())
	})
}

func TestResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/public-search", r.URL.Path)
		switch r.URL.Query().Get("q") {
		case "Alice":
			fmt.Fprint(w, `{"profiles":[{"pseudonym":"alice2","proxyWallet":"0x1"},{"pseudonym":"alice","proxyWallet":"`+wallet+`"}]}`)
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			fmt.Fprint(w, `{"profiles":[]}`)
		}
	}))
	defer srv.Close()

	r := NewResolver(srv.URL)

	t.Run("matches pseudonym case-insensitively", func(t *testing.T) {
		got, err := r.Resolve(context.Background(), "Alice")
		require.NoError(t, err)
		assert.Equal(t, wallet, got)
	})

	t.Run("addresses short-circuit", func(t *testing.T) {
		addr := strings.ToUpper(wallet[2:])
		got, err := NewResolver("http://127.0.0.1:1").Resolve(context.Background(), "0x"+addr)
		require.NoError(t, err)
		assert.Equal(t, "0x"+addr, got)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), "nobody")
		assert.ErrorIs(t, err, ErrWalletNotFound)
	})

	t.Run("search failure is not a miss", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), "broken")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrWalletNotFound)
	})
}

func TestIsAddress(t *testing.T) {
	assert.True(t, IsAddress(wallet))
	assert.False(t, IsAddress(wallet[2:]))
	assert.False(t, IsAddress("0x1234"))
	assert.False(t, IsAddress("alice"))
}

func TestListenerHandleMessage(t *testing.T) {
	nudges := make(chan struct{}, 1)
	l := NewListener("", nudges, nil)
	l.SetWallets([]string{strings.ToUpper(wallet)})

	assert.False(t, l.handleMessage([]byte(`not json`)))
	assert.False(t, l.handleMessage([]byte(`{"topic":"activity","payload":{"proxyWallet":"0x999"}}`)))
	assert.Empty(t, nudges)

	msg := []byte(`{"topic":"activity","type":"trades","payload":{"proxyWallet":"` + wallet + `"}}`)
	assert.True(t, l.handleMessage(msg))
	assert.True(t, l.handleMessage(msg), "a second match coalesces")
	assert.Len(t, nudges, 1)
}

func TestListenerSubscribesAndNudges(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	subscribed := make(chan subscribeMessage, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		var sub subscribeMessage
		if !assert.NoError(t, conn.ReadJSON(&sub)) {
			return
		}
		subscribed <- sub

		conn.WriteMessage(websocket.TextMessage, []byte(`{"topic":"activity","type":"trades","payload":{"proxyWallet":"`+wallet+`"}}`))
		// hold the connection open until the client goes away
		conn.ReadMessage()
	}))
	defer srv.Close()

	nudges := make(chan struct{}, 1)
	l := NewListener("ws"+strings.TrimPrefix(srv.URL, "http"), nudges, nil)
	l.SetWallets([]string{wallet})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Stop()

	select {
	case sub := <-subscribed:
		assert.Equal(t, newActivitySubscription(), sub)
	case <-time.After(5 * time.Second):
		t.Fatal("no subscription received")
	}

	select {
	case <-nudges:
	case <-time.After(5 * time.Second):
		t.Fatal("no nudge received")
	}
}
