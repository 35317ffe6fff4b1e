package watch

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/polyinsider/tradewatch/internal/ingest"
	"github.com/polyinsider/tradewatch/internal/notify"
	"github.com/polyinsider/tradewatch/internal/reconcile"
	"github.com/polyinsider/tradewatch/internal/store"
)

type passResult struct {
	newTrades int
	delivered int
	skipped   bool
	err       error
}

// pass reconciles one identity's feed against its cursor and delivers what
// is new, oldest first. The cursor advances per attempted delivery whether
// or not the send succeeded.
func (s *Scheduler) pass(ctx context.Context, id *store.Identity) (res passResult) {
	wallet, ok, err := s.resolve(ctx, id)
	if err != nil {
		res.err = err
		return res
	}
	if !ok {
		res.skipped = true
		return res
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.feedTimeout)
	page, err := s.Feed.FetchTrades(fetchCtx, wallet)
	cancel()
	if err != nil {
		res.err = err
		return res
	}

	key := store.CursorKey(wallet)
	cursor, _ := s.Cursors.Get(key)
	r := reconcile.Reconcile(page, cursor)

	if r.WarmStart {
		s.Cursors.Set(key, r.Cursor)
		if err := s.Cursors.Flush(ctx); err != nil {
			res.err = fmt.Errorf("flush cursor: %w", err)
			return res
		}
		s.logger.Info("warm_start", "handle", id.Handle, "wallet", wallet, "cursor", r.Cursor)
		return res
	}

	if len(r.New) == 0 {
		return res
	}
	if r.CursorLost {
		s.logger.Warn("cursor_not_in_page",
			"handle", id.Handle,
			"cursor", cursor,
			"page_size", len(page),
		)
	}
	res.newTrades = len(r.New)

	// Whatever was advanced is persisted even if the batch stops early.
	defer func() {
		if err := s.Cursors.Flush(context.WithoutCancel(ctx)); err != nil && res.err == nil {
			res.err = fmt.Errorf("flush cursor: %w", err)
		}
	}()

	name := notify.DisplayName(s.Names, id.Handle, wallet)
	for _, ev := range r.New {
		if err := ctx.Err(); err != nil {
			res.err = err
			return res
		}

		info := s.Markets.MarketInfo(ctx, ev.ConditionID)
		msg := s.Formatter.Format(ev, name, info)
		if _, err := s.Sender.Send(ctx, msg); err == nil {
			res.delivered++
		}

		s.Cursors.Set(key, ev.Marker)
		if s.flushEachEvent {
			if err := s.Cursors.Flush(ctx); err != nil {
				s.logger.Warn("cursor_flush_failed", "handle", id.Handle, "error", err)
			}
		}
	}

	s.logger.Info("trades_delivered",
		"handle", id.Handle,
		"new", res.newTrades,
		"delivered", res.delivered,
	)
	return res
}

// resolve returns the identity's wallet, resolving and caching it on first
// success. A handle with no matching profile is announced once per process
// and reported as not ok; other resolver errors fail the pass.
func (s *Scheduler) resolve(ctx context.Context, id *store.Identity) (string, bool, error) {
	if id.Wallet != "" {
		return id.Wallet, true, nil
	}

	wallet, err := s.Resolver.Resolve(ctx, id.Handle)
	if errors.Is(err, ingest.ErrWalletNotFound) {
		s.logger.Warn("wallet_not_found", "handle", id.Handle)
		if !id.NotifiedUnresolved {
			id.NotifiedUnresolved = true
			text := fmt.Sprintf("Wallet for profile not found <b>%s</b>.", html.EscapeString(id.Handle))
			// best effort, like every other delivery
			_ = s.Sender.Notify(ctx, text)
		}
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve %s: %w", id.Handle, err)
	}

	id.Wallet = wallet
	s.logger.Info("wallet_resolved", "handle", id.Handle, "wallet", wallet)
	return wallet, true, nil
}
