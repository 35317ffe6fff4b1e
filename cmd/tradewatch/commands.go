package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/polyinsider/tradewatch/internal/config"
	"github.com/polyinsider/tradewatch/internal/detector"
	"github.com/polyinsider/tradewatch/internal/ingest"
	"github.com/polyinsider/tradewatch/internal/metrics"
	"github.com/polyinsider/tradewatch/internal/notify"
	"github.com/polyinsider/tradewatch/internal/store"
	"github.com/polyinsider/tradewatch/internal/watch"
)

// feedTimeoutSlack is added to the per-call timeout for the trade feed,
// which returns the largest payloads.
const feedTimeoutSlack = 10 * time.Second

// defaultPingText is sent by the ping verb when no text is given.
const defaultPingText = "Bot connected. Ready to go."

func runCommand(flags *overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the watcher until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, (*config.Config).Validate)
			if err != nil {
				return err
			}
			return runWatch(cfg)
		},
	}
}

func runWatch(cfg *config.Config) error {
	logger := slog.Default()

	logger.Info("tradewatch starting",
		"handles", strings.Join(cfg.Handles, ","),
		"poll_interval", cfg.PollInterval,
		"telegram_token", cfg.MaskedTelegramToken(),
		"state_backend", cfg.StateBackend,
		"state_path", cfg.StatePath,
		"flush_each_event", cfg.FlushEachEvent,
		"whale_value_usd", cfg.WhaleValueUSD,
		"live_nudge", cfg.LiveNudge,
		"metrics_port", cfg.MetricsPort,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cursors, err := store.OpenCursors(cfg.StateBackend, cfg.StatePath)
	if err != nil {
		return fmt.Errorf("open cursor store: %w", err)
	}
	defer func() {
		if err := cursors.Close(); err != nil {
			logger.Error("cursor_store_close_failed", "error", err)
		}
	}()
	logger.Info("cursors_loaded", "count", len(cursors.All()))

	names, err := store.LoadNames(cfg.NamesPath)
	if err != nil {
		logger.Warn("names_load_failed", "path", cfg.NamesPath, "error", err)
		names = store.NewNames(nil)
	}
	logger.Info("names_loaded", "count", names.Len())

	tracker := metrics.NewTracker()
	if cfg.MetricsPort > 0 {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsPort, tracker); err != nil {
				logger.Error("metrics_server_failed", "error", err)
			}
		}()
	}

	dispatcher := newDispatcher(cfg, tracker)

	httpOpts := []ingest.Option{ingest.WithTimeout(cfg.HTTPTimeout), ingest.WithLogger(logger)}
	feedTimeout := cfg.HTTPTimeout + feedTimeoutSlack

	deps := watch.Deps{
		Feed:      ingest.NewTradeFeed(cfg.DataAPIURL, cfg.TradePageLimit, ingest.WithTimeout(feedTimeout), ingest.WithLogger(logger)),
		Markets:   ingest.NewMarketSource(cfg.CLOBAPIURL, cfg.MarketCacheTTL, httpOpts...),
		Resolver:  ingest.NewResolver(cfg.GammaAPIURL, httpOpts...),
		Sender:    dispatcher,
		Cursors:   cursors,
		Formatter: notify.NewFormatter(cfg.EventURLBase, detector.NewDetector(cfg.WhaleValueUSD)),
		Names:     names,
	}

	opts := []watch.Option{
		watch.WithPollInterval(cfg.PollInterval),
		watch.WithFeedTimeout(feedTimeout),
		watch.WithFlushEachEvent(cfg.FlushEachEvent),
		watch.WithTracker(tracker),
		watch.WithLogger(logger),
	}

	if cfg.LiveNudge {
		nudges := make(chan struct{}, 1)
		listener := ingest.NewListener(cfg.LiveWSURL, nudges, logger)
		listener.Start(ctx)
		defer listener.Stop()
		opts = append(opts, watch.WithNudges(nudges), watch.WithWalletSink(listener.SetWallets))
	}

	if err := watch.New(cfg.Handles, deps, opts...).Run(ctx); err != nil {
		return err
	}

	logger.Info("shutdown_complete")
	return nil
}

func newDispatcher(cfg *config.Config, tracker *metrics.Tracker) *notify.Dispatcher {
	client := notify.NewTelegramClient(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramChatID, cfg.HTTPTimeout)
	return notify.NewDispatcher(client,
		notify.WithSendDelay(cfg.SendDelay),
		notify.WithMaxAttempts(cfg.SendMaxAttempts),
		notify.WithTracker(tracker),
		notify.WithLogger(slog.Default()),
	)
}

func pingCommand(flags *overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "ping [text]",
		Short: "Send one message to verify the bot token and chat id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, (*config.Config).ValidateMessaging)
			if err != nil {
				return err
			}

			text := defaultPingText
			if len(args) == 1 {
				text = args[0]
			}

			ack, err := newDispatcher(cfg, nil).Send(cmd.Context(), store.DeliveryMessage{Text: text})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sent", ack)
			return nil
		},
	}
}

func cursorsCommand(flags *overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "cursors",
		Short: "Print the stored cursor of every wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, nil)
			if err != nil {
				return err
			}

			cursors, err := store.OpenCursors(cfg.StateBackend, cfg.StatePath)
			if err != nil {
				return fmt.Errorf("open cursor store: %w", err)
			}
			defer cursors.Close()

			all := cursors.All()
			if len(all) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no cursors stored in", cfg.StatePath)
				return nil
			}
			return printCursors(cmd.OutOrStdout(), all)
		},
	}
}

// printCursors writes one "wallet<TAB>marker" line per cursor, sorted by wallet.
func printCursors(w io.Writer, all map[string]store.Marker) error {
	wallets := make([]string, 0, len(all))
	for k := range all {
		wallets = append(wallets, k)
	}
	sort.Strings(wallets)

	for _, wallet := range wallets {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", wallet, all[wallet]); err != nil {
			return err
		}
	}
	return nil
}
