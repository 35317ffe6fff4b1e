package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

const (
	// LiveWSURL is the Polymarket real-time data stream
	LiveWSURL = "wss://ws-live-data.polymarket.com"

	InitialBackoff = 1 * time.Second
	MaxBackoff     = 60 * time.Second
	BackoffFactor  = 2.0
	JitterPercent  = 0.2

	HeartbeatTimeout = 60 * time.Second
	PongTimeout      = 10 * time.Second

	WriteTimeout = 10 * time.Second
)

// subscribeMessage asks the stream for every public trade.
type subscribeMessage struct {
	Action        string         `json:"action"`
	Subscriptions []subscription `json:"subscriptions"`
}

type subscription struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
}

func newActivitySubscription() subscribeMessage {
	return subscribeMessage{
		Action:        "subscribe",
		Subscriptions: []subscription{{Topic: "activity", Type: "trades"}},
	}
}

// activityMessage is the part of a stream message the listener inspects.
type activityMessage struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Payload struct {
		ProxyWallet string `json:"proxyWallet"`
	} `json:"payload"`
}

// Listener watches the public activity stream and nudges the poll loop when
// a tracked wallet trades. It never produces trades itself.
type Listener struct {
	url     string
	nudges  chan<- struct{}
	logger  *slog.Logger
	backoff *backoff.ExponentialBackOff

	conn   *websocket.Conn
	connMu sync.Mutex

	lastMsg   time.Time
	lastMsgMu sync.RWMutex

	wallets   map[string]struct{}
	walletsMu sync.RWMutex

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewListener creates a listener that posts to nudges without blocking.
func NewListener(url string, nudges chan<- struct{}, logger *slog.Logger) *Listener {
	if url == "" {
		url = LiveWSURL
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = InitialBackoff
	b.MaxInterval = MaxBackoff
	b.Multiplier = BackoffFactor
	b.RandomizationFactor = JitterPercent

	return &Listener{
		url:      url,
		nudges:   nudges,
		logger:   logger,
		backoff:  b,
		wallets:  map[string]struct{}{},
		stopChan: make(chan struct{}),
	}
}

// SetWallets replaces the set of wallets that trigger a nudge.
func (l *Listener) SetWallets(wallets []string) {
	set := make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		if w != "" {
			set[strings.ToLower(w)] = struct{}{}
		}
	}

	l.walletsMu.Lock()
	defer l.walletsMu.Unlock()
	l.wallets = set
}

func (l *Listener) tracked(wallet string) bool {
	l.walletsMu.RLock()
	defer l.walletsMu.RUnlock()
	_, ok := l.wallets[strings.ToLower(wallet)]
	return ok
}

// Start begins the listener with automatic reconnection.
func (l *Listener) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.runLoop(ctx)

	l.wg.Add(1)
	go l.heartbeatMonitor(ctx)
}

// Stop shuts the listener down and waits for its goroutines.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.closeConnection()
	l.wg.Wait()
}

func (l *Listener) runLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("ws_loop_stopping", "reason", "context cancelled")
			return
		case <-l.stopChan:
			l.logger.Info("ws_loop_stopping", "reason", "stop signal")
			return
		default:
		}

		if err := l.connect(ctx); err != nil {
			l.logger.Error("ws_connect_failed", "error", err)
			l.closeConnection()
			l.waitBackoff(ctx)
			continue
		}

		if err := l.readLoop(ctx); err != nil {
			l.logger.Warn("ws_read_error", "error", err)
		}

		l.closeConnection()

		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		default:
			l.waitBackoff(ctx)
		}
	}
}

// connect dials the stream and subscribes to trade activity.
func (l *Listener) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", "https://polymarket.com")

	conn, resp, err := dialer.DialContext(ctx, l.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	l.backoff.Reset()
	l.logger.Info("ws_connected", "endpoint", l.url)

	if err := l.subscribe(); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	l.updateLastMsg()
	return nil
}

func (l *Listener) subscribe() error {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	l.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := l.conn.WriteJSON(newActivitySubscription()); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}

	l.logger.Info("ws_subscribed", "topic", "activity")
	return nil
}

func (l *Listener) readLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopChan:
			return nil
		default:
		}

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(HeartbeatTimeout + PongTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		l.updateLastMsg()
		l.handleMessage(message)
	}
}

// handleMessage nudges the poll loop when the message is a trade by a
// tracked wallet. Anything else is ignored.
func (l *Listener) handleMessage(data []byte) bool {
	var msg activityMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		l.logger.Debug("ws_parse_error", "error", err, "raw", truncate(string(data), 120))
		return false
	}

	wallet := msg.Payload.ProxyWallet
	if wallet == "" || !l.tracked(wallet) {
		return false
	}

	select {
	case l.nudges <- struct{}{}:
		l.logger.Debug("live_nudge", "wallet", wallet)
	default:
		// a nudge is already pending
	}
	return true
}

func (l *Listener) heartbeatMonitor(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.checkHeartbeat()
		}
	}
}

// checkHeartbeat pings a quiet connection and drops it if the ping fails.
func (l *Listener) checkHeartbeat() {
	l.lastMsgMu.RLock()
	lastMsg := l.lastMsg
	l.lastMsgMu.RUnlock()

	if lastMsg.IsZero() {
		return
	}

	elapsed := time.Since(lastMsg)
	if elapsed <= HeartbeatTimeout {
		return
	}
	l.logger.Warn("ws_heartbeat_timeout", "elapsed", elapsed)

	l.connMu.Lock()
	conn := l.conn
	l.connMu.Unlock()

	if conn != nil {
		conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			l.logger.Warn("ws_ping_failed", "error", err)
			l.closeConnection()
		}
	}
}

func (l *Listener) updateLastMsg() {
	l.lastMsgMu.Lock()
	l.lastMsg = time.Now()
	l.lastMsgMu.Unlock()
}

func (l *Listener) closeConnection() {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
		l.logger.Info("ws_disconnected")
	}
}

func (l *Listener) waitBackoff(ctx context.Context) {
	wait := l.backoff.NextBackOff()
	l.logger.Debug("ws_waiting_backoff", "duration", wait)

	select {
	case <-ctx.Done():
	case <-l.stopChan:
	case <-time.After(wait):
	}
}
