package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/polyinsider/tradewatch/internal/store"
)

// Ack is a successful delivery.
type Ack struct {
	MessageID int64
}

func (a *Ack) String() string {
	return "message_id=" + strconv.FormatInt(a.MessageID, 10)
}

// DeliveryError is a failure reported by the messaging endpoint.
type DeliveryError struct {
	Code        int
	Description string
	// RetryAfter is the provider's cooldown in seconds; only meaningful when
	// the error is a rate limit.
	RetryAfter int
}

func (e *DeliveryError) Error() string {
	if e.IsRateLimited() {
		return fmt.Sprintf("telegram error %d: %s (retry after %ds)", e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram error %d: %s", e.Code, e.Description)
}

// IsRateLimited reports whether the endpoint asked the caller to back off.
func (e *DeliveryError) IsRateLimited() bool {
	return e.Code == http.StatusTooManyRequests
}

// Endpoint delivers one message per call.
type Endpoint interface {
	SendMessage(ctx context.Context, msg store.DeliveryMessage) (*Ack, error)
}

// TelegramClient posts to the Bot API sendMessage method.
type TelegramClient struct {
	baseURL string
	token   string
	chatID  string
	http    *http.Client
}

// NewTelegramClient creates a client for one bot and one chat.
func NewTelegramClient(baseURL, token, chatID string, timeout time.Duration) *TelegramClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &TelegramClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		chatID:  chatID,
		http:    &http.Client{Timeout: timeout},
	}
}

// telegramResponse covers both the success and the error envelope.
type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
	Parameters struct {
		RetryAfter *int `json:"retry_after"`
	} `json:"parameters"`
}

// SendMessage delivers msg with link previews disabled.
func (c *TelegramClient) SendMessage(ctx context.Context, msg store.DeliveryMessage) (*Ack, error) {
	form := url.Values{}
	form.Set("chat_id", c.chatID)
	form.Set("text", msg.Text)
	form.Set("disable_web_page_preview", "true")
	if msg.RichText {
		form.Set("parse_mode", "HTML")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL embeds the token; never surface it.
		return nil, fmt.Errorf("telegram request failed: %w", redact(err, c.token))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var tr telegramResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &DeliveryError{Code: resp.StatusCode, Description: truncate(string(body), 200)}
	}

	if tr.OK {
		return &Ack{MessageID: tr.Result.MessageID}, nil
	}

	de := &DeliveryError{Code: tr.ErrorCode, Description: tr.Description}
	if de.Code == 0 {
		de.Code = resp.StatusCode
	}
	if de.IsRateLimited() {
		de.RetryAfter = 1
		if tr.Parameters.RetryAfter != nil && *tr.Parameters.RetryAfter >= 0 {
			de.RetryAfter = *tr.Parameters.RetryAfter
		}
	}
	return nil, de
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	if secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "****"), err: err}
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// RetryAfterDuration converts the provider hint to the wait used before the
// next attempt: one second more than asked.
func RetryAfterDuration(seconds int) time.Duration {
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds+1) * time.Second
}
