// Package transport provides delivery adapters for the reminder service.
// The service itself only knows the Deliverer capability; this package
// supplies a Telegram Bot API implementation and a log-only fallback for
// development.
package transport

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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Telegram delivers reminder text over the Bot API and resolves @handles to
// chat ids. Safe for concurrent use.
type Telegram struct {
	token string
	hc    *http.Client
	lg    zerolog.Logger

	// baseURL is a seam for tests; defaults to the public Bot API.
	baseURL string
}

// NewTelegram constructs a Telegram deliverer for the given bot token.
func NewTelegram(token string) *Telegram {
	return &Telegram{
		token:   token,
		hc:      &http.Client{Timeout: 15 * time.Second},
		lg:      log.With().Str("component", "telegram").Logger(),
		baseURL: "https://api.telegram.org",
	}
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Deliver sends text to the recipient chat. The recipient id is the
// numeric chat id as a string.
func (t *Telegram) Deliver(ctx context.Context, recipientID, text string) error {
	vals := url.Values{}
	vals.Set("chat_id", recipientID)
	vals.Set("text", "⏰ Reminder:\n"+text)

	_, err := t.call(ctx, "sendMessage", vals)
	return err
}

// ResolveRecipient maps "@handle" to its chat id via getChat.
func (t *Telegram) ResolveRecipient(ctx context.Context, handle string) (string, error) {
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}
	vals := url.Values{}
	vals.Set("chat_id", handle)

	raw, err := t.call(ctx, "getChat", vals)
	if err != nil {
		return "", err
	}
	var chat struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &chat); err != nil {
		return "", fmt.Errorf("decode getChat result: %w", err)
	}
	return strconv.FormatInt(chat.ID, 10), nil
}

func (t *Telegram) call(ctx context.Context, method string, vals url.Values) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(vals.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var ar apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&ar); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", method, err)
	}
	if !ar.OK {
		return nil, fmt.Errorf("%s: %s", method, ar.Description)
	}
	return ar.Result, nil
}

// LogDeliverer writes deliveries to the log instead of a transport. Used
// when no bot token is configured, so the scheduling core stays exercisable
// in development.
type LogDeliverer struct{}

// Deliver logs the would-be delivery and succeeds.
func (LogDeliverer) Deliver(_ context.Context, recipientID, text string) error {
	log.Info().Str("recipient", recipientID).Str("text", text).Msg("delivery (log only)")
	return nil
}

// ResolveRecipient strips the "@" and echoes the handle; there is no
// directory to consult without a transport.
func (LogDeliverer) ResolveRecipient(_ context.Context, handle string) (string, error) {
	return strings.TrimPrefix(handle, "@"), nil
}
