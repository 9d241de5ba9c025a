package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hl-funding-arb/internal/config"

	"go.uber.org/zap"
)

const (
	telegramBaseURL = "https://api.telegram.org"
	parseMode       = "Markdown"
	// sendMessage rejects longer texts.
	maxMessageRunes = 4096
)

type Telegram struct {
	enabled bool
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) *Telegram {
	return newTelegram(cfg, log, telegramBaseURL, &http.Client{Timeout: 10 * time.Second})
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, baseURL string, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Telegram{
		enabled: cfg.Enabled,
		token:   strings.TrimSpace(cfg.Token),
		chatID:  strings.TrimSpace(cfg.ChatID),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}
}

// Notify delivers message best-effort. Delivery failures are logged and
// never reach the caller.
func (t *Telegram) Notify(ctx context.Context, message string) {
	if err := t.Send(ctx, message); err != nil {
		t.log.Warn("telegram notify failed", zap.Error(err))
	}
}

// Send posts message as Markdown. Text Telegram cannot parse as Markdown,
// such as exchange errors with stray underscores, is resent as plain text.
func (t *Telegram) Send(ctx context.Context, message string) error {
	if !t.enabled {
		return nil
	}
	if t.token == "" || t.chatID == "" {
		return errors.New("telegram token and chat_id are required")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("telegram message is empty")
	}
	text := truncate(message, maxMessageRunes)
	err := t.sendMessage(ctx, text, parseMode)
	if errors.Is(err, errUnparsableText) {
		t.log.Debug("telegram rejected markdown, resending as plain text", zap.Error(err))
		return t.sendMessage(ctx, text, "")
	}
	return err
}

var errUnparsableText = errors.New("telegram cannot parse message entities")

func (t *Telegram) sendMessage(ctx context.Context, text, mode string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: mode,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	var result sendMessageResponse
	decodeErr := json.Unmarshal(raw, &result)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && (decodeErr != nil || result.OK) {
		return nil
	}
	desc := strings.TrimSpace(result.Description)
	if desc == "" {
		desc = strings.TrimSpace(string(raw))
	}
	if desc == "" {
		desc = "unknown telegram error"
	}
	if strings.Contains(desc, "can't parse entities") {
		return fmt.Errorf("%w: %s", errUnparsableText, desc)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram send failed: http %d: %s", resp.StatusCode, desc)
	}
	return fmt.Errorf("telegram send failed: %s", desc)
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
