package notifier

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

	"github.com/LJTian/NewsRelay/internal/apperr"
	"github.com/LJTian/NewsRelay/internal/collector"
	"golang.org/x/time/rate"
)

const (
	telegramMaxResponseBytes = 64 * 1024
	telegramClientTimeout    = 15 * time.Second
)

// Notifier 发送单条文章通知；调用方保证逐条串行调用
type Notifier interface {
	Notify(ctx context.Context, a collector.Article) (Receipt, error)
}

// Receipt 发送成功后的回执
type Receipt struct {
	MessageID int64
	SentAt    time.Time
}

type TelegramConfig struct {
	APIBase  string // 例如 https://api.telegram.org
	BotToken string
	ChatID   string
	// Interval 两次发送之间的最小间隔，0 表示不限速
	Interval  time.Duration
	Formatter Formatter
}

// TelegramNotifier 通过 Bot API 的 sendMessage 推送 HTML 消息
type TelegramNotifier struct {
	cfg     TelegramConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewTelegramNotifier(cfg TelegramConfig) *TelegramNotifier {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &TelegramNotifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: telegramClientTimeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (n *TelegramNotifier) Notify(ctx context.Context, a collector.Article) (Receipt, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return Receipt{}, apperr.Network("telegram sendMessage", 0, err)
	}

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:                n.cfg.ChatID,
		Text:                  n.cfg.Formatter.Format(a),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("telegram: marshal message: %w", err)
	}

	url := n.cfg.APIBase + "/bot" + n.cfg.BotToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		// 错误里带有 URL，其中包含 bot token，不能原样外传
		return Receipt{}, apperr.Network("telegram sendMessage", 0, errors.New(redact(err.Error(), n.cfg.BotToken)))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, telegramMaxResponseBytes))
	var out sendMessageResponse
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		desc := out.Description
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return Receipt{}, apperr.Delivery("telegram sendMessage", resp.StatusCode, errors.New(desc))
	}

	return Receipt{MessageID: out.Result.MessageID, SentAt: time.Now()}, nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "<redacted>")
}
