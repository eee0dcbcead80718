// Package telegram delivers operator notifications through the Telegram Bot
// API. Delivery is best-effort: failures are logged and never propagate to
// the execution path.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/archon-research/liquidator/internal/pkg/retry"
	"github.com/archon-research/liquidator/internal/ports/outbound"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	defaultTimeout = 3 * time.Second

	// Bot API allows roughly one message per second per chat.
	messagesPerSecond = 1
	messageBurst      = 3

	reportInterval = time.Hour
)

// Config configures a Notifier.
type Config struct {
	BotToken string
	ChatID   string
	BaseURL  string        // default https://api.telegram.org
	Timeout  time.Duration // per-request, default 3s
	Logger   *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Notifier posts messages to one chat and keeps hourly liquidation counters.
type Notifier struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter

	attempted      atomic.Int64
	completed      atomic.Int64
	profitMicroUSD atomic.Int64

	mu         sync.Mutex
	lastReport time.Time
}

var _ outbound.Notifier = (*Notifier)(nil)

// New creates a Notifier. Both BotToken and ChatID must be set; use
// outbound.NopNotifier when Telegram is not configured.
func New(cfg Config) (*Notifier, error) {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram: bot token and chat id are required")
	}
	cfg.applyDefaults()
	return &Notifier{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(messagesPerSecond, messageBurst),
		lastReport: time.Now(),
	}, nil
}

// Notify sends one message, waiting for the rate limiter and retrying
// transient failures. Errors are logged, not returned.
func (n *Notifier) Notify(ctx context.Context, text string) {
	if err := n.limiter.Wait(ctx); err != nil {
		return
	}

	cfg := retry.Config{MaxRetries: 2, InitialBackoff: 200 * time.Millisecond, BackoffFactor: 2, MaxBackoff: time.Second}
	err := retry.DoVoid(ctx, cfg,
		func(error) bool { return true },
		nil,
		func() error { return n.send(ctx, text) })
	if err != nil {
		n.config.Logger.Warn("telegram delivery failed", "err", err)
	}
}

func (n *Notifier) send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": n.config.ChatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.config.BaseURL, n.config.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// AccumulateAttempt adds one liquidation attempt to the hourly counters.
func (n *Notifier) AccumulateAttempt(completed bool, profitUSDC float64) {
	n.attempted.Add(1)
	if completed {
		n.completed.Add(1)
	}
	n.profitMicroUSD.Add(int64(profitUSDC * 1e6))
}

// MaybeSendHourlyReport sends a counter summary when an hour has passed
// since the previous report. Call it from the block loop; it returns
// immediately when no report is due.
func (n *Notifier) MaybeSendHourlyReport(ctx context.Context) {
	n.mu.Lock()
	if time.Since(n.lastReport) < reportInterval {
		n.mu.Unlock()
		return
	}
	n.lastReport = time.Now()
	n.mu.Unlock()

	profit := float64(n.profitMicroUSD.Load()) / 1e6
	n.Notify(ctx, fmt.Sprintf("Hourly report: attempted=%d, completed=%d, profit USDC=%.2f",
		n.attempted.Load(), n.completed.Load(), profit))
}
