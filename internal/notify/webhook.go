// Package notify delivers completion notifications. Delivery is
// best-effort: callers log failures and never retry them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/scraper"
)

// WebhookConfig points the notifier at the downstream endpoint.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	// Headers are added to every request, e.g. an auth token.
	Headers map[string]string
}

// Webhook POSTs notifications as JSON.
type Webhook struct {
	client *http.Client
	cfg    WebhookConfig
	logger *zap.Logger
}

// NewWebhook builds a Webhook. A nil client gets one bounded by cfg.Timeout.
func NewWebhook(cfg WebhookConfig, client *http.Client, logger *zap.Logger) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook.url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhook{client: client, cfg: cfg, logger: logger.Named("webhook")}, nil
}

// Notify sends n once. Any non-2xx status is an error.
func (w *Webhook) Notify(ctx context.Context, n scraper.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		if cerr := resp.Body.Close(); cerr != nil {
			w.logger.Debug("close webhook response", zap.Error(cerr))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	w.logger.Debug("webhook delivered", zap.String("url", n.URL), zap.Int("status", resp.StatusCode))
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []scraper.Notifier

// Notify implements scraper.Notifier.
func (m Multi) Notify(ctx context.Context, n scraper.Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
