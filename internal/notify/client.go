// Package notify delivers outbound webhook notifications, such as the
// reminder fired for rejected-with-reminder call outcomes.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"loancrm_backend/internal/reconcile/engine"
	"loancrm_backend/platform/config"
	"loancrm_backend/platform/logger"
)

// Client posts JSON payloads to the configured webhook. Delivery is
// fire-and-forget from the engine's point of view: failures are logged by
// the caller, never propagated into the batch result.
type Client struct {
	httpClient *http.Client
	webhookURL string
	apiKey     string
	log        *logger.Logger
}

func New(cfg config.NotifyConfig, log *logger.Logger) engine.NotificationSink {
	if cfg.GetNotifyURL() == "" {
		log.Info("notification webhook not configured, notifications disabled")
		return Noop{}
	}
	timeout := cfg.GetNotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		webhookURL: cfg.GetNotifyURL(),
		apiKey:     cfg.GetNotifyAPIKey(),
		log:        log,
	}
}

func (c *Client) Send(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	c.log.Debug("notification delivered", "status", resp.StatusCode)
	return nil
}

// Noop drops all notifications. Used when no webhook is configured.
type Noop struct{}

func (Noop) Send(_ context.Context, _ map[string]any) error { return nil }
