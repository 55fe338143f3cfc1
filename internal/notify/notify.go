// Package notify delivers out-of-band messages (reminders, inactivity
// warnings) to the chat transport.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

type Kind string

const (
	KindReminder Kind = "reminder"
	KindWarning  Kind = "warning"
	KindPenalty  Kind = "penalty"
)

type Notification struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Kind     Kind   `json:"kind"`
	Message  string `json:"message"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. It is the fallback when no
// webhook is configured.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.logger.Infow("notification", "user", n.UserID, "username", n.Username, "kind", n.Kind, "message", n.Message)
	return nil
}

// WebhookNotifier posts notifications as JSON to a chat bridge.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.SugaredLogger
}

type Config struct {
	WebhookURL string
	Timeout    time.Duration
}

func ConfigFromEnv() Config {
	cfg := Config{
		WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		Timeout:    10 * time.Second,
	}
	if v := os.Getenv("NOTIFY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	return cfg
}

// New returns a webhook notifier when a URL is configured and a log
// notifier otherwise.
func New(cfg Config, logger *zap.SugaredLogger) Notifier {
	if cfg.WebhookURL == "" {
		return NewLogNotifier(logger)
	}
	return NewWebhookNotifier(cfg.WebhookURL, &http.Client{Timeout: cfg.Timeout}, logger)
}

func NewWebhookNotifier(url string, client *http.Client, logger *zap.SugaredLogger) *WebhookNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookNotifier{url: url, client: client, logger: logger}
}

func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	w.logger.Debugw("notification delivered", "user", n.UserID, "kind", n.Kind)
	return nil
}
