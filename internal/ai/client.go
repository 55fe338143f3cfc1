// Package ai calls a hosted text-generation model.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrUnavailable = errors.New("ai service unavailable")

// Fallback is the reply used when generation fails.
const Fallback = "🤖 My study brain is warming up right now. Please try `!ai` again in a minute!"

type Config struct {
	Endpoint  string
	Token     string
	Timeout   time.Duration
	Attempts  int
	MaxWarmup time.Duration
	MaxTokens int
}

func ConfigFromEnv() Config {
	cfg := Config{
		Endpoint:  os.Getenv("AI_ENDPOINT"),
		Token:     os.Getenv("AI_TOKEN"),
		Timeout:   20 * time.Second,
		Attempts:  2,
		MaxWarmup: 30 * time.Second,
		MaxTokens: 200,
	}
	if v := os.Getenv("AI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv("AI_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTokens = n
		}
	}
	return cfg
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.SugaredLogger
	// sleep waits out a model warm-up; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, logger *zap.SugaredLogger) *Client {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type request struct {
	Inputs     string     `json:"inputs"`
	Parameters parameters `json:"parameters"`
}

type parameters struct {
	MaxNewTokens   int  `json:"max_new_tokens"`
	ReturnFullText bool `json:"return_full_text"`
}

type generation struct {
	GeneratedText string `json:"generated_text"`
}

type loading struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// warmupError carries the delay the service announced before the model is
// ready.
type warmupError struct{ wait time.Duration }

func (e *warmupError) Error() string { return fmt.Sprintf("model loading, retry in %s", e.wait) }

// GenerateText returns the model's completion of prompt. It makes up to
// Attempts calls; after a 503 that announces a warm-up it waits (at most
// MaxWarmup) before the next one.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	if c.cfg.Endpoint == "" {
		return "", fmt.Errorf("%w: no endpoint configured", ErrUnavailable)
	}
	var lastErr error
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		text, err := c.call(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		c.logger.Warnw("ai request failed", "attempt", attempt, "err", err)
		if attempt == c.cfg.Attempts {
			break
		}
		var wu *warmupError
		if errors.As(err, &wu) {
			wait := min(wu.wait, c.cfg.MaxWarmup)
			if err := c.sleep(ctx, wait); err != nil {
				return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
			}
		}
	}
	return "", fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(request{
		Inputs:     prompt,
		Parameters: parameters{MaxNewTokens: c.cfg.MaxTokens},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		var l loading
		if json.Unmarshal(raw, &l) == nil && l.EstimatedTime > 0 {
			return "", &warmupError{wait: time.Duration(l.EstimatedTime * float64(time.Second))}
		}
		return "", fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var out []generation
	if err := json.Unmarshal(raw, &out); err != nil {
		var single generation
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		out = []generation{single}
	}
	if len(out) == 0 || strings.TrimSpace(out[0].GeneratedText) == "" {
		return "", errors.New("empty generation")
	}
	return strings.TrimSpace(strings.TrimPrefix(out[0].GeneratedText, prompt)), nil
}

// Answer is GenerateText with the fallback reply on any failure.
func (c *Client) Answer(ctx context.Context, prompt string) string {
	text, err := c.GenerateText(ctx, prompt)
	if err != nil {
		return Fallback
	}
	return text
}
