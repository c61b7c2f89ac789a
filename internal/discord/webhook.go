package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alan/issue-relay/internal/retry"
)

// Webhook posts messages to a Discord webhook URL
type Webhook struct {
	url        string
	httpClient *http.Client
	retry      retry.Policy
}

// NewWebhook creates a webhook client for url
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retry.DefaultPolicy,
	}
}

// WithRetryPolicy overrides the backoff used for rate-limited and failed posts
func (w *Webhook) WithRetryPolicy(p retry.Policy) *Webhook {
	w.retry = p
	return w
}

// StatusError reports a non-2xx webhook response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Send posts msg, retrying rate limits and server errors with backoff
func (w *Webhook) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook message: %w", err)
	}

	return retry.Do(ctx, w.retry, "post webhook", func() error {
		return w.post(ctx, payload)
	})
}

func (w *Webhook) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("Discord: Posting webhook message", "bytes", len(payload))
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to post webhook message: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	if resp.StatusCode == http.StatusTooManyRequests {
		return retry.After(retryAfter(resp.Header, body), statusErr)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return statusErr
	}
	return retry.Permanent(statusErr)
}

// retryAfter reads Discord's rate limit hint, in seconds, from the
// Retry-After header or the retry_after field of the JSON body.
func retryAfter(header http.Header, body []byte) time.Duration {
	if secs, err := strconv.ParseFloat(strings.TrimSpace(header.Get("Retry-After")), 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}

	var payload struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.RetryAfter > 0 {
		return time.Duration(payload.RetryAfter * float64(time.Second))
	}
	return 0
}
