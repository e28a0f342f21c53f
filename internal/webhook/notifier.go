// Package webhook delivers signed run notifications to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mattjoyce/hype/internal/config"
)

// EventRunFinished is the only event delivered today.
const EventRunFinished = "run.finished"

// DefaultTimeout bounds one delivery attempt.
const DefaultTimeout = 10 * time.Second

// maxAttempts counts the first try.
const maxAttempts = 3

// RunFinished is the JSON body posted when a run ends.
type RunFinished struct {
	Event   string    `json:"event"`
	RunID   string    `json:"run_id,omitempty"`
	Status  string    `json:"status"`
	Frames  uint64    `json:"frames"`
	Scenes  uint64    `json:"scenes"`
	Skipped uint64    `json:"skipped"`
	Failed  uint64    `json:"failed"`
	Elapsed string    `json:"elapsed"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier posts events to every configured endpoint.
type Notifier struct {
	endpoints []config.WebhookConfig
	client    *http.Client
	logger    *slog.Logger
	backoff   time.Duration
}

// New creates a notifier. A nil client means http.DefaultClient.
func New(endpoints []config.WebhookConfig, client *http.Client, logger *slog.Logger) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{endpoints: endpoints, client: client, logger: logger, backoff: 500 * time.Millisecond}
}

// NotifyRunFinished delivers ev to all endpoints. Each endpoint gets up to
// maxAttempts tries; the returned error joins the endpoints that never
// accepted it.
func (n *Notifier) NotifyRunFinished(ctx context.Context, ev RunFinished) error {
	if ev.Event == "" {
		ev.Event = EventRunFinished
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var errs []error
	for _, ep := range n.endpoints {
		if err := n.deliver(ctx, ep, body); err != nil {
			n.logger.Warn("webhook delivery failed", "url", ep.URL, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ep.URL, err))
			continue
		}
		n.logger.Debug("webhook delivered", "url", ep.URL, "event", ev.Event)
	}
	return errors.Join(errs...)
}

func (n *Notifier) deliver(ctx context.Context, ep config.WebhookConfig, body []byte) error {
	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retry, err := n.post(ctx, ep, body)
		if err == nil {
			return nil
		}
		last = err
		if !retry || attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(n.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return last
}

// post makes one attempt and reports whether a failure is worth retrying.
func (n *Notifier) post(ctx context.Context, ep config.WebhookConfig, body []byte) (bool, error) {
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "hype-webhook")
	if ep.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, ep.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return true, fmt.Errorf("endpoint returned %s", resp.Status)
	default:
		return false, fmt.Errorf("endpoint returned %s", resp.Status)
	}
}
