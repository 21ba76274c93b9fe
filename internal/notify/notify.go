// Package notify fires best-effort outbound notifications on trade
// execution and risk veto (spec.md §4.6 step 9). A failed delivery never
// blocks or fails the run that triggered it.
package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Event is one notification payload. ID lets a downstream webhook
// consumer dedupe redelivered notifications; the caller sets it to a
// fresh uuid before calling Notify.
type Event struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"` // "trade" or "veto"
	StrategyID uint   `json:"strategy_id"`
	Symbol     string `json:"symbol"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail"`
}

// Sink delivers an Event. Implementations must not block the caller
// indefinitely; WebhookSink bounds delivery with its own timeout.
type Sink interface {
	Notify(ctx context.Context, event Event)
}

// WebhookSink posts events as JSON to a configured URL over a shared
// resty client, logging (not propagating) delivery failures.
type WebhookSink struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// NewWebhookSink builds a WebhookSink. An empty url makes Notify a no-op.
func NewWebhookSink(url string, timeout time.Duration, logger *zap.Logger) *WebhookSink {
	return &WebhookSink{
		client: resty.New().SetTimeout(timeout),
		url:    url,
		logger: logger,
	}
}

// Notify posts event to the configured webhook, best-effort.
func (w *WebhookSink) Notify(ctx context.Context, event Event) {
	if w.url == "" {
		return
	}
	_, err := w.client.R().
		SetContext(ctx).
		SetBody(event).
		Post(w.url)
	if err != nil && w.logger != nil {
		w.logger.Warn("notification delivery failed",
			zap.String("kind", event.Kind), zap.String("symbol", event.Symbol), zap.Error(err))
	}
}

// NopSink discards every event; used when no webhook is configured.
type NopSink struct{}

func (NopSink) Notify(ctx context.Context, event Event) {}
