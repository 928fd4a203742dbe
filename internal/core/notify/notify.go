// Package notify tells the outside world that a job finished. Delivery is
// best effort; callers log failures and move on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/markdave123-py/Pagewise/internal/core"
)

// LogNotifier writes every terminal event to the log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.With(zap.String("component", "notify"))}
}

func (n *LogNotifier) Notify(_ context.Context, ev core.Event) error {
	n.logger.Info("job finished",
		zap.String("job_id", ev.JobID),
		zap.String("status", string(ev.Status)),
		zap.String("document_id", ev.DocumentID),
		zap.Int("chunk_count", ev.ChunkCount),
		zap.String("filename", ev.FileName),
		zap.String("user_id", ev.OwnerID),
		zap.String("error", ev.Error),
	)
	return nil
}

// WebhookNotifier POSTs the event as JSON.
type WebhookNotifier struct {
	url    string
	client *resty.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: resty.New().SetTimeout(timeout).SetHeader("Content-Type", "application/json"),
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, ev core.Event) error {
	resp, err := n.client.R().SetContext(ctx).SetBody(ev).Post(n.url)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook post: status %d", resp.StatusCode())
	}
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []core.Notifier

func (m Multi) Notify(ctx context.Context, ev core.Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ core.Notifier = (*LogNotifier)(nil)
	_ core.Notifier = (*WebhookNotifier)(nil)
	_ core.Notifier = Multi(nil)
)
