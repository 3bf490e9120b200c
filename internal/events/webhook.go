package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookPublisher POSTs envelopes to a partner endpoint (e.g. a clinic EHR bridge).
type WebhookPublisher struct {
	client *resty.Client
	url    string
}

func NewWebhookPublisher(url string, timeout time.Duration) *WebhookPublisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	return &WebhookPublisher{client: client, url: url}
}

func (p *WebhookPublisher) Name() string { return "webhook" }

func (p *WebhookPublisher) Publish(ctx context.Context, env Envelope) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("X-Event-Type", env.EventType).
		SetHeader("X-Event-ID", env.EventID.String()).
		SetBody(env).
		Post(p.url)
	if err != nil {
		return fmt.Errorf("events: webhook post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("events: webhook status %d", resp.StatusCode())
	}
	return nil
}
