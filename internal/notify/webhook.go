package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type WebhookConfig struct {
	URL     string
	Secret  string // sent as X-QHLC-Token when set
	Timeout time.Duration
	Retries int
}

type Webhook struct {
	url string
	rc  *resty.Client
}

func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	rc := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if cfg.Secret != "" {
		rc.SetHeader("X-QHLC-Token", cfg.Secret)
	}
	return &Webhook{url: cfg.URL, rc: rc}
}

func (w *Webhook) PostResult(ctx context.Context, n Notice) error {
	resp, err := w.rc.R().
		SetContext(ctx).
		SetBody(n).
		Post(w.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("post result: %s", resp.Status())
	}
	return nil
}
