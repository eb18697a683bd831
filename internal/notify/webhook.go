package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// WebhookNotifier posts to Discord-compatible webhook URLs. The destination
// is the URL.
type WebhookNotifier struct {
	client  *http.Client
	limiter *rate.Limiter
}

type webhookPayload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

func NewWebhookNotifier(timeout, rateLimit time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		client:  &http.Client{Timeout: timeout},
		limiter: newLimiter(rateLimit),
	}
}

func (n *WebhookNotifier) Name() string {
	return "webhook"
}

func (n *WebhookNotifier) Send(ctx context.Context, url, payload, _ string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(webhookPayload{Content: truncate(payload, MaxMessageRunes), Username: "antitrigger"})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
