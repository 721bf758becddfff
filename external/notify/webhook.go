package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/foxseedlab/gatekeeper/internal/notify"
)

const webhookTimeout = 10 * time.Second

type webhookPayload struct {
	Event        string              `json:"event"`
	Notification notify.Notification `json:"notification"`
	SentAt       time.Time           `json:"sent_at"`
}

// WebhookNotifier posts join request notifications to an operator-configured URL.
type WebhookNotifier struct {
	webhookURL string
	client     *http.Client
}

func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	return &WebhookNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: webhookTimeout},
	}
}

// Permission is granted exactly when a webhook URL is configured.
func (w *WebhookNotifier) Permission(context.Context) notify.Permission {
	if w.webhookURL == "" {
		return notify.PermissionUnavailable
	}
	return notify.PermissionGranted
}

func (w *WebhookNotifier) RequestPermission(ctx context.Context) (notify.Permission, error) {
	return w.Permission(ctx), nil
}

func (w *WebhookNotifier) Notify(ctx context.Context, n notify.Notification) error {
	if w.webhookURL == "" {
		return nil
	}

	b, err := json.Marshal(webhookPayload{Event: "join-request", Notification: n, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
