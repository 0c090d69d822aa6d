package notification

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/raykavin/hedgerun/pkg/core"
	log "github.com/sirupsen/logrus"
)

const unknownProfile = "UNKNOWN_PROFILE"

// WebhookParams configures the notification API client
type WebhookParams struct {
	URL      string
	Token    string
	Username string
	Timeout  time.Duration
}

// Webhook posts alerts to the notification API
type Webhook struct {
	client   *resty.Client
	url      string
	username string
}

type webhookPayload struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Username string `json:"username"`
	Profile  string `json:"profile"`
	Model    string `json:"model"`
	Type     string `json:"type"`
}

// NewWebhook creates a notification API client
func NewWebhook(params WebhookParams) *Webhook {
	if params.Timeout <= 0 {
		params.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(params.Timeout).
		SetHeader("Content-Type", "application/json")
	if params.Token != "" {
		client.SetAuthToken(params.Token)
	}

	return &Webhook{
		client:   client,
		url:      strings.TrimSpace(params.URL),
		username: params.Username,
	}
}

// Notify posts the alert. Failures are logged and never returned.
func (w *Webhook) Notify(ctx context.Context, alert core.Alert) {
	profile := alert.Profile
	if profile == "" {
		profile = unknownProfile
	}

	payload := webhookPayload{
		Title:    alert.Model,
		Message:  alert.Message,
		Username: w.username,
		Profile:  profile,
		Model:    alert.Model,
		Type:     string(alert.Severity),
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(w.url)
	if err != nil {
		log.WithError(err).Error("notification/webhook: failed to post alert")
		return
	}

	if !resp.IsSuccess() {
		log.WithField("status", resp.StatusCode()).
			Warn("notification/webhook: API call failed: ", resp.String())
	}
}
