package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/karthik14478/clawwatch/internal/database/models"

	"github.com/pterm/pterm"
)

// webhookPayload is the JSON body posted to a channel endpoint.
type webhookPayload struct {
	AlertID   string    `json:"alert_id"`
	RuleID    uint      `json:"rule_id"`
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Attempt   int       `json:"attempt"`
}

// WebhookSender delivers alerts to webhook channels over HTTP POST.
type WebhookSender struct {
	client *http.Client
	logger *pterm.Logger
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(timeout time.Duration, logger *pterm.Logger) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send posts the alert to the channel endpoint. Any transport error or
// non-2xx response is a delivery failure; the caller owns retry.
func (s *WebhookSender) Send(ctx context.Context, channel *models.NotificationChannel, alert *models.Alert) error {
	body, err := json.Marshal(webhookPayload{
		AlertID:   alert.ID,
		RuleID:    alert.RuleID,
		Severity:  alert.Severity,
		Title:     alert.Title,
		Message:   alert.Message,
		CreatedAt: alert.CreatedAt,
		Attempt:   alert.NotificationAttempts + 1,
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, channel.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "clawwatch")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	s.logger.Debug("Webhook delivered",
		s.logger.Args("channel", channel.Name, "alert_id", alert.ID, "status", resp.StatusCode))
	return nil
}
