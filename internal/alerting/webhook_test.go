package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/karthik14478/clawwatch/internal/database/models"
)

func TestWebhookSender_PostsAlertPayload(t *testing.T) {
	var received webhookPayload
	var contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("Failed to decode webhook body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewWebhookSender(5*time.Second, newTestLogger())
	alert := &models.Alert{
		ID:                   "a-1",
		RuleID:               7,
		Severity:             models.SeverityCritical,
		Title:                "Budget exceeded",
		Message:              "Spend of $12.50 over the last 24h",
		NotificationAttempts: 1,
	}
	channel := &models.NotificationChannel{ID: 1, Name: "ops", Endpoint: server.URL, Type: models.ChannelTypeWebhook}

	if err := sender.Send(context.Background(), channel, alert); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("Expected JSON content type, got %q", contentType)
	}
	if received.AlertID != "a-1" || received.RuleID != 7 {
		t.Errorf("Payload identifiers wrong: %+v", received)
	}
	if received.Severity != models.SeverityCritical || received.Title != "Budget exceeded" {
		t.Errorf("Payload content wrong: %+v", received)
	}
	if received.Attempt != 2 {
		t.Errorf("Expected attempt 2, got %d", received.Attempt)
	}
}

func TestWebhookSender_NonSuccessStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender := NewWebhookSender(5*time.Second, newTestLogger())
	channel := &models.NotificationChannel{ID: 1, Name: "ops", Endpoint: server.URL}

	if err := sender.Send(context.Background(), channel, &models.Alert{ID: "a-1"}); err == nil {
		t.Fatal("Expected error on 502 response")
	}
}

func TestWebhookSender_ContextTimeout(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	sender := NewWebhookSender(time.Minute, newTestLogger())
	channel := &models.NotificationChannel{ID: 1, Name: "ops", Endpoint: server.URL}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := sender.Send(ctx, channel, &models.Alert{ID: "a-1"}); err == nil {
		t.Fatal("Expected error when context deadline passes")
	}
}
