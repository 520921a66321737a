package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/karthik14478/clawwatch/internal/database/models"
)

type failedAttempt struct {
	id          string
	attempts    int
	lastError   string
	nextAttempt time.Time
}

type fakeAlertQueue struct {
	pending   []*models.Alert
	delivered []string
	failed    []failedAttempt
}

func (q *fakeAlertQueue) ListPending(limit int, now time.Time) ([]*models.Alert, error) {
	if len(q.pending) > limit {
		return q.pending[:limit], nil
	}
	return q.pending, nil
}

func (q *fakeAlertQueue) MarkDelivered(id string, now time.Time) error {
	q.delivered = append(q.delivered, id)
	return nil
}

func (q *fakeAlertQueue) MarkAttemptFailed(id string, attempts int, lastError string, nextAttempt time.Time) error {
	q.failed = append(q.failed, failedAttempt{id, attempts, lastError, nextAttempt})
	return nil
}

type fakeChannelSource struct {
	channels []*models.NotificationChannel
}

func (s *fakeChannelSource) FindActive() ([]*models.NotificationChannel, error) {
	return s.channels, nil
}

type sendRecord struct {
	channelID uint
	alertID   string
}

type fakeSender struct {
	sent    []sendRecord
	failFor map[uint]error
}

func (s *fakeSender) Send(ctx context.Context, channel *models.NotificationChannel, alert *models.Alert) error {
	if err, ok := s.failFor[channel.ID]; ok {
		return err
	}
	s.sent = append(s.sent, sendRecord{channel.ID, alert.ID})
	return nil
}

func newTestDispatcher(queue *fakeAlertQueue, channels *fakeChannelSource, sender *fakeSender) *Dispatcher {
	return NewDispatcher(queue, channels, sender, newTestLogger(),
		time.Second, 50, time.Second, time.Minute, 30*time.Minute)
}

func webhookChannel(id uint, severities []string) *models.NotificationChannel {
	return &models.NotificationChannel{
		ID:         id,
		Type:       models.ChannelTypeWebhook,
		Name:       "chan",
		IsActive:   true,
		Endpoint:   "http://localhost/hook",
		Severities: models.EncodeSeverities(severities),
	}
}

func TestBackoffDelay(t *testing.T) {
	base := time.Minute
	ceiling := 30 * time.Minute

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{5, 16 * time.Minute},
		{6, 30 * time.Minute},
		{50, 30 * time.Minute},
	}

	for _, tc := range tests {
		if got := backoffDelay(tc.attempts, base, ceiling); got != tc.want {
			t.Errorf("backoffDelay(%d) = %s, want %s", tc.attempts, got, tc.want)
		}
	}
}

func TestDispatcher_DeliversToSeverityMatchingChannels(t *testing.T) {
	alert := &models.Alert{ID: "a-1", Severity: models.SeverityCritical}
	queue := &fakeAlertQueue{pending: []*models.Alert{alert}}
	channels := &fakeChannelSource{channels: []*models.NotificationChannel{
		webhookChannel(1, nil),                           // default warning+critical
		webhookChannel(2, []string{models.SeverityInfo}), // filtered out
		webhookChannel(3, []string{models.SeverityCritical}),
	}}
	sender := &fakeSender{}
	d := newTestDispatcher(queue, channels, sender)

	d.DispatchOnce(context.Background(), time.Now())

	if len(sender.sent) != 2 {
		t.Fatalf("Expected 2 deliveries, got %v", sender.sent)
	}
	if sender.sent[0].channelID != 1 || sender.sent[1].channelID != 3 {
		t.Errorf("Delivered to wrong channels: %v", sender.sent)
	}
	if len(queue.delivered) != 1 || queue.delivered[0] != "a-1" {
		t.Errorf("Expected alert marked delivered, got %v", queue.delivered)
	}
	if len(queue.failed) != 0 {
		t.Errorf("Unexpected failed attempts: %v", queue.failed)
	}
}

func TestDispatcher_NoMatchingChannelMarksDelivered(t *testing.T) {
	alert := &models.Alert{ID: "a-1", Severity: models.SeverityWarning}
	queue := &fakeAlertQueue{pending: []*models.Alert{alert}}
	channels := &fakeChannelSource{channels: []*models.NotificationChannel{
		webhookChannel(1, []string{models.SeverityCritical}),
	}}
	sender := &fakeSender{}
	d := newTestDispatcher(queue, channels, sender)

	d.DispatchOnce(context.Background(), time.Now())

	if len(sender.sent) != 0 {
		t.Errorf("Expected no deliveries, got %v", sender.sent)
	}
	// No retry loop for an alert nobody wants: it completes immediately.
	if len(queue.delivered) != 1 {
		t.Errorf("Expected alert marked delivered, got %v", queue.delivered)
	}
	if len(queue.failed) != 0 {
		t.Errorf("Unexpected failed attempts: %v", queue.failed)
	}
}

func TestDispatcher_InfoNeedsExplicitOptIn(t *testing.T) {
	alert := &models.Alert{ID: "a-1", Severity: models.SeverityInfo}
	queue := &fakeAlertQueue{pending: []*models.Alert{alert}}
	channels := &fakeChannelSource{channels: []*models.NotificationChannel{
		webhookChannel(1, nil), // default filter does not include info
		webhookChannel(2, []string{models.SeverityInfo, models.SeverityWarning}),
	}}
	sender := &fakeSender{}
	d := newTestDispatcher(queue, channels, sender)

	d.DispatchOnce(context.Background(), time.Now())

	if len(sender.sent) != 1 || sender.sent[0].channelID != 2 {
		t.Errorf("Expected info alert only on the opted-in channel, got %v", sender.sent)
	}
}

func TestDispatcher_FailureSchedulesRetryWithBackoff(t *testing.T) {
	now := time.Now()
	alert := &models.Alert{ID: "a-1", Severity: models.SeverityCritical, NotificationAttempts: 2}
	queue := &fakeAlertQueue{pending: []*models.Alert{alert}}
	channels := &fakeChannelSource{channels: []*models.NotificationChannel{
		webhookChannel(1, nil),
	}}
	sender := &fakeSender{failFor: map[uint]error{1: errors.New("connection refused")}}
	d := newTestDispatcher(queue, channels, sender)

	d.DispatchOnce(context.Background(), now)

	if len(queue.delivered) != 0 {
		t.Errorf("Failed alert marked delivered: %v", queue.delivered)
	}
	if len(queue.failed) != 1 {
		t.Fatalf("Expected 1 failed attempt record, got %d", len(queue.failed))
	}
	rec := queue.failed[0]
	if rec.attempts != 3 {
		t.Errorf("Expected attempts=3, got %d", rec.attempts)
	}
	if rec.lastError == "" {
		t.Error("Expected lastError to be recorded")
	}
	// Third attempt: 1m * 2^2 = 4m of backoff.
	if want := now.Add(4 * time.Minute); !rec.nextAttempt.Equal(want) {
		t.Errorf("Expected next attempt at %s, got %s", want, rec.nextAttempt)
	}
}

func TestDispatcher_PartialFailureRetriesWholeAlert(t *testing.T) {
	alert := &models.Alert{ID: "a-1", Severity: models.SeverityCritical}
	queue := &fakeAlertQueue{pending: []*models.Alert{alert}}
	channels := &fakeChannelSource{channels: []*models.NotificationChannel{
		webhookChannel(1, nil),
		webhookChannel(2, nil),
	}}
	sender := &fakeSender{failFor: map[uint]error{2: errors.New("status 500")}}
	d := newTestDispatcher(queue, channels, sender)

	d.DispatchOnce(context.Background(), time.Now())

	// Channel 1 succeeded but the alert as a whole stays pending.
	if len(sender.sent) != 1 || sender.sent[0].channelID != 1 {
		t.Errorf("Expected the healthy channel to be attempted, got %v", sender.sent)
	}
	if len(queue.delivered) != 0 {
		t.Errorf("Partially failed alert marked delivered: %v", queue.delivered)
	}
	if len(queue.failed) != 1 {
		t.Fatalf("Expected 1 failed attempt record, got %d", len(queue.failed))
	}
}

func TestDispatcher_AlertChannelListRestrictsTargets(t *testing.T) {
	alert := &models.Alert{
		ID:       "a-1",
		Severity: models.SeverityCritical,
		Channels: models.EncodeChannelIDs([]uint{2}),
	}
	queue := &fakeAlertQueue{pending: []*models.Alert{alert}}
	channels := &fakeChannelSource{channels: []*models.NotificationChannel{
		webhookChannel(1, nil),
		webhookChannel(2, nil),
	}}
	sender := &fakeSender{}
	d := newTestDispatcher(queue, channels, sender)

	d.DispatchOnce(context.Background(), time.Now())

	if len(sender.sent) != 1 || sender.sent[0].channelID != 2 {
		t.Errorf("Expected delivery only to channel 2, got %v", sender.sent)
	}
}

func TestDispatcher_AlertFailuresAreIsolated(t *testing.T) {
	queue := &fakeAlertQueue{pending: []*models.Alert{
		{ID: "a-bad", Severity: models.SeverityCritical, Channels: models.EncodeChannelIDs([]uint{1})},
		{ID: "a-good", Severity: models.SeverityCritical, Channels: models.EncodeChannelIDs([]uint{2})},
	}}
	channels := &fakeChannelSource{channels: []*models.NotificationChannel{
		webhookChannel(1, nil),
		webhookChannel(2, nil),
	}}
	sender := &fakeSender{failFor: map[uint]error{1: errors.New("down")}}
	d := newTestDispatcher(queue, channels, sender)

	d.DispatchOnce(context.Background(), time.Now())

	if len(queue.delivered) != 1 || queue.delivered[0] != "a-good" {
		t.Errorf("Expected a-good delivered despite a-bad failing, got %v", queue.delivered)
	}
	if len(queue.failed) != 1 || queue.failed[0].id != "a-bad" {
		t.Errorf("Expected a-bad rescheduled, got %v", queue.failed)
	}
}
