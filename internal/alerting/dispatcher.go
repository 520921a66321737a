package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/karthik14478/clawwatch/internal/database/models"

	"github.com/pterm/pterm"
)

// defaultSeverities is what a channel accepts when it declares no
// severity filter of its own. Info alerts only reach channels that opt
// in explicitly.
var defaultSeverities = []string{models.SeverityWarning, models.SeverityCritical}

// AlertQueue is the pending-alert side of alert storage.
type AlertQueue interface {
	ListPending(limit int, now time.Time) ([]*models.Alert, error)
	MarkDelivered(id string, now time.Time) error
	MarkAttemptFailed(id string, attempts int, lastError string, nextAttempt time.Time) error
}

// ChannelSource supplies the active notification channels.
type ChannelSource interface {
	FindActive() ([]*models.NotificationChannel, error)
}

// Sender delivers one alert to one channel.
type Sender interface {
	Send(ctx context.Context, channel *models.NotificationChannel, alert *models.Alert) error
}

// Dispatcher drains pending alerts to their matching channels with
// exponential backoff between failed attempts. Alerts are never
// abandoned: a down channel accumulates attempts and lastError until it
// recovers or an operator resolves the alert.
type Dispatcher struct {
	queue    AlertQueue
	channels ChannelSource
	sender   Sender
	logger   *pterm.Logger

	interval        time.Duration
	pageSize        int
	deliveryTimeout time.Duration
	backoffBase     time.Duration
	backoffCap      time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	isRunning bool

	statsMu   sync.Mutex
	delivered int64
	failures  int64
	unrouted  int64
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(
	queue AlertQueue,
	channels ChannelSource,
	sender Sender,
	logger *pterm.Logger,
	interval time.Duration,
	pageSize int,
	deliveryTimeout time.Duration,
	backoffBase time.Duration,
	backoffCap time.Duration,
) *Dispatcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if deliveryTimeout <= 0 {
		deliveryTimeout = 10 * time.Second
	}
	if backoffBase <= 0 {
		backoffBase = time.Minute
	}
	if backoffCap <= 0 {
		backoffCap = 30 * time.Minute
	}
	return &Dispatcher{
		queue:           queue,
		channels:        channels,
		sender:          sender,
		logger:          logger,
		interval:        interval,
		pageSize:        pageSize,
		deliveryTimeout: deliveryTimeout,
		backoffBase:     backoffBase,
		backoffCap:      backoffCap,
	}
}

// Start launches the dispatch loop.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		d.logger.Warn("Notification dispatcher already running, skipping start")
		return
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.wg.Add(1)
	go d.loop()
	d.isRunning = true
	d.logger.Info("Notification dispatcher started",
		d.logger.Args("interval", d.interval.String(), "page_size", d.pageSize))
}

// Stop lets an in-flight delivery finish, then stops the loop.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return
	}
	d.cancel()
	d.wg.Wait()
	d.isRunning = false
	d.logger.Info("Notification dispatcher stopped")
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case now := <-ticker.C:
			d.DispatchOnce(d.ctx, now)
		}
	}
}

// DispatchOnce processes one page of due alerts. Failures are isolated
// per alert; one dead channel never blocks deliveries for the others.
func (d *Dispatcher) DispatchOnce(ctx context.Context, now time.Time) {
	alerts, err := d.queue.ListPending(d.pageSize, now)
	if err != nil {
		d.logger.WithCaller().Error("Failed to list pending alerts",
			d.logger.Args("error", err))
		return
	}
	if len(alerts) == 0 {
		return
	}

	channels, err := d.channels.FindActive()
	if err != nil {
		d.logger.WithCaller().Error("Failed to load notification channels",
			d.logger.Args("error", err))
		return
	}

	for _, alert := range alerts {
		d.dispatchAlert(ctx, alert, channels, now)
	}
}

// dispatchAlert sends one alert to every matching channel. The attempt
// is all-or-nothing: any channel failure schedules a retry of the whole
// alert, and the storage-side delivered marker keeps already-successful
// endpoints from seeing it twice only once all of them succeed.
func (d *Dispatcher) dispatchAlert(ctx context.Context, alert *models.Alert, channels []*models.NotificationChannel, now time.Time) {
	targets := matchChannels(alert, channels)

	// An alert nobody is configured to receive is complete, not stuck.
	if len(targets) == 0 {
		d.logger.Debug("No matching channel for alert, marking delivered",
			d.logger.Args("alert_id", alert.ID, "severity", alert.Severity))
		if err := d.queue.MarkDelivered(alert.ID, now); err != nil {
			d.logger.WithCaller().Error("Failed to mark alert delivered",
				d.logger.Args("alert_id", alert.ID, "error", err))
			return
		}
		d.statsMu.Lock()
		d.unrouted++
		d.statsMu.Unlock()
		return
	}

	var firstErr error
	for _, channel := range targets {
		sendCtx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
		err := d.sender.Send(sendCtx, channel, alert)
		cancel()

		if err != nil {
			d.logger.Warn("Alert delivery failed",
				d.logger.Args("alert_id", alert.ID, "channel", channel.Name, "error", err))
			if firstErr == nil {
				firstErr = fmt.Errorf("channel %s: %w", channel.Name, err)
			}
		}
	}

	if firstErr != nil {
		attempts := alert.NotificationAttempts + 1
		delay := backoffDelay(attempts, d.backoffBase, d.backoffCap)
		if err := d.queue.MarkAttemptFailed(alert.ID, attempts, firstErr.Error(), now.Add(delay)); err != nil {
			d.logger.WithCaller().Error("Failed to record delivery attempt",
				d.logger.Args("alert_id", alert.ID, "error", err))
			return
		}
		d.statsMu.Lock()
		d.failures++
		d.statsMu.Unlock()
		d.logger.Info("Alert delivery rescheduled",
			d.logger.Args("alert_id", alert.ID, "attempts", attempts, "next_in", delay.String()))
		return
	}

	if err := d.queue.MarkDelivered(alert.ID, now); err != nil {
		d.logger.WithCaller().Error("Failed to mark alert delivered",
			d.logger.Args("alert_id", alert.ID, "error", err))
		return
	}
	d.statsMu.Lock()
	d.delivered++
	d.statsMu.Unlock()
	d.logger.Debug("Alert delivered",
		d.logger.Args("alert_id", alert.ID, "channels", len(targets)))
}

// matchChannels selects the channels that should receive the alert: the
// alert's own channel list when it has one, otherwise every channel
// whose severity filter accepts the alert. Severity filtering applies
// in both cases.
func matchChannels(alert *models.Alert, channels []*models.NotificationChannel) []*models.NotificationChannel {
	wanted := map[uint]bool{}
	for _, id := range alert.ChannelIDs() {
		wanted[id] = true
	}

	matched := []*models.NotificationChannel{}
	for _, channel := range channels {
		if channel.Type != models.ChannelTypeWebhook {
			continue
		}
		if len(wanted) > 0 && !wanted[channel.ID] {
			continue
		}
		if !channel.Accepts(alert.Severity, defaultSeverities) {
			continue
		}
		matched = append(matched, channel)
	}
	return matched
}

// backoffDelay returns the wait before attempt n+1 after n failures:
// base doubling per attempt, capped.
func backoffDelay(attempts int, base, ceiling time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

// GetStatus returns dispatch counters for the status API.
func (d *Dispatcher) GetStatus() map[string]interface{} {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return map[string]interface{}{
		"delivered": d.delivered,
		"failures":  d.failures,
		"unrouted":  d.unrouted,
	}
}
