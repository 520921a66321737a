package models

import (
	"encoding/json"
	"time"
)

// Rule types evaluated by the alerting engine.
const (
	RuleBudgetExceeded    = "budget_exceeded"
	RuleAgentOffline      = "agent_offline"
	RuleErrorSpike        = "error_spike"
	RuleSessionLoop       = "session_loop"
	RuleChannelDisconnect = "channel_disconnect"
	RuleCustomThreshold   = "custom_threshold"
)

// Metrics usable by custom_threshold rules.
const (
	MetricCost   = "cost"
	MetricEvents = "events"
	MetricErrors = "errors"
	MetricTokens = "tokens"
)

// AlertRule is an operator-configured alerting rule. Which of the
// condition fields apply depends on Type: budget_exceeded and the spike
// rules use Threshold+WindowMinutes, agent_offline only WindowMinutes,
// custom_threshold additionally Metric and Comparison.
type AlertRule struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"size:255;not null" json:"name"`
	Type string `gorm:"size:32;not null;index" json:"type"`

	Metric        string  `gorm:"size:32" json:"metric,omitempty"`
	Comparison    string  `gorm:"size:8" json:"comparison,omitempty"` // gt, lt, eq
	Threshold     float64 `json:"threshold"`
	WindowMinutes int     `json:"window_minutes"`

	Severity string `gorm:"size:16;not null;default:warning" json:"severity"`

	// Channels is a JSON array of NotificationChannel IDs. Empty means
	// route by severity to every accepting channel.
	Channels string `gorm:"type:text" json:"channels"`

	CooldownMinutes int        `gorm:"not null;default:10" json:"cooldown_minutes"`
	IsActive        bool       `gorm:"not null;index" json:"is_active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AlertRule) TableName() string {
	return "alert_rules"
}

// ChannelIDs decodes the Channels JSON list. A malformed or empty value
// decodes to nil, which downstream treats as "route by severity".
func (r *AlertRule) ChannelIDs() []uint {
	if r.Channels == "" {
		return nil
	}
	var ids []uint
	if err := json.Unmarshal([]byte(r.Channels), &ids); err != nil {
		return nil
	}
	return ids
}

// CoolingDown reports whether the rule fired too recently to fire again.
func (r *AlertRule) CoolingDown(now time.Time) bool {
	if r.LastTriggeredAt == nil || r.CooldownMinutes <= 0 {
		return false
	}
	return now.Before(r.LastTriggeredAt.Add(time.Duration(r.CooldownMinutes) * time.Minute))
}

// Window returns the rule's evaluation window as a duration.
func (r *AlertRule) Window() time.Duration {
	return time.Duration(r.WindowMinutes) * time.Minute
}
