package models

import (
	"encoding/json"
	"time"
)

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// ValidSeverity reports whether s is one of the known severity levels.
func ValidSeverity(s string) bool {
	return s == SeverityInfo || s == SeverityWarning || s == SeverityCritical
}

// Alert is a single firing of an AlertRule awaiting (or past) delivery.
// ResolvedAt set is terminal: the dispatcher never touches a resolved
// alert. NotificationAttempts increments only on delivery failure.
type Alert struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	RuleID   uint   `gorm:"index" json:"rule_id"`
	Severity string `gorm:"size:16;not null;index" json:"severity"`
	Title    string `gorm:"size:255;not null" json:"title"`
	Message  string `gorm:"type:text" json:"message"`

	// Channels is a JSON array of channel IDs, copied from the rule at
	// fire time.
	Channels string `gorm:"type:text" json:"channels"`

	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `gorm:"index" json:"resolved_at,omitempty"`
	DeliveredAt    *time.Time `gorm:"index" json:"delivered_at,omitempty"`

	NotificationAttempts int        `json:"notification_attempts"`
	NextAttemptAt        *time.Time `gorm:"index" json:"next_attempt_at,omitempty"`
	LastError            string     `gorm:"type:text" json:"last_error,omitempty"`
}

func (Alert) TableName() string {
	return "alerts"
}

// ChannelIDs decodes the Channels JSON list, nil when absent or malformed.
func (a *Alert) ChannelIDs() []uint {
	if a.Channels == "" {
		return nil
	}
	var ids []uint
	if err := json.Unmarshal([]byte(a.Channels), &ids); err != nil {
		return nil
	}
	return ids
}

// EncodeChannelIDs serializes channel IDs for storage on an alert or rule.
func EncodeChannelIDs(ids []uint) string {
	if len(ids) == 0 {
		return ""
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return ""
	}
	return string(raw)
}
