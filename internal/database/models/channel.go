package models

import (
	"encoding/json"
	"time"
)

// ChannelTypeWebhook is the only delivery transport currently supported.
const ChannelTypeWebhook = "webhook"

// NotificationChannel is an external destination for alert delivery.
// Read-only to the dispatcher; managed by operators through the API.
type NotificationChannel struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Type     string `gorm:"size:32;not null;default:webhook" json:"type"`
	Name     string `gorm:"size:255;not null" json:"name"`
	IsActive bool   `gorm:"not null;index" json:"is_active"`

	Endpoint string `gorm:"not null" json:"endpoint"`

	// Severities is a JSON array of accepted severities. Empty means the
	// default routing of warning and critical.
	Severities string `gorm:"type:text" json:"severities"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (NotificationChannel) TableName() string {
	return "notification_channels"
}

// AcceptedSeverities decodes the Severities list, falling back to the
// supplied defaults when the channel has none configured.
func (c *NotificationChannel) AcceptedSeverities(defaults []string) []string {
	if c.Severities == "" {
		return defaults
	}
	var list []string
	if err := json.Unmarshal([]byte(c.Severities), &list); err != nil || len(list) == 0 {
		return defaults
	}
	return list
}

// Accepts reports whether the channel accepts alerts of the given severity.
func (c *NotificationChannel) Accepts(severity string, defaults []string) bool {
	for _, s := range c.AcceptedSeverities(defaults) {
		if s == severity {
			return true
		}
	}
	return false
}

// EncodeSeverities serializes a severity list for storage on a channel.
func EncodeSeverities(list []string) string {
	if len(list) == 0 {
		return ""
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return ""
	}
	return string(raw)
}
