package models

import (
	"time"
)

// AgentEvent is one durable activity/cost record reduced from an agent
// session log line. Fingerprint carries the idempotency guarantee: the
// unique index makes re-ingestion of the same line a no-op at the
// storage layer even if the in-memory dedup cache was cold.
type AgentEvent struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Fingerprint string `gorm:"uniqueIndex:idx_event_fingerprint;size:64;not null"`
	SourceName  string `gorm:"not null;index"`
	AgentID     string `gorm:"index:idx_agent_time,priority:1"`
	SessionID   string `gorm:"index:idx_session_time,priority:1"`

	// Kind is one of: usage, error, disconnect, heartbeat
	Kind string `gorm:"size:16;not null;index"`

	Model        string `gorm:"size:64"`
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	Message      string `gorm:"type:text"`

	Timestamp time.Time `gorm:"not null;index:idx_agent_time,priority:2;index:idx_session_time,priority:2;index:idx_event_timestamp"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (AgentEvent) TableName() string {
	return "agent_events"
}

// Event kinds emitted by agent processes.
const (
	EventKindUsage      = "usage"
	EventKindError      = "error"
	EventKindDisconnect = "disconnect"
	EventKindHeartbeat  = "heartbeat"
)
