package realtime

import (
	"sync"
	"time"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// MetricsCollector samples the events table on an interval and holds
// the latest snapshot in memory: event/error rates, spend, and a
// per-agent last-seen map. The snapshot feeds both the status API and
// offline detection, which needs last-seen data precisely when no new
// rows are arriving.
type MetricsCollector struct {
	db     *gorm.DB
	logger *pterm.Logger

	mu             sync.RWMutex
	eventRate      float64 // events per second over the last minute
	errorRate      float64 // error events per second over the last minute
	spendLastHour  float64
	tokensLastHour int64
	activeAgents   int
	lastSeen       map[string]time.Time
	lastUpdate     time.Time

	done chan struct{}
	once sync.Once
}

// AgentActivity is one agent's liveness entry in the snapshot.
type AgentActivity struct {
	AgentID  string    `json:"agent_id"`
	LastSeen time.Time `json:"last_seen"`
}

// RealtimeMetrics represents the current activity snapshot.
type RealtimeMetrics struct {
	EventRate      float64         `json:"event_rate"` // events/sec
	ErrorRate      float64         `json:"error_rate"` // errors/sec
	SpendLastHour  float64         `json:"spend_last_hour"`
	TokensLastHour int64           `json:"tokens_last_hour"`
	ActiveAgents   int             `json:"active_agents"`
	Agents         []AgentActivity `json:"agents"`
	Timestamp      time.Time       `json:"timestamp"`
}

// NewMetricsCollector creates a new real-time metrics collector
func NewMetricsCollector(db *gorm.DB, logger *pterm.Logger) *MetricsCollector {
	return &MetricsCollector{
		db:         db,
		logger:     logger,
		lastSeen:   make(map[string]time.Time),
		lastUpdate: time.Now(),
		done:       make(chan struct{}),
	}
}

// Start begins collecting metrics at regular intervals
func (m *MetricsCollector) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				m.collectMetrics()
			}
		}
	}()
	m.logger.Info("Real-time metrics collector started",
		m.logger.Args("interval", interval.String()))
}

// Stop halts the collection loop.
func (m *MetricsCollector) Stop() {
	m.once.Do(func() { close(m.done) })
}

// collectMetrics gathers current statistics from the database.
// One aggregate query for the rates, one grouped query for liveness.
func (m *MetricsCollector) collectMetrics() {
	now := time.Now()
	oneMinuteAgo := now.Add(-1 * time.Minute)
	oneHourAgo := now.Add(-1 * time.Hour)

	type ratesResult struct {
		TotalCount int64 `gorm:"column:total_count"`
		ErrorCount int64 `gorm:"column:error_count"`
	}

	var rates ratesResult
	err := m.db.Table("agent_events").
		Select(`
			COUNT(*) as total_count,
			SUM(CASE WHEN kind = 'error' THEN 1 ELSE 0 END) as error_count
		`).
		Where("timestamp > ?", oneMinuteAgo).
		Scan(&rates).Error
	if err != nil {
		m.logger.Warn("Failed to collect real-time metrics", m.logger.Args("error", err))
		return
	}

	type spendResult struct {
		Spend  float64 `gorm:"column:spend"`
		Tokens int64   `gorm:"column:tokens"`
	}

	var spend spendResult
	err = m.db.Table("agent_events").
		Select("COALESCE(SUM(cost_usd), 0) as spend, COALESCE(SUM(input_tokens + output_tokens), 0) as tokens").
		Where("timestamp > ?", oneHourAgo).
		Scan(&spend).Error
	if err != nil {
		m.logger.Warn("Failed to collect spend metrics", m.logger.Args("error", err))
		return
	}

	type agentResult struct {
		AgentID  string    `gorm:"column:agent_id"`
		LastSeen time.Time `gorm:"column:last_seen"`
	}

	var agents []agentResult
	err = m.db.Table("agent_events").
		Select("agent_id, MAX(timestamp) as last_seen").
		Where("agent_id != ?", "").
		Group("agent_id").
		Scan(&agents).Error
	if err != nil {
		m.logger.Warn("Failed to collect agent liveness", m.logger.Args("error", err))
		return
	}

	seen := make(map[string]time.Time, len(agents))
	active := 0
	for _, a := range agents {
		seen[a.AgentID] = a.LastSeen
		if a.LastSeen.After(oneMinuteAgo) {
			active++
		}
	}

	eventRate := float64(rates.TotalCount) / 60.0
	errorRate := float64(rates.ErrorCount) / 60.0

	m.mu.Lock()
	m.eventRate = eventRate
	m.errorRate = errorRate
	m.spendLastHour = spend.Spend
	m.tokensLastHour = spend.Tokens
	m.activeAgents = active
	m.lastSeen = seen
	m.lastUpdate = now
	m.mu.Unlock()

	m.logger.Trace("Collected real-time metrics",
		m.logger.Args(
			"event_rate", eventRate,
			"error_rate", errorRate,
			"agents", len(seen),
		))
}

// GetMetrics returns the current metrics snapshot
func (m *MetricsCollector) GetMetrics() *RealtimeMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agents := make([]AgentActivity, 0, len(m.lastSeen))
	for id, seen := range m.lastSeen {
		agents = append(agents, AgentActivity{AgentID: id, LastSeen: seen})
	}

	return &RealtimeMetrics{
		EventRate:      m.eventRate,
		ErrorRate:      m.errorRate,
		SpendLastHour:  m.spendLastHour,
		TokensLastHour: m.tokensLastHour,
		ActiveAgents:   m.activeAgents,
		Agents:         agents,
		Timestamp:      m.lastUpdate,
	}
}

// LastSeen returns the latest event timestamp per agent. The copy is
// safe for callers to hold across evaluation.
func (m *MetricsCollector) LastSeen() map[string]time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]time.Time, len(m.lastSeen))
	for id, seen := range m.lastSeen {
		out[id] = seen
	}
	return out
}
