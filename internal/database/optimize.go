package database

import (
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// OptimizeDatabase applies additional optimizations after initial migrations,
// creating composite indexes for the hot query paths and verifying SQLite
// settings.
func OptimizeDatabase(db *gorm.DB, logger *pterm.Logger) error {
	logger.Debug("Applying database optimizations...")

	// Verify WAL mode is enabled (debug level - only show if there's a problem)
	var journalMode string
	if err := db.Raw("PRAGMA journal_mode").Scan(&journalMode).Error; err != nil {
		logger.Warn("Failed to check journal mode", logger.Args("error", err))
	} else if journalMode != "wal" {
		logger.Warn("Database not in WAL mode", logger.Args("mode", journalMode))
	} else {
		logger.Trace("Database journal mode verified", logger.Args("mode", journalMode))
	}

	// IF NOT EXISTS makes this idempotent and fast on subsequent runs
	indexes := []string{
		// Kind + time (error-spike and disconnect windows)
		`CREATE INDEX IF NOT EXISTS idx_kind_time
		 ON agent_events(kind, timestamp DESC)`,

		// Session + time (session-loop windows)
		`CREATE INDEX IF NOT EXISTS idx_session_events_time
		 ON agent_events(session_id, timestamp DESC)
		 WHERE session_id != ''`,

		// Cost over time (budget windows)
		`CREATE INDEX IF NOT EXISTS idx_cost_time
		 ON agent_events(timestamp DESC, cost_usd)`,

		// Dispatcher pending-alert scan
		`CREATE INDEX IF NOT EXISTS idx_alerts_pending
		 ON alerts(next_attempt_at, created_at)
		 WHERE resolved_at IS NULL AND delivered_at IS NULL`,
	}

	created := 0
	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			logger.Warn("Failed to create index", logger.Args("error", err))
			continue
		}
		created++
	}

	logger.Debug("Database optimizations applied", logger.Args("indexes", created))

	// Refresh the query planner's statistics
	if err := db.Exec("ANALYZE").Error; err != nil {
		logger.Debug("ANALYZE failed", logger.Args("error", err))
	}

	return nil
}
