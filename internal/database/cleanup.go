package database

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// IngestController lets the cleanup service pause ingestion during
// maintenance windows (VACUUM needs exclusive access).
type IngestController interface {
	Stop()
	Start() error
	SourceCount() int
}

// CleanupService enforces data retention: old events and resolved alerts
// are deleted on a daily schedule, optionally followed by VACUUM.
type CleanupService struct {
	db              *gorm.DB
	logger          *pterm.Logger
	retentionDays   int
	cleanupInterval time.Duration
	cleanupTime     string
	vacuumEnabled   bool
	coordinator     IngestController
	stopChan        chan struct{}
	running         bool
	// Stats tracking
	lastRunTime     time.Time
	recordsDeleted  int64
	cleanupDuration time.Duration
}

// CleanupStats holds statistics about cleanup operations
type CleanupStats struct {
	LastRunTime      time.Time
	RecordsDeleted   int64
	CleanupDuration  time.Duration
	NextScheduledRun time.Time
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(db *gorm.DB, logger *pterm.Logger, retentionDays int, cleanupInterval time.Duration, cleanupTime string, vacuumEnabled bool, coordinator IngestController) *CleanupService {
	return &CleanupService{
		db:              db,
		logger:          logger,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		cleanupTime:     cleanupTime,
		vacuumEnabled:   vacuumEnabled,
		coordinator:     coordinator,
		stopChan:        make(chan struct{}),
		running:         false,
	}
}

// Start begins the cleanup service
func (s *CleanupService) Start() {
	if s.retentionDays <= 0 {
		s.logger.Info("Data retention disabled (DB_RETENTION_DAYS=0), cleanup service not started")
		return
	}

	s.running = true
	s.logger.Info("Starting database cleanup service",
		s.logger.Args(
			"retention_days", s.retentionDays,
			"cleanup_time", s.cleanupTime,
			"vacuum_enabled", s.vacuumEnabled,
		))

	go s.scheduledCleanupLoop()
}

// Stop stops the cleanup service
func (s *CleanupService) Stop() {
	if !s.running {
		return
	}

	s.logger.Info("Stopping database cleanup service")
	close(s.stopChan)
	s.running = false
}

// scheduledCleanupLoop runs cleanup at the scheduled time daily
func (s *CleanupService) scheduledCleanupLoop() {
	// Run initial cleanup check after 1 minute
	select {
	case <-s.stopChan:
		return
	case <-time.After(1 * time.Minute):
	}

	for {
		select {
		case <-s.stopChan:
			return
		default:
			now := time.Now()
			targetTime := s.parseCleanupTime(now)

			// If target time has passed today, schedule for tomorrow
			if now.After(targetTime) {
				targetTime = targetTime.Add(24 * time.Hour)
			}

			waitDuration := time.Until(targetTime)
			s.logger.Debug("Next cleanup scheduled",
				s.logger.Args("next_run", targetTime.Format("2006-01-02 15:04:05"), "wait_duration", waitDuration.Round(time.Minute)))

			select {
			case <-s.stopChan:
				return
			case <-time.After(minDuration(waitDuration, s.cleanupInterval)):
				if time.Now().After(targetTime.Add(-1 * time.Minute)) {
					s.runCleanup()
				}
			}
		}
	}
}

// parseCleanupTime parses the cleanup time string (HH:MM) and returns today's time
func (s *CleanupService) parseCleanupTime(baseTime time.Time) time.Time {
	cleanupTime, err := time.Parse("15:04", s.cleanupTime)
	if err != nil {
		s.logger.Warn("Invalid cleanup time format, using 02:00",
			s.logger.Args("configured", s.cleanupTime, "error", err))
		cleanupTime, _ = time.Parse("15:04", "02:00")
	}

	return time.Date(
		baseTime.Year(), baseTime.Month(), baseTime.Day(),
		cleanupTime.Hour(), cleanupTime.Minute(), 0, 0,
		baseTime.Location(),
	)
}

// runCleanup performs the cleanup operation
func (s *CleanupService) runCleanup() {
	s.logger.Info("Starting scheduled database cleanup",
		s.logger.Args("retention_days", s.retentionDays))

	startTime := time.Now()
	cutoffDate := time.Now().AddDate(0, 0, -s.retentionDays)

	eventsDeleted, err := s.deleteOldEvents(cutoffDate)
	if err != nil {
		s.logger.WithCaller().Error("Failed to delete old events",
			s.logger.Args("error", err, "cutoff_date", cutoffDate.Format("2006-01-02")))
		return
	}

	alertsDeleted, err := s.deleteResolvedAlerts(cutoffDate)
	if err != nil {
		s.logger.WithCaller().Error("Failed to delete resolved alerts",
			s.logger.Args("error", err, "cutoff_date", cutoffDate.Format("2006-01-02")))
		// Event cleanup already succeeded; keep going with stats
	}

	totalDeleted := eventsDeleted + alertsDeleted
	cleanupDuration := time.Since(startTime)

	s.lastRunTime = startTime
	s.recordsDeleted = totalDeleted
	s.cleanupDuration = cleanupDuration

	s.logger.Info("Cleanup completed",
		s.logger.Args(
			"events_deleted", eventsDeleted,
			"alerts_deleted", alertsDeleted,
			"duration", cleanupDuration.Round(time.Second),
			"cutoff_date", cutoffDate.Format("2006-01-02"),
		))

	if s.vacuumEnabled && totalDeleted > 0 {
		s.runVacuum()
	}
}

// deleteOldEvents deletes events older than the cutoff date in batches
// to avoid long locks.
func (s *CleanupService) deleteOldEvents(cutoffDate time.Time) (int64, error) {
	const batchSize = 1000
	totalDeleted := int64(0)

	s.logger.Debug("Deleting events in batches",
		s.logger.Args("batch_size", batchSize, "cutoff_date", cutoffDate.Format("2006-01-02")))

	for {
		result := s.db.Exec(`
			DELETE FROM agent_events
			WHERE id IN (
				SELECT id FROM agent_events
				WHERE timestamp < ?
				LIMIT ?
			)
		`, cutoffDate, batchSize)

		if result.Error != nil {
			return totalDeleted, result.Error
		}

		deleted := result.RowsAffected
		totalDeleted += deleted

		if deleted == 0 {
			break
		}

		s.logger.Trace("Deleted batch",
			s.logger.Args("batch_deleted", deleted, "total_deleted", totalDeleted))

		// Small pause between batches to avoid hogging the database
		time.Sleep(100 * time.Millisecond)
	}

	return totalDeleted, nil
}

// deleteResolvedAlerts removes terminal alerts older than the cutoff.
// Unresolved alerts are never aged out: a failing channel must stay
// visible to operators regardless of age.
func (s *CleanupService) deleteResolvedAlerts(cutoffDate time.Time) (int64, error) {
	result := s.db.Exec(`
		DELETE FROM alerts
		WHERE resolved_at IS NOT NULL AND resolved_at < ?
	`, cutoffDate)
	return result.RowsAffected, result.Error
}

// runVacuum runs VACUUM to reclaim space, pausing ingestion to prevent
// "database locked" errors.
func (s *CleanupService) runVacuum() {
	s.logger.Info("Starting VACUUM maintenance window")

	startTime := time.Now()

	// Phase 1: Stop ingestion to prevent query conflicts
	if s.coordinator != nil {
		sourceCount := s.coordinator.SourceCount()
		if sourceCount > 0 {
			s.logger.Info("Pausing ingestion for maintenance",
				s.logger.Args("sources", sourceCount))
			s.coordinator.Stop()

			// Give the ingest loop time to finish its current flush
			time.Sleep(2 * time.Second)
		}
	}

	// Phase 2: Run VACUUM with exclusive database access
	vacuumStart := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := s.db.WithContext(ctx).Exec("VACUUM").Error; err != nil {
		s.logger.WithCaller().Error("Failed to run VACUUM",
			s.logger.Args("error", err))

		if s.coordinator != nil {
			s.logger.Info("Restarting ingestion after VACUUM failure")
			if err := s.coordinator.Start(); err != nil {
				s.logger.WithCaller().Error("Failed to restart ingestion after VACUUM failure",
					s.logger.Args("error", err))
			}
		}
		return
	}

	vacuumDuration := time.Since(vacuumStart)

	// Phase 3: Restart ingestion
	if s.coordinator != nil {
		s.logger.Info("Restarting ingestion after VACUUM")
		if err := s.coordinator.Start(); err != nil {
			s.logger.WithCaller().Error("Failed to restart ingestion",
				s.logger.Args("error", err))
			return
		}

		s.logger.Info("Ingestion resumed",
			s.logger.Args("sources", s.coordinator.SourceCount()))
	}

	s.logger.Info("VACUUM maintenance completed",
		s.logger.Args(
			"vacuum_duration", vacuumDuration.Round(time.Second),
			"total_duration", time.Since(startTime).Round(time.Second),
		))
}

// GetStats returns cleanup statistics
func (s *CleanupService) GetStats() *CleanupStats {
	now := time.Now()
	targetTime := s.parseCleanupTime(now)
	if now.After(targetTime) {
		targetTime = targetTime.Add(24 * time.Hour)
	}

	return &CleanupStats{
		LastRunTime:      s.lastRunTime,
		RecordsDeleted:   s.recordsDeleted,
		CleanupDuration:  s.cleanupDuration,
		NextScheduledRun: targetTime,
	}
}

// ManualCleanup triggers cleanup immediately (useful for testing/admin)
func (s *CleanupService) ManualCleanup() error {
	if s.retentionDays <= 0 {
		return fmt.Errorf("retention disabled (DB_RETENTION_DAYS=0)")
	}

	s.logger.Info("Manual cleanup triggered")
	go s.runCleanup()
	return nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
