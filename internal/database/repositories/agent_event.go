package repositories

import (
	"time"

	"github.com/karthik14478/clawwatch/internal/database/models"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AgentEventRepository handles storage of reduced agent activity records
// and the windowed aggregates the rule evaluator consumes.
type AgentEventRepository interface {
	UpsertBatch(events []*models.AgentEvent) error
	FindRecent(limit int) ([]*models.AgentEvent, error)
	Count() (int64, error)
	CountSince(since time.Time) (int64, error)
	CountKindSince(kind string, since time.Time) (int64, error)
	SumCostSince(since time.Time) (float64, error)
	SumTokensSince(since time.Time) (int64, error)
	MaxSessionEventsSince(since time.Time) (int64, error)
}

type agentEventRepo struct {
	db     *gorm.DB
	logger *pterm.Logger
}

// NewAgentEventRepository creates a new agent event repository.
func NewAgentEventRepository(db *gorm.DB, logger *pterm.Logger) AgentEventRepository {
	return &agentEventRepo{
		db:     db,
		logger: logger,
	}
}

// UpsertBatch inserts events in a single transaction, silently skipping
// rows whose fingerprint already exists. This is the storage-side
// idempotency backstop behind the in-memory dedup cache: a retried flush
// after a partial failure can resend the whole batch safely.
// Large batches are split to stay under the SQLite variable limit.
func (r *agentEventRepo) UpsertBatch(events []*models.AgentEvent) error {
	if len(events) == 0 {
		r.logger.Debug("Empty batch, skipping insert")
		return nil
	}

	// SQLite caps bound variables at 32766; AgentEvent has ~12 columns.
	const maxRecordsPerBatch = 32766 / 12

	if len(events) <= maxRecordsPerBatch {
		return r.upsertSubBatch(events)
	}

	r.logger.Debug("Splitting large batch to avoid variable limit",
		r.logger.Args("total_records", len(events), "max_per_batch", maxRecordsPerBatch))

	totalInserted := 0
	for i := 0; i < len(events); i += maxRecordsPerBatch {
		end := i + maxRecordsPerBatch
		if end > len(events) {
			end = len(events)
		}

		subBatch := events[i:end]
		if err := r.upsertSubBatch(subBatch); err != nil {
			r.logger.WithCaller().Error("Failed to insert sub-batch",
				r.logger.Args("batch_num", (i/maxRecordsPerBatch)+1, "count", len(subBatch), "error", err))
			return err
		}

		totalInserted += len(subBatch)
		r.logger.Trace("Inserted sub-batch",
			r.logger.Args("progress", totalInserted, "total", len(events)))
	}

	return nil
}

func (r *agentEventRepo) upsertSubBatch(events []*models.AgentEvent) error {
	tx := r.db.Begin()
	if tx.Error != nil {
		r.logger.WithCaller().Error("Failed to begin transaction", r.logger.Args("error", tx.Error))
		return tx.Error
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}},
		DoNothing: true,
	}).Create(&events).Error; err != nil {
		tx.Rollback()
		r.logger.WithCaller().Error("Failed to insert batch",
			r.logger.Args("count", len(events), "error", err))
		return err
	}

	if err := tx.Commit().Error; err != nil {
		r.logger.WithCaller().Error("Failed to commit transaction", r.logger.Args("error", err))
		return err
	}

	return nil
}

// FindRecent retrieves the most recent events, newest first.
func (r *agentEventRepo) FindRecent(limit int) ([]*models.AgentEvent, error) {
	var events []*models.AgentEvent
	query := r.db.Order("timestamp DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		r.logger.WithCaller().Error("Failed to find recent events", r.logger.Args("error", err))
		return nil, err
	}
	return events, nil
}

// Count returns the total number of stored events.
func (r *agentEventRepo) Count() (int64, error) {
	var count int64
	if err := r.db.Model(&models.AgentEvent{}).Count(&count).Error; err != nil {
		r.logger.WithCaller().Error("Failed to count events", r.logger.Args("error", err))
		return 0, err
	}
	return count, nil
}

// CountSince returns the number of events with timestamp >= since.
func (r *agentEventRepo) CountSince(since time.Time) (int64, error) {
	var count int64
	if err := r.db.Model(&models.AgentEvent{}).
		Where("timestamp >= ?", since).
		Count(&count).Error; err != nil {
		r.logger.WithCaller().Error("Failed to count events in window",
			r.logger.Args("since", since, "error", err))
		return 0, err
	}
	return count, nil
}

// CountKindSince returns the number of events of one kind in the window.
func (r *agentEventRepo) CountKindSince(kind string, since time.Time) (int64, error) {
	var count int64
	if err := r.db.Model(&models.AgentEvent{}).
		Where("kind = ? AND timestamp >= ?", kind, since).
		Count(&count).Error; err != nil {
		r.logger.WithCaller().Error("Failed to count events by kind",
			r.logger.Args("kind", kind, "since", since, "error", err))
		return 0, err
	}
	return count, nil
}

// SumCostSince returns total spend across events in the window.
func (r *agentEventRepo) SumCostSince(since time.Time) (float64, error) {
	var total float64
	if err := r.db.Model(&models.AgentEvent{}).
		Where("timestamp >= ?", since).
		Select("COALESCE(SUM(cost_usd), 0)").
		Scan(&total).Error; err != nil {
		r.logger.WithCaller().Error("Failed to sum cost in window",
			r.logger.Args("since", since, "error", err))
		return 0, err
	}
	return total, nil
}

// SumTokensSince returns total input+output tokens in the window.
func (r *agentEventRepo) SumTokensSince(since time.Time) (int64, error) {
	var total int64
	if err := r.db.Model(&models.AgentEvent{}).
		Where("timestamp >= ?", since).
		Select("COALESCE(SUM(input_tokens + output_tokens), 0)").
		Scan(&total).Error; err != nil {
		r.logger.WithCaller().Error("Failed to sum tokens in window",
			r.logger.Args("since", since, "error", err))
		return 0, err
	}
	return total, nil
}

// MaxSessionEventsSince returns the event count of the busiest single
// session in the window. Used by session_loop detection.
func (r *agentEventRepo) MaxSessionEventsSince(since time.Time) (int64, error) {
	var max int64
	if err := r.db.Raw(`
		SELECT COALESCE(MAX(cnt), 0) FROM (
			SELECT COUNT(*) AS cnt FROM agent_events
			WHERE timestamp >= ? AND session_id != ''
			GROUP BY session_id
		)
	`, since).Scan(&max).Error; err != nil {
		r.logger.WithCaller().Error("Failed to compute busiest session",
			r.logger.Args("since", since, "error", err))
		return 0, err
	}
	return max, nil
}
