package repositories

import (
	"time"

	"github.com/karthik14478/clawwatch/internal/database/models"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// AlertRepository handles alert creation, delivery bookkeeping and
// operator acknowledge/resolve.
type AlertRepository interface {
	// Fire creates the alert and stamps the rule's last_triggered_at in
	// one transaction so a rule cannot double-fire inside its cooldown.
	Fire(alert *models.Alert, rule *models.AlertRule, now time.Time) error

	// ListPending returns unresolved, undelivered alerts due for a
	// delivery attempt (next_attempt_at unset or in the past).
	ListPending(limit int, now time.Time) ([]*models.Alert, error)

	MarkDelivered(id string, now time.Time) error
	MarkAttemptFailed(id string, attempts int, lastError string, nextAttempt time.Time) error

	FindByID(id string) (*models.Alert, error)
	FindRecent(limit int, includeResolved bool) ([]*models.Alert, error)
	Acknowledge(id string, now time.Time) error
	Resolve(id string, now time.Time) error
}

type alertRepo struct {
	db     *gorm.DB
	logger *pterm.Logger
}

func NewAlertRepository(db *gorm.DB, logger *pterm.Logger) AlertRepository {
	return &alertRepo{
		db:     db,
		logger: logger,
	}
}

func (r *alertRepo) Fire(alert *models.Alert, rule *models.AlertRule, now time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(alert).Error; err != nil {
			return err
		}
		return tx.Model(&models.AlertRule{}).
			Where("id = ?", rule.ID).
			Update("last_triggered_at", now).Error
	})
}

func (r *alertRepo) ListPending(limit int, now time.Time) ([]*models.Alert, error) {
	var alerts []*models.Alert
	query := r.db.
		Where("resolved_at IS NULL AND delivered_at IS NULL").
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Order("created_at")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&alerts).Error; err != nil {
		r.logger.WithCaller().Error("Failed to list pending alerts", r.logger.Args("error", err))
		return nil, err
	}
	return alerts, nil
}

func (r *alertRepo) MarkDelivered(id string, now time.Time) error {
	return r.db.Model(&models.Alert{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"delivered_at":    now,
			"next_attempt_at": nil,
			"last_error":      "",
		}).Error
}

func (r *alertRepo) MarkAttemptFailed(id string, attempts int, lastError string, nextAttempt time.Time) error {
	return r.db.Model(&models.Alert{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"notification_attempts": attempts,
			"last_error":            lastError,
			"next_attempt_at":       nextAttempt,
		}).Error
}

func (r *alertRepo) FindByID(id string) (*models.Alert, error) {
	var alert models.Alert
	if err := r.db.Where("id = ?", id).First(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *alertRepo) FindRecent(limit int, includeResolved bool) ([]*models.Alert, error) {
	var alerts []*models.Alert
	query := r.db.Order("created_at DESC")
	if !includeResolved {
		query = query.Where("resolved_at IS NULL")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&alerts).Error; err != nil {
		r.logger.WithCaller().Error("Failed to list alerts", r.logger.Args("error", err))
		return nil, err
	}
	return alerts, nil
}

func (r *alertRepo) Acknowledge(id string, now time.Time) error {
	return r.db.Model(&models.Alert{}).
		Where("id = ? AND acknowledged_at IS NULL", id).
		Update("acknowledged_at", now).Error
}

func (r *alertRepo) Resolve(id string, now time.Time) error {
	return r.db.Model(&models.Alert{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Update("resolved_at", now).Error
}
