package repositories

import (
	"github.com/karthik14478/clawwatch/internal/database/models"

	"gorm.io/gorm"
)

// AlertRuleRepository handles operator CRUD and evaluator reads of rules.
type AlertRuleRepository interface {
	Create(rule *models.AlertRule) error
	FindByID(id uint) (*models.AlertRule, error)
	FindAll() ([]*models.AlertRule, error)
	FindActive() ([]*models.AlertRule, error)
	Update(rule *models.AlertRule) error
	Delete(id uint) error
}

type alertRuleRepo struct {
	db *gorm.DB
}

func NewAlertRuleRepository(db *gorm.DB) AlertRuleRepository {
	return &alertRuleRepo{db: db}
}

func (r *alertRuleRepo) Create(rule *models.AlertRule) error {
	return r.db.Create(rule).Error
}

func (r *alertRuleRepo) FindByID(id uint) (*models.AlertRule, error) {
	var rule models.AlertRule
	if err := r.db.First(&rule, id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *alertRuleRepo) FindAll() ([]*models.AlertRule, error) {
	var rules []*models.AlertRule
	err := r.db.Order("id").Find(&rules).Error
	return rules, err
}

func (r *alertRuleRepo) FindActive() ([]*models.AlertRule, error) {
	var rules []*models.AlertRule
	err := r.db.Where("is_active = ?", true).Order("id").Find(&rules).Error
	return rules, err
}

func (r *alertRuleRepo) Update(rule *models.AlertRule) error {
	return r.db.Save(rule).Error
}

func (r *alertRuleRepo) Delete(id uint) error {
	return r.db.Delete(&models.AlertRule{}, id).Error
}
