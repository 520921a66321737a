package repositories

import (
	"github.com/karthik14478/clawwatch/internal/database/models"

	"gorm.io/gorm"
)

// ChannelRepository handles operator CRUD of notification channels.
// The dispatcher only ever reads through FindActive.
type ChannelRepository interface {
	Create(channel *models.NotificationChannel) error
	FindByID(id uint) (*models.NotificationChannel, error)
	FindAll() ([]*models.NotificationChannel, error)
	FindActive() ([]*models.NotificationChannel, error)
	Update(channel *models.NotificationChannel) error
	Delete(id uint) error
}

type channelRepo struct {
	db *gorm.DB
}

func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &channelRepo{db: db}
}

func (r *channelRepo) Create(channel *models.NotificationChannel) error {
	return r.db.Create(channel).Error
}

func (r *channelRepo) FindByID(id uint) (*models.NotificationChannel, error) {
	var channel models.NotificationChannel
	if err := r.db.First(&channel, id).Error; err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *channelRepo) FindAll() ([]*models.NotificationChannel, error) {
	var channels []*models.NotificationChannel
	err := r.db.Order("id").Find(&channels).Error
	return channels, err
}

func (r *channelRepo) FindActive() ([]*models.NotificationChannel, error) {
	var channels []*models.NotificationChannel
	err := r.db.Where("is_active = ?", true).Order("id").Find(&channels).Error
	return channels, err
}

func (r *channelRepo) Update(channel *models.NotificationChannel) error {
	return r.db.Save(channel).Error
}

func (r *channelRepo) Delete(id uint) error {
	return r.db.Delete(&models.NotificationChannel{}, id).Error
}
