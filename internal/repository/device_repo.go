package repository

import (
	"context"
	"time"

	"github.com/quocanhngo/edumsg/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceRepository stores push tokens
type DeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// AddDevice adds or refreshes a device token
func (r *DeviceRepository) AddDevice(ctx context.Context, user model.UserRef, token string, deviceType string) error {
	device := model.UserDevice{
		UserID:       user.UserID,
		UserType:     user.UserType,
		FCMToken:     token,
		DeviceType:   deviceType,
		LastActiveAt: time.Now(),
	}
	// Upsert: on conflict do update
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "user_type"}, {Name: "fcm_token"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_active_at": time.Now(),
			"device_type":    deviceType,
		}),
	}).Create(&device).Error
}

// GetUserDevices gets all devices for a user
func (r *DeviceRepository) GetUserDevices(ctx context.Context, user model.UserRef) ([]model.UserDevice, error) {
	var devices []model.UserDevice
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND user_type = ?", user.UserID, user.UserType).
		Find(&devices).Error
	return devices, err
}

// RemoveToken deletes a token the push provider reported as invalid
func (r *DeviceRepository) RemoveToken(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).
		Where("fcm_token = ?", token).
		Delete(&model.UserDevice{}).Error
}
