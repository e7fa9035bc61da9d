package model

import (
	"time"
)

// UserDevice is a push token registered by a user's app
type UserDevice struct {
	ID           int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       int64     `json:"user_id" gorm:"not null;uniqueIndex:idx_device_user_token"`
	UserType     UserType  `json:"user_type" gorm:"type:varchar(20);not null;uniqueIndex:idx_device_user_token"`
	FCMToken     string    `json:"fcm_token" gorm:"not null;uniqueIndex:idx_device_user_token"`
	DeviceType   string    `json:"device_type" gorm:"size:20;default:'unknown'"` // android, ios, web
	LastActiveAt time.Time `json:"last_active_at"`
	CreatedAt    time.Time `json:"created_at"`
}
