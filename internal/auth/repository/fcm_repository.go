package repository

import (
	"time"

	authdomain "shipmate-backend/internal/auth/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FCMTokenRepository stores the device tokens push notifications fan out
// to. A token is unique across the table; re-registering one from another
// account moves it to that account.
type FCMTokenRepository interface {
	SaveToken(userID, token, deviceInfo string) error
	GetTokensByUserID(userID string) ([]authdomain.FCMToken, error)
	DeleteToken(token string) error
	DeleteTokensByUserID(userID string) error
}

type fcmTokenRepository struct {
	db *gorm.DB
}

// NewFCMTokenRepository creates a new instance of fcmTokenRepository
func NewFCMTokenRepository(db *gorm.DB) FCMTokenRepository {
	return &fcmTokenRepository{
		db: db,
	}
}

// SaveToken registers a device token, atomically re-homing it if another
// user registered the same device before.
func (r *fcmTokenRepository) SaveToken(userID, token, deviceInfo string) error {
	now := time.Now()
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"user_id":     userID,
			"device_info": deviceInfo,
			"updated_at":  now,
		}),
	}).Create(&authdomain.FCMToken{
		ID:         uuid.New().String(),
		UserID:     userID,
		Token:      token,
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error
}

// GetTokensByUserID returns the user's registered tokens, most recently
// refreshed first
func (r *fcmTokenRepository) GetTokensByUserID(userID string) ([]authdomain.FCMToken, error) {
	var tokens []authdomain.FCMToken
	err := r.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// DeleteToken drops one token, used when FCM reports it stale
func (r *fcmTokenRepository) DeleteToken(token string) error {
	return r.db.Where("token = ?", token).Delete(&authdomain.FCMToken{}).Error
}

// DeleteTokensByUserID drops every token the user registered
func (r *fcmTokenRepository) DeleteTokensByUserID(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&authdomain.FCMToken{}).Error
}
