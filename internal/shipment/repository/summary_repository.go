package repository

import (
	"time"

	shipmentdomain "shipmate-backend/internal/shipment/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SummaryRepository defines the interface for cached group summaries
type SummaryRepository interface {
	// GetSummary retrieves a cached summary for a group, nil if absent
	GetSummary(userID, groupCode string) (*shipmentdomain.ShipmentSummary, error)
	// GetSummaries retrieves cached summaries for multiple groups.
	// Returns a map of groupCode -> summary text.
	GetSummaries(userID string, groupCodes []string) (map[string]string, error)
	// SaveSummary saves or replaces the summary for a group
	SaveSummary(userID, groupCode, summary string) error
	// DeleteSummary invalidates the cached summary for a group
	DeleteSummary(userID, groupCode string) error
}

// summaryRepository implements SummaryRepository interface
type summaryRepository struct {
	db *gorm.DB
}

// NewSummaryRepository creates a new instance of summaryRepository
func NewSummaryRepository(db *gorm.DB) SummaryRepository {
	return &summaryRepository{
		db: db,
	}
}

// GetSummary retrieves a cached summary for a group
func (r *summaryRepository) GetSummary(userID, groupCode string) (*shipmentdomain.ShipmentSummary, error) {
	var summary shipmentdomain.ShipmentSummary
	err := r.db.Where("user_id = ? AND group_code = ?", userID, groupCode).First(&summary).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &summary, nil
}

// GetSummaries retrieves cached summaries for multiple groups
func (r *summaryRepository) GetSummaries(userID string, groupCodes []string) (map[string]string, error) {
	if len(groupCodes) == 0 {
		return map[string]string{}, nil
	}

	var summaries []shipmentdomain.ShipmentSummary
	err := r.db.Where("user_id = ? AND group_code IN ?", userID, groupCodes).Find(&summaries).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(summaries))
	for _, s := range summaries {
		result[s.GroupCode] = s.Summary
	}
	return result, nil
}

// SaveSummary saves or replaces the summary for a group
func (r *summaryRepository) SaveSummary(userID, groupCode, summaryText string) error {
	var existing shipmentdomain.ShipmentSummary
	err := r.db.Where("user_id = ? AND group_code = ?", userID, groupCode).First(&existing).Error

	now := time.Now()
	if err == gorm.ErrRecordNotFound {
		summary := shipmentdomain.ShipmentSummary{
			ID:        uuid.New().String(),
			UserID:    userID,
			GroupCode: groupCode,
			Summary:   summaryText,
			CreatedAt: now,
		}
		return r.db.Create(&summary).Error
	} else if err != nil {
		return err
	}

	existing.Summary = summaryText
	existing.CreatedAt = now
	return r.db.Save(&existing).Error
}

// DeleteSummary invalidates the cached summary for a group
func (r *summaryRepository) DeleteSummary(userID, groupCode string) error {
	return r.db.Where("user_id = ? AND group_code = ?", userID, groupCode).Delete(&shipmentdomain.ShipmentSummary{}).Error
}
