package repository

import (
	"time"

	shipmentdomain "shipmate-backend/internal/shipment/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GroupRepository defines the interface for shipment group operations
type GroupRepository interface {
	// GetGroup retrieves a group by its canonical code, nil if absent
	GetGroup(userID, code string) (*shipmentdomain.ShipmentGroup, error)
	// CreateGroup persists a new group
	CreateGroup(group *shipmentdomain.ShipmentGroup) error
	// TouchGroup advances a group's UpdatedAt, never regressing it
	TouchGroup(userID, code string, updatedAt time.Time) error
	// ListGroups retrieves all groups for a user, most recently updated first
	ListGroups(userID string) ([]shipmentdomain.ShipmentGroup, error)
	// ListGroupCodes retrieves just the canonical codes for a user
	ListGroupCodes(userID string) ([]string, error)
	// DeleteGroup removes a group record (messages are kept)
	DeleteGroup(userID, code string) error
}

// groupRepository implements GroupRepository interface
type groupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new instance of groupRepository
func NewGroupRepository(db *gorm.DB) GroupRepository {
	return &groupRepository{
		db: db,
	}
}

// GetGroup retrieves a group by its canonical code
func (r *groupRepository) GetGroup(userID, code string) (*shipmentdomain.ShipmentGroup, error) {
	var group shipmentdomain.ShipmentGroup
	err := r.db.Where("user_id = ? AND code = ?", userID, code).First(&group).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

// CreateGroup persists a new group
func (r *groupRepository) CreateGroup(group *shipmentdomain.ShipmentGroup) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	return r.db.Create(group).Error
}

// TouchGroup advances a group's UpdatedAt. The updated_at guard makes the
// write monotonic: a re-sync over an older date range never moves a group
// backwards in the recency ordering.
func (r *groupRepository) TouchGroup(userID, code string, updatedAt time.Time) error {
	return r.db.Model(&shipmentdomain.ShipmentGroup{}).
		Where("user_id = ? AND code = ? AND updated_at < ?", userID, code, updatedAt).
		Update("updated_at", updatedAt).Error
}

// ListGroups retrieves all groups for a user, most recently updated first
func (r *groupRepository) ListGroups(userID string) ([]shipmentdomain.ShipmentGroup, error) {
	var groups []shipmentdomain.ShipmentGroup
	err := r.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// ListGroupCodes retrieves just the canonical codes for a user
func (r *groupRepository) ListGroupCodes(userID string) ([]string, error) {
	var codes []string
	err := r.db.Model(&shipmentdomain.ShipmentGroup{}).
		Where("user_id = ?", userID).
		Pluck("code", &codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// DeleteGroup removes a group record
func (r *groupRepository) DeleteGroup(userID, code string) error {
	return r.db.Where("user_id = ? AND code = ?", userID, code).Delete(&shipmentdomain.ShipmentGroup{}).Error
}
