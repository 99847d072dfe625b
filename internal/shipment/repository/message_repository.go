package repository

import (
	shipmentdomain "shipmate-backend/internal/shipment/domain"

	"gorm.io/gorm"
)

// MessageRepository defines the interface for shipment email operations
type MessageRepository interface {
	// SaveMessagesIfNew stores only messages whose IDs are not yet present.
	// Returns the IDs that were actually inserted.
	SaveMessagesIfNew(userID string, messages []*shipmentdomain.ShipmentEmail) ([]string, error)
	// GetMessagesByGroup retrieves a group's messages ordered oldest first
	GetMessagesByGroup(userID, code string) ([]shipmentdomain.ShipmentEmail, error)
	// GetMessage retrieves a single message with attachments, nil if absent
	GetMessage(userID, messageID string) (*shipmentdomain.ShipmentEmail, error)
	// CountByGroup returns per-group message counts keyed by group code
	CountByGroup(userID string) (map[string]int, error)
	// ListByStatus retrieves up to limit messages in the given status
	ListByStatus(userID string, status shipmentdomain.ProcessingStatus, limit int) ([]shipmentdomain.ShipmentEmail, error)
	// UpdateStatus moves a message through the processing lifecycle
	UpdateStatus(messageID string, status shipmentdomain.ProcessingStatus) error
	// ResetStuckProcessing returns in-flight messages to not_processed,
	// used on startup after an unclean shutdown
	ResetStuckProcessing() (int64, error)
}

// messageRepository implements MessageRepository interface
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new instance of messageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

// SaveMessagesIfNew stores only messages whose IDs are not yet present.
// The diff runs against the message ID, so a message that moved between
// groups on the server is not duplicated locally.
func (r *messageRepository) SaveMessagesIfNew(userID string, messages []*shipmentdomain.ShipmentEmail) ([]string, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}

	var existing []string
	err := r.db.Model(&shipmentdomain.ShipmentEmail{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Pluck("id", &existing).Error
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}

	var inserted []string
	for _, m := range messages {
		if known[m.ID] {
			continue
		}
		m.UserID = userID
		if err := r.db.Create(m).Error; err != nil {
			return inserted, err
		}
		inserted = append(inserted, m.ID)
	}
	return inserted, nil
}

// GetMessagesByGroup retrieves a group's messages ordered oldest first
func (r *messageRepository) GetMessagesByGroup(userID, code string) ([]shipmentdomain.ShipmentEmail, error) {
	var messages []shipmentdomain.ShipmentEmail
	err := r.db.Where("user_id = ? AND group_code = ?", userID, code).
		Order("date ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// GetMessage retrieves a single message with attachments
func (r *messageRepository) GetMessage(userID, messageID string) (*shipmentdomain.ShipmentEmail, error) {
	var message shipmentdomain.ShipmentEmail
	err := r.db.Preload("Attachments").
		Where("user_id = ? AND id = ?", userID, messageID).
		First(&message).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

// CountByGroup returns per-group message counts keyed by group code
func (r *messageRepository) CountByGroup(userID string) (map[string]int, error) {
	type row struct {
		GroupCode string
		Count     int
	}
	var rows []row
	err := r.db.Model(&shipmentdomain.ShipmentEmail{}).
		Select("group_code, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("group_code").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.GroupCode] = r.Count
	}
	return counts, nil
}

// ListByStatus retrieves up to limit messages in the given status
func (r *messageRepository) ListByStatus(userID string, status shipmentdomain.ProcessingStatus, limit int) ([]shipmentdomain.ShipmentEmail, error) {
	var messages []shipmentdomain.ShipmentEmail
	q := r.db.Where("user_id = ? AND status = ?", userID, status).Order("date ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// UpdateStatus moves a message through the processing lifecycle
func (r *messageRepository) UpdateStatus(messageID string, status shipmentdomain.ProcessingStatus) error {
	return r.db.Model(&shipmentdomain.ShipmentEmail{}).
		Where("id = ?", messageID).
		Update("status", status).Error
}

// ResetStuckProcessing returns in-flight messages to not_processed
func (r *messageRepository) ResetStuckProcessing() (int64, error) {
	result := r.db.Model(&shipmentdomain.ShipmentEmail{}).
		Where("status = ?", shipmentdomain.StatusProcessing).
		Update("status", shipmentdomain.StatusNotProcessed)
	return result.RowsAffected, result.Error
}
