package domain

import "time"

// ProcessingStatus tracks the AI-extraction lifecycle of a message.
// A message is immutable once parsed except for this field.
type ProcessingStatus string

const (
	StatusNotProcessed ProcessingStatus = "not_processed"
	StatusProcessing   ProcessingStatus = "processing"
	StatusProcessed    ProcessingStatus = "processed"
	StatusFailed       ProcessingStatus = "failed"
)

// ShipmentEmail is a normalized message pulled from the remote mailbox.
type ShipmentEmail struct {
	ID          string           `json:"id" gorm:"primaryKey"`
	UserID      string           `json:"user_id" gorm:"index:idx_user_group;not null"`
	GroupCode   string           `json:"group_code" gorm:"index:idx_user_group"`
	From        string           `json:"from" gorm:"column:sender"`
	To          string           `json:"to" gorm:"column:recipient"`
	Subject     string           `json:"subject"`
	Date        time.Time        `json:"date"`
	Body        string           `json:"body" gorm:"type:text"`
	Status      ProcessingStatus `json:"status" gorm:"default:not_processed"`
	Attachments []Attachment     `json:"attachments,omitempty" gorm:"foreignKey:EmailID"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (ShipmentEmail) TableName() string {
	return "shipment_emails"
}

// Attachment is a decoded file attached to a message. Created once at parse
// time, never mutated.
type Attachment struct {
	ID          string `json:"id" gorm:"primaryKey"`
	EmailID     string `json:"email_id" gorm:"index;not null"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Content     []byte `json:"-" gorm:"type:bytea"`
}

// TableName specifies the table name for GORM
func (Attachment) TableName() string {
	return "shipment_attachments"
}

// ShipmentGroup clusters messages under one canonical group code.
// CreatedAt mirrors the earliest member date and UpdatedAt the latest;
// UpdatedAt only ever advances, it is never regressed by a re-sync.
type ShipmentGroup struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index:idx_user_code,unique;not null"`
	Code      string    `json:"code" gorm:"index:idx_user_code,unique;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Members is populated transiently during grouping; persistence goes
	// through the message repository's group-code relation.
	Members []*ShipmentEmail `json:"members,omitempty" gorm:"-"`
}

// TableName specifies the table name for GORM
func (ShipmentGroup) TableName() string {
	return "shipment_groups"
}

// ShipmentSummary caches the AI-extracted structured data for a group.
type ShipmentSummary struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index:idx_user_group_code,unique;not null"`
	GroupCode string    `json:"group_code" gorm:"index:idx_user_group_code,unique;not null"`
	Summary   string    `json:"summary" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (ShipmentSummary) TableName() string {
	return "shipment_summaries"
}
