package domain

import "time"

type User struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Password  string    `json:"-"` // Never return password in JSON
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Mailbox connection for shipment ingestion. The IMAP password is
	// stored encrypted, never in the clear.
	ImapHost     string `json:"imap_host,omitempty"`
	ImapPort     int    `json:"imap_port,omitempty"`
	ImapPassword string `json:"-"`
	AccessToken  string `json:"-"` // OAuth bearer token for XOAUTH-capable servers
}

// HasMailbox reports whether the user has connected a mailbox yet
func (u *User) HasMailbox() bool {
	return u.ImapHost != "" && (u.ImapPassword != "" || u.AccessToken != "")
}

type RefreshToken struct {
	Token     string    `json:"token" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"index"`
	ExpiresAt time.Time `json:"expires_at"`
}
