package usecase

import (
	authdomain "shipmate-backend/internal/auth/domain"
	authdto "shipmate-backend/internal/auth/dto"
	"shipmate-backend/pkg/mailbox"
)

// SessionInvalidator tears down the live protocol session for an identity.
// Satisfied by the mailbox connection manager; wired after construction so
// stored credentials and live sessions never disagree.
type SessionInvalidator interface {
	Cleanup(identity string)
}

// AuthUsecase defines the interface for authentication and mailbox
// credential operations
type AuthUsecase interface {
	Register(req *authdto.RegisterRequest) (*authdto.TokenResponse, error)
	Login(req *authdto.LoginRequest) (*authdto.TokenResponse, error)
	RefreshToken(refreshToken string) (*authdto.TokenResponse, error)
	Logout(refreshToken string) error
	ValidateToken(tokenString string) (*authdomain.User, error)

	// ConnectMailbox stores a user's IMAP endpoint with the password
	// encrypted at rest
	ConnectMailbox(userID string, req *authdto.ConnectMailboxRequest) error
	// DisconnectMailbox clears the stored mailbox credentials
	DisconnectMailbox(userID string) error
	// MailboxCredentials supplies usable credentials to the sync layer
	MailboxCredentials(userID string) (identity string, creds mailbox.Credentials, err error)

	RegisterFCMToken(userID, token, deviceInfo string) error
	UnregisterFCMToken(token string) error

	// SetSessionInvalidator allows wiring the connection manager after
	// creation
	SetSessionInvalidator(inv SessionInvalidator)
}
