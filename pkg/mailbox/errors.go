package mailbox

import (
	"errors"
	"net"
	"strings"
)

var (
	// ErrAuthFailed marks an invalid or expired credential. Non-retryable:
	// the caller must rotate or deactivate the credential, never retry.
	ErrAuthFailed = errors.New("mailbox: authentication failed")

	// ErrConnectTimeout marks a transient connect failure. Retryable.
	ErrConnectTimeout = errors.New("mailbox: connect timeout")

	// ErrNotConnected is returned by search/fetch calls on a torn-down session.
	ErrNotConnected = errors.New("mailbox: session not connected")
)

// IsAuthError reports whether err is the non-retryable credential failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

// IsTransient reports whether err is worth retrying (timeouts, temporary
// network failures).
func IsTransient(err error) bool {
	if errors.Is(err, ErrConnectTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// looksLikeAuthFailure classifies a server login rejection. IMAP servers
// disagree on wording; AUTHENTICATIONFAILED is the RFC 5530 response code.
func looksLikeAuthFailure(err error) bool {
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "AUTHENTICATIONFAILED") ||
		strings.Contains(msg, "AUTHENTICATION FAILED") ||
		strings.Contains(msg, "INVALID CREDENTIALS") ||
		strings.Contains(msg, "LOGIN FAILED")
}
