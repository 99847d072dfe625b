package mailbox

import (
	"fmt"
	"io"

	"github.com/emersion/go-imap"
)

// RawSource tags where a raw payload came from, so decoding stays explicit
// at the boundary instead of switching on dynamic shapes downstream.
type RawSource int

const (
	// SourceFetch is a payload straight off a protocol fetch
	SourceFetch RawSource = iota
	// SourceStored is a payload rebuilt from a persisted record
	SourceStored
)

// RawMessage is the validated raw-message record handed from the fetcher to
// the parser: protocol UID, envelope metadata and the full RFC 822 literal.
type RawMessage struct {
	Source    RawSource
	UID       uint32
	MessageID string
	Envelope  *imap.Envelope
	Body      []byte
}

// decodeFetchedMessage validates one go-imap fetch result into a RawMessage.
// Messages without a readable body section are rejected here rather than
// surfacing half-parsed records downstream.
func decodeFetchedMessage(msg *imap.Message, section *imap.BodySectionName) (*RawMessage, error) {
	if msg == nil {
		return nil, fmt.Errorf("mailbox: nil fetch result")
	}

	literal := msg.GetBody(section)
	if literal == nil {
		return nil, fmt.Errorf("mailbox: message %d has no body section", msg.Uid)
	}

	body, err := io.ReadAll(literal)
	if err != nil {
		return nil, fmt.Errorf("mailbox: reading body of message %d: %w", msg.Uid, err)
	}

	raw := &RawMessage{
		Source:   SourceFetch,
		UID:      msg.Uid,
		Envelope: msg.Envelope,
		Body:     body,
	}
	if msg.Envelope != nil {
		raw.MessageID = msg.Envelope.MessageId
	}
	return raw, nil
}
