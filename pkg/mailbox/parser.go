package mailbox

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"time"

	"shipmate-backend/internal/shipment/domain"
	"shipmate-backend/pkg/groupcode"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	// Register charset decoders (windows-1252, iso-8859-*, koi8-r, etc.)
	_ "github.com/emersion/go-message/charset"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// ParseMessage normalizes a raw fetched message into a ShipmentEmail:
// sender/recipient display text, subject, date (falling back to the current
// time), a single text body and decoded attachments. The group code is
// extracted from the subject only; bodies are full of quoted threads and
// produce false positives at this stage.
func ParseMessage(raw *RawMessage) (*domain.ShipmentEmail, error) {
	if raw == nil || len(raw.Body) == 0 {
		return nil, fmt.Errorf("mailbox: empty raw message")
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw.Body))
	if err != nil && mr == nil {
		return nil, fmt.Errorf("mailbox: parsing message %s: %w", raw.MessageID, err)
	}

	email := &domain.ShipmentEmail{
		ID:     raw.MessageID,
		Status: domain.StatusNotProcessed,
	}
	if email.ID == "" {
		email.ID = uuid.New().String()
	}

	email.From, email.To, email.Subject, email.Date = headerFields(raw, mr)
	if email.Date.IsZero() {
		email.Date = time.Now()
	}

	if code, ok := groupcode.Extract(email.Subject); ok {
		email.GroupCode = groupcode.Normalize(code)
	} else {
		email.GroupCode = groupcode.Unknown
	}

	plain, html, attachments := readParts(mr, email.ID)
	email.Body = plain
	if email.Body == "" && html != "" {
		email.Body = stripHTML(html)
	}
	email.Attachments = attachments

	return email, nil
}

// headerFields prefers the protocol envelope and falls back to the MIME
// header; some servers return fetches without an envelope.
func headerFields(raw *RawMessage, mr *mail.Reader) (from, to, subject string, date time.Time) {
	if env := raw.Envelope; env != nil {
		from = formatAddresses(env.From)
		to = formatAddresses(env.To)
		subject = env.Subject
		date = env.Date
	}

	if mr == nil {
		return from, to, subject, date
	}
	if from == "" {
		if addrs, err := mr.Header.AddressList("From"); err == nil {
			from = formatMailAddresses(addrs)
		}
	}
	if to == "" {
		if addrs, err := mr.Header.AddressList("To"); err == nil {
			to = formatMailAddresses(addrs)
		}
	}
	if subject == "" {
		subject, _ = mr.Header.Subject()
	}
	if date.IsZero() {
		date, _ = mr.Header.Date()
	}
	return from, to, subject, date
}

// readParts walks the MIME structure collecting body text and attachments.
// A part with an unsupported encoding is skipped with a warning, not a hard
// failure.
func readParts(mr *mail.Reader, emailID string) (plain, html string, attachments []domain.Attachment) {
	if mr == nil {
		return "", "", nil
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				log.Printf("[IMAP] Skipping part with unsupported encoding: %v", err)
				continue
			}
			log.Printf("[IMAP] Stopping part walk: %v", err)
			break
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			body, err := io.ReadAll(p.Body)
			if err != nil {
				log.Printf("[IMAP] Failed to read inline part: %v", err)
				continue
			}
			contentType, _, _ := h.ContentType()
			switch contentType {
			case "text/plain":
				if plain == "" {
					plain = string(body)
				}
			case "text/html":
				if html == "" {
					html = string(body)
				}
			}
		case *mail.AttachmentHeader:
			content, err := io.ReadAll(p.Body)
			if err != nil {
				log.Printf("[IMAP] Failed to read attachment: %v", err)
				continue
			}
			filename, err := h.Filename()
			if err != nil || filename == "" {
				filename = "attachment"
			}
			contentType, _, _ := h.ContentType()
			attachments = append(attachments, domain.Attachment{
				ID:          uuid.New().String(),
				EmailID:     emailID,
				Filename:    filename,
				ContentType: contentType,
				Size:        int64(len(content)),
				Content:     content,
			})
		}
	}
	return plain, html, attachments
}

func stripHTML(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&quot;", "\"")
	return strings.Join(strings.Fields(s), " ")
}

func formatAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		addr := a.Address()
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, addr))
		} else {
			parts = append(parts, addr)
		}
	}
	return strings.Join(parts, ", ")
}

func formatMailAddresses(addrs []*mail.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.Name, a.Address))
		} else {
			parts = append(parts, a.Address)
		}
	}
	return strings.Join(parts, ", ")
}
