package usecase

import (
	"strings"

	shipmentdomain "shipmate-backend/internal/shipment/domain"
	"shipmate-backend/pkg/groupcode"
)

// Default classification lists, overridable through config.
var (
	DefaultSpamDomains = []string{
		"mailer-daemon.com",
		"newsletters.example.com",
		"promo.example.com",
	}
	DefaultSpamKeywords = []string{
		"unsubscribe",
		"limited time offer",
		"act now",
		"winner",
		"viagra",
		"lottery",
	}
	DefaultAllowKeywords = []string{
		"shipment",
		"shipping",
		"tracking",
		"container",
		"freight",
		"bill of lading",
		"customs",
		"delivery",
		"eta",
	}
)

// Classifier decides whether a fetched message belongs in the pipeline.
// Spam is checked first: a spam message is dropped even when it carries a
// group code or a relevant keyword.
type Classifier struct {
	spamDomains   []string
	spamKeywords  []string
	allowKeywords []string
}

// NewClassifier creates a classifier; nil lists fall back to the defaults
func NewClassifier(spamDomains, spamKeywords, allowKeywords []string) *Classifier {
	if spamDomains == nil {
		spamDomains = DefaultSpamDomains
	}
	if spamKeywords == nil {
		spamKeywords = DefaultSpamKeywords
	}
	if allowKeywords == nil {
		allowKeywords = DefaultAllowKeywords
	}
	return &Classifier{
		spamDomains:   spamDomains,
		spamKeywords:  spamKeywords,
		allowKeywords: allowKeywords,
	}
}

// IsSpam reports whether the sender domain is denylisted or the subject/body
// hit a spam keyword
func (c *Classifier) IsSpam(msg *shipmentdomain.ShipmentEmail) bool {
	domain := senderDomain(msg.From)
	for _, d := range c.spamDomains {
		if domain == strings.ToLower(d) {
			return true
		}
	}

	text := strings.ToLower(msg.Subject + "\n" + msg.Body)
	for _, kw := range c.spamKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// IsRelevant reports whether a message should be kept: not spam, and either
// keyword-matched or carrying a known group code
func (c *Classifier) IsRelevant(msg *shipmentdomain.ShipmentEmail) bool {
	if c.IsSpam(msg) {
		return false
	}
	if msg.GroupCode != "" && msg.GroupCode != groupcode.Unknown {
		return true
	}

	text := strings.ToLower(msg.Subject + "\n" + msg.Body)
	for _, kw := range c.allowKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// senderDomain pulls the domain out of a display address like
// "Name <user@host>" or a bare "user@host".
func senderDomain(from string) string {
	addr := from
	if start := strings.LastIndex(from, "<"); start >= 0 {
		if end := strings.LastIndex(from, ">"); end > start {
			addr = from[start+1 : end]
		}
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(addr[at+1:]))
}
