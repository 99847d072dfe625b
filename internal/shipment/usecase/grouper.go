package usecase

import (
	"log"
	"sort"
	"time"

	shipmentdomain "shipmate-backend/internal/shipment/domain"
	"shipmate-backend/pkg/groupcode"

	"github.com/google/uuid"
)

// Grouper clusters normalized messages into shipment groups by canonical
// code, with a fuzzy-match second pass for messages whose code only appears
// inside the body text.
type Grouper struct {
	threshold float64
}

// NewGrouper creates a grouper; a non-positive threshold falls back to the
// default similarity threshold.
func NewGrouper(threshold float64) *Grouper {
	if threshold <= 0 {
		threshold = groupcode.DefaultThreshold
	}
	return &Grouper{threshold: threshold}
}

// Group assigns messages to shipment groups. Bucket assignment is
// deterministic: buckets are keyed in first-seen order and fuzzy matching
// walks them in that order, so the same input always yields the same output.
func (g *Grouper) Group(messages []*shipmentdomain.ShipmentEmail) []*shipmentdomain.ShipmentGroup {
	var keys []string
	buckets := make(map[string][]*shipmentdomain.ShipmentEmail)

	attach := func(code string, msg *shipmentdomain.ShipmentEmail) {
		if _, ok := buckets[code]; !ok {
			keys = append(keys, code)
		}
		msg.GroupCode = code
		buckets[code] = append(buckets[code], msg)
	}

	// First pass: messages that already carry a normalizable code.
	var leftover []*shipmentdomain.ShipmentEmail
	for _, msg := range messages {
		if msg.GroupCode == "" || msg.GroupCode == groupcode.Unknown {
			leftover = append(leftover, msg)
			continue
		}
		canonical := groupcode.Normalize(msg.GroupCode)
		if !groupcode.HasCodeShape(canonical) {
			leftover = append(leftover, msg)
			continue
		}
		attach(canonical, msg)
	}

	// Second pass: re-extract from subject and body combined, then fuzzy
	// match against the buckets opened so far.
	for _, msg := range leftover {
		raw, ok := groupcode.Extract(msg.Subject + "\n" + msg.Body)
		if !ok {
			log.Printf("[Grouper] Dropping message %s: no group code found", msg.ID)
			continue
		}
		canonical := groupcode.Normalize(raw)
		if _, exists := buckets[canonical]; exists {
			attach(canonical, msg)
			continue
		}
		if match, found := groupcode.FuzzyMatch(canonical, keys, g.threshold); found {
			attach(match, msg)
			continue
		}
		attach(canonical, msg)
	}

	groups := make([]*shipmentdomain.ShipmentGroup, 0, len(keys))
	for _, code := range keys {
		members := buckets[code]
		if len(members) == 0 {
			continue
		}
		earliest, latest := dateBounds(members)
		groups = append(groups, &shipmentdomain.ShipmentGroup{
			ID:        uuid.New().String(),
			Code:      code,
			CreatedAt: earliest,
			UpdatedAt: latest,
			Members:   members,
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].UpdatedAt.After(groups[j].UpdatedAt)
	})
	return groups
}

func dateBounds(members []*shipmentdomain.ShipmentEmail) (earliest, latest time.Time) {
	earliest = members[0].Date
	latest = members[0].Date
	for _, m := range members[1:] {
		if m.Date.Before(earliest) {
			earliest = m.Date
		}
		if m.Date.After(latest) {
			latest = m.Date
		}
	}
	return earliest, latest
}
