package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	shipmentdomain "shipmate-backend/internal/shipment/domain"
	"shipmate-backend/internal/shipment/repository"
	"shipmate-backend/pkg/config"
	"shipmate-backend/pkg/groupcode"
	"shipmate-backend/pkg/lock"
	"shipmate-backend/pkg/mailbox"
)

// shipmentUsecase implements ShipmentUsecase interface
type shipmentUsecase struct {
	groupRepo    repository.GroupRepository
	messageRepo  repository.MessageRepository
	summaryRepo  repository.SummaryRepository
	sessions     SessionProvider
	creds        CredentialSource
	locks        *lock.Manager
	classifier   *Classifier
	grouper      *Grouper
	syncKeywords []string
	config       *config.Config
	eventService EventService
	extractor    *ExtractWorkerService
}

// NewShipmentUsecase creates a new instance of shipmentUsecase
func NewShipmentUsecase(
	groupRepo repository.GroupRepository,
	messageRepo repository.MessageRepository,
	summaryRepo repository.SummaryRepository,
	sessions SessionProvider,
	creds CredentialSource,
	locks *lock.Manager,
	cfg *config.Config,
) ShipmentUsecase {
	// One default keyword set for both the server-side search and the
	// relevance filter, so they never disagree about what "relevant" means.
	syncKeywords := cfg.SyncKeywords
	if len(syncKeywords) == 0 {
		syncKeywords = DefaultAllowKeywords
	}

	return &shipmentUsecase{
		groupRepo:    groupRepo,
		messageRepo:  messageRepo,
		summaryRepo:  summaryRepo,
		sessions:     sessions,
		creds:        creds,
		locks:        locks,
		classifier:   NewClassifier(cfg.SpamDomains, cfg.SpamKeywords, syncKeywords),
		grouper:      NewGrouper(cfg.SimilarityThreshold),
		syncKeywords: syncKeywords,
		config:       cfg,
	}
}

// SetEventService allows wiring EventService after creation
func (u *shipmentUsecase) SetEventService(svc EventService) {
	u.eventService = svc
}

// SetExtractWorker allows wiring the extraction worker after creation
func (u *shipmentUsecase) SetExtractWorker(w *ExtractWorkerService) {
	u.extractor = w
}

// SyncRange runs a full sweep over a date range, serialized per user.
// Concurrent callers for the same user coalesce onto the in-flight sweep.
func (u *shipmentUsecase) SyncRange(ctx context.Context, userID string, since, before time.Time) (*SyncReport, error) {
	key := userID + "_sweep"
	res, err := u.locks.Acquire(key, u.lockTimeout(), func() (any, error) {
		return u.syncRange(context.WithoutCancel(ctx), userID, since, before)
	})
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, ErrSyncBusy
		}
		return nil, err
	}
	return res.(*SyncReport), nil
}

// SyncGroup runs a targeted lookup for one code, serialized per (user, code)
func (u *shipmentUsecase) SyncGroup(ctx context.Context, userID, code string) (*SyncReport, error) {
	canonical := groupcode.Normalize(code)
	if !groupcode.HasCodeShape(canonical) {
		return nil, fmt.Errorf("invalid group code %q", code)
	}

	key := userID + "_" + canonical
	res, err := u.locks.Acquire(key, u.lockTimeout(), func() (any, error) {
		return u.syncGroup(context.WithoutCancel(ctx), userID, canonical)
	})
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return nil, ErrSyncBusy
		}
		return nil, err
	}
	return res.(*SyncReport), nil
}

func (u *shipmentUsecase) syncRange(ctx context.Context, userID string, since, before time.Time) (*SyncReport, error) {
	identity, creds, err := u.creds.MailboxCredentials(userID)
	if err != nil {
		return nil, err
	}
	sess, err := u.sessions.Acquire(ctx, identity, creds)
	if err != nil {
		return nil, err
	}
	defer u.sessions.Release(identity)

	initial, err := sess.SearchByDateAndKeyword(ctx, since, before, u.syncKeywords)
	if err != nil {
		return nil, err
	}

	// Candidate codes: every code visible in the initial set's subjects,
	// plus every code already tracked so known groups get rechecked too.
	codes := candidateCodes(initial)
	known, err := u.groupRepo.ListGroupCodes(userID)
	if err != nil {
		return nil, err
	}
	codes = unionCodes(codes, known)

	// Extended search: pull each group's complete history, then merge by
	// message id with extended results taking precedence.
	merged := newRawSet(initial)
	for _, code := range codes {
		extended, err := sess.SearchByGroupCode(ctx, code)
		if err != nil {
			log.Printf("[Sync] Extended search for %s failed, keeping initial results: %v", code, err)
			continue
		}
		merged.replaceOrAdd(extended)
	}

	messages := u.parseAndFilter(userID, merged.ordered())
	groups := u.grouper.Group(messages)
	report := u.persistGroups(userID, groups)
	u.notifySyncDone(userID, report)
	return report, nil
}

func (u *shipmentUsecase) syncGroup(ctx context.Context, userID, canonical string) (*SyncReport, error) {
	identity, creds, err := u.creds.MailboxCredentials(userID)
	if err != nil {
		return nil, err
	}
	sess, err := u.sessions.Acquire(ctx, identity, creds)
	if err != nil {
		return nil, err
	}
	defer u.sessions.Release(identity)

	raws, err := sess.SearchByGroupCode(ctx, canonical)
	if err != nil {
		return nil, err
	}

	messages := u.parseAndFilter(userID, raws)
	groups := u.grouper.Group(messages)

	// Fuzzy matching can pull near-miss codes into the result set. Keep
	// only the group whose canonical code is the one that was asked for.
	kept := groups[:0]
	for _, g := range groups {
		if g.Code == canonical {
			kept = append(kept, g)
		}
	}

	report := u.persistGroups(userID, kept)
	u.notifySyncDone(userID, report)
	return report, nil
}

// parseAndFilter normalizes raw messages and drops spam/irrelevant ones.
// A message that fails to parse is logged and skipped, never fatal.
func (u *shipmentUsecase) parseAndFilter(userID string, raws []*mailbox.RawMessage) []*shipmentdomain.ShipmentEmail {
	messages := make([]*shipmentdomain.ShipmentEmail, 0, len(raws))
	for _, raw := range raws {
		msg, err := mailbox.ParseMessage(raw)
		if err != nil {
			log.Printf("[Sync] Skipping unparsable message: %v", err)
			continue
		}
		if !u.classifier.IsRelevant(msg) {
			continue
		}
		msg.UserID = userID
		messages = append(messages, msg)
	}
	return messages
}

// persistGroups reconciles in-memory groups against stored state: create
// missing groups, save only unseen messages, and advance updated_at only
// when something new actually landed. Per-group errors are logged and
// skipped so one bad group cannot abort the sweep.
func (u *shipmentUsecase) persistGroups(userID string, groups []*shipmentdomain.ShipmentGroup) *SyncReport {
	report := &SyncReport{}

	for _, grp := range groups {
		existing, err := u.groupRepo.GetGroup(userID, grp.Code)
		if err != nil {
			log.Printf("[Sync] Failed to load group %s: %v", grp.Code, err)
			continue
		}

		created := false
		if existing == nil {
			record := &shipmentdomain.ShipmentGroup{
				ID:        grp.ID,
				UserID:    userID,
				Code:      grp.Code,
				CreatedAt: grp.CreatedAt,
				UpdatedAt: grp.UpdatedAt,
			}
			if err := u.groupRepo.CreateGroup(record); err != nil {
				log.Printf("[Sync] Failed to create group %s: %v", grp.Code, err)
				continue
			}
			created = true
		}

		inserted, err := u.messageRepo.SaveMessagesIfNew(userID, grp.Members)
		if err != nil {
			log.Printf("[Sync] Failed to save messages for group %s: %v", grp.Code, err)
		}

		report.GroupsSeen++
		report.NewMessages += len(inserted)

		switch {
		case created:
			report.CreatedGroups = append(report.CreatedGroups, grp.Code)
			u.sendEvent(userID, "shipment_group_created", map[string]interface{}{
				"group_code":   grp.Code,
				"new_messages": len(inserted),
			})
		case len(inserted) > 0:
			if err := u.groupRepo.TouchGroup(userID, grp.Code, grp.UpdatedAt); err != nil {
				log.Printf("[Sync] Failed to touch group %s: %v", grp.Code, err)
			}
			report.UpdatedGroups = append(report.UpdatedGroups, grp.Code)
			u.sendEvent(userID, "shipment_group_updated", map[string]interface{}{
				"group_code":   grp.Code,
				"new_messages": len(inserted),
			})
		}

		if len(inserted) > 0 && u.extractor != nil {
			u.extractor.Enqueue(ExtractJob{UserID: userID, GroupCode: grp.Code})
		}
	}
	return report
}

func (u *shipmentUsecase) notifySyncDone(userID string, report *SyncReport) {
	u.sendEvent(userID, "shipment_sync_completed", report)
}

func (u *shipmentUsecase) sendEvent(userID, eventType string, payload interface{}) {
	if u.eventService == nil {
		return
	}
	u.eventService.SendToUser(userID, eventType, payload)
}

func (u *shipmentUsecase) lockTimeout() time.Duration {
	if u.config.LockTimeout > 0 {
		return u.config.LockTimeout
	}
	return lock.DefaultTimeout
}

// ListGroups returns the user's groups, most recently updated first
func (u *shipmentUsecase) ListGroups(userID string) ([]shipmentdomain.ShipmentGroup, error) {
	return u.groupRepo.ListGroups(userID)
}

// CountMessages returns per-group message counts keyed by group code
func (u *shipmentUsecase) CountMessages(userID string) (map[string]int, error) {
	return u.messageRepo.CountByGroup(userID)
}

// GetGroupMessages returns a group's messages oldest first
func (u *shipmentUsecase) GetGroupMessages(userID, code string) ([]shipmentdomain.ShipmentEmail, error) {
	return u.messageRepo.GetMessagesByGroup(userID, groupcode.Normalize(code))
}

// GetMessage returns one message with attachments
func (u *shipmentUsecase) GetMessage(userID, messageID string) (*shipmentdomain.ShipmentEmail, error) {
	return u.messageRepo.GetMessage(userID, messageID)
}

// GetSummaries returns cached extraction results keyed by group code
func (u *shipmentUsecase) GetSummaries(userID string, codes []string) (map[string]string, error) {
	normalized := make([]string, 0, len(codes))
	for _, c := range codes {
		normalized = append(normalized, groupcode.Normalize(c))
	}
	return u.summaryRepo.GetSummaries(userID, normalized)
}

// candidateCodes extracts every normalizable group code visible in the
// fetched subjects, in first-seen order.
func candidateCodes(raws []*mailbox.RawMessage) []string {
	var codes []string
	seen := make(map[string]bool)
	for _, raw := range raws {
		if raw.Envelope == nil {
			continue
		}
		code, ok := groupcode.Extract(raw.Envelope.Subject)
		if !ok {
			continue
		}
		canonical := groupcode.Normalize(code)
		if !groupcode.HasCodeShape(canonical) || seen[canonical] {
			continue
		}
		seen[canonical] = true
		codes = append(codes, canonical)
	}
	return codes
}

func unionCodes(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, c := range a {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range b {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// rawSet merges overlapping fetches by message id, preserving first-seen
// order. Later entries replace earlier ones with the same id.
type rawSet struct {
	order []string
	byID  map[string]*mailbox.RawMessage
}

func newRawSet(initial []*mailbox.RawMessage) *rawSet {
	s := &rawSet{byID: make(map[string]*mailbox.RawMessage)}
	s.replaceOrAdd(initial)
	return s
}

func (s *rawSet) replaceOrAdd(raws []*mailbox.RawMessage) {
	for _, raw := range raws {
		key := rawKey(raw)
		if _, ok := s.byID[key]; !ok {
			s.order = append(s.order, key)
		}
		s.byID[key] = raw
	}
}

func (s *rawSet) ordered() []*mailbox.RawMessage {
	out := make([]*mailbox.RawMessage, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.byID[key])
	}
	return out
}

func rawKey(raw *mailbox.RawMessage) string {
	if raw.MessageID != "" {
		return raw.MessageID
	}
	return fmt.Sprintf("uid:%d", raw.UID)
}
