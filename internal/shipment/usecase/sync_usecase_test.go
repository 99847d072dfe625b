package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	shipmentdomain "shipmate-backend/internal/shipment/domain"
	"shipmate-backend/pkg/config"
	"shipmate-backend/pkg/lock"
	"shipmate-backend/pkg/mailbox"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeGroupRepo struct {
	mu     sync.Mutex
	groups map[string]*shipmentdomain.ShipmentGroup
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{groups: make(map[string]*shipmentdomain.ShipmentGroup)}
}

func (r *fakeGroupRepo) GetGroup(userID, code string) (*shipmentdomain.ShipmentGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[userID+"/"+code]
	if !ok {
		return nil, nil
	}
	copied := *g
	return &copied, nil
}

func (r *fakeGroupRepo) CreateGroup(group *shipmentdomain.ShipmentGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *group
	r.groups[group.UserID+"/"+group.Code] = &copied
	return nil
}

func (r *fakeGroupRepo) TouchGroup(userID, code string, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[userID+"/"+code]; ok && g.UpdatedAt.Before(updatedAt) {
		g.UpdatedAt = updatedAt
	}
	return nil
}

func (r *fakeGroupRepo) ListGroups(userID string) ([]shipmentdomain.ShipmentGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shipmentdomain.ShipmentGroup
	for _, g := range r.groups {
		if g.UserID == userID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *fakeGroupRepo) ListGroupCodes(userID string) ([]string, error) {
	groups, _ := r.ListGroups(userID)
	codes := make([]string, 0, len(groups))
	for _, g := range groups {
		codes = append(codes, g.Code)
	}
	return codes, nil
}

func (r *fakeGroupRepo) DeleteGroup(userID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.groups, userID+"/"+code)
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[string]*shipmentdomain.ShipmentEmail
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[string]*shipmentdomain.ShipmentEmail)}
}

func (r *fakeMessageRepo) SaveMessagesIfNew(userID string, messages []*shipmentdomain.ShipmentEmail) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var inserted []string
	for _, m := range messages {
		if _, ok := r.messages[m.ID]; ok {
			continue
		}
		copied := *m
		copied.UserID = userID
		r.messages[m.ID] = &copied
		inserted = append(inserted, m.ID)
	}
	return inserted, nil
}

func (r *fakeMessageRepo) GetMessagesByGroup(userID, code string) ([]shipmentdomain.ShipmentEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shipmentdomain.ShipmentEmail
	for _, m := range r.messages {
		if m.UserID == userID && m.GroupCode == code {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *fakeMessageRepo) GetMessage(userID, messageID string) (*shipmentdomain.ShipmentEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageID]
	if !ok || m.UserID != userID {
		return nil, nil
	}
	copied := *m
	return &copied, nil
}

func (r *fakeMessageRepo) CountByGroup(userID string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, m := range r.messages {
		if m.UserID == userID {
			counts[m.GroupCode]++
		}
	}
	return counts, nil
}

func (r *fakeMessageRepo) ListByStatus(userID string, status shipmentdomain.ProcessingStatus, limit int) ([]shipmentdomain.ShipmentEmail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shipmentdomain.ShipmentEmail
	for _, m := range r.messages {
		if m.UserID == userID && m.Status == status {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) UpdateStatus(messageID string, status shipmentdomain.ProcessingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[messageID]; ok {
		m.Status = status
	}
	return nil
}

func (r *fakeMessageRepo) ResetStuckProcessing() (int64, error) {
	return 0, nil
}

type fakeSummaryRepo struct {
	mu        sync.Mutex
	summaries map[string]string
}

func newFakeSummaryRepo() *fakeSummaryRepo {
	return &fakeSummaryRepo{summaries: make(map[string]string)}
}

func (r *fakeSummaryRepo) GetSummary(userID, groupCode string) (*shipmentdomain.ShipmentSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	text, ok := r.summaries[userID+"/"+groupCode]
	if !ok {
		return nil, nil
	}
	return &shipmentdomain.ShipmentSummary{UserID: userID, GroupCode: groupCode, Summary: text}, nil
}

func (r *fakeSummaryRepo) GetSummaries(userID string, groupCodes []string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string)
	for _, code := range groupCodes {
		if text, ok := r.summaries[userID+"/"+code]; ok {
			out[code] = text
		}
	}
	return out, nil
}

func (r *fakeSummaryRepo) SaveSummary(userID, groupCode, summary string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries[userID+"/"+groupCode] = summary
	return nil
}

func (r *fakeSummaryRepo) DeleteSummary(userID, groupCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.summaries, userID+"/"+groupCode)
	return nil
}

type fakeSession struct {
	mu           sync.Mutex
	initial      []*mailbox.RawMessage
	byCode       map[string][]*mailbox.RawMessage
	codeSearches []string
	usedKeywords []string
}

func (s *fakeSession) SearchByDateAndKeyword(ctx context.Context, since, before time.Time, keywords []string) ([]*mailbox.RawMessage, error) {
	s.mu.Lock()
	s.usedKeywords = keywords
	s.mu.Unlock()
	return s.initial, nil
}

func (s *fakeSession) SearchByGroupCode(ctx context.Context, code string) ([]*mailbox.RawMessage, error) {
	s.mu.Lock()
	s.codeSearches = append(s.codeSearches, code)
	s.mu.Unlock()
	return s.byCode[code], nil
}

type fakeProvider struct {
	mu       sync.Mutex
	session  *fakeSession
	releases int
}

func (p *fakeProvider) Acquire(ctx context.Context, identity string, creds mailbox.Credentials) (MailSession, error) {
	return p.session, nil
}

func (p *fakeProvider) Release(identity string) {
	p.mu.Lock()
	p.releases++
	p.mu.Unlock()
}

type fakeCreds struct{}

func (fakeCreds) MailboxCredentials(userID string) (string, mailbox.Credentials, error) {
	return "user@example.com", mailbox.Credentials{Host: "imap.example.com", Port: 993, Username: "user@example.com"}, nil
}

type recordedEvent struct {
	UserID    string
	EventType string
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (e *fakeEvents) SendToUser(userID, eventType string, payload interface{}) {
	e.mu.Lock()
	e.events = append(e.events, recordedEvent{UserID: userID, EventType: eventType})
	e.mu.Unlock()
}

func (e *fakeEvents) ofType(eventType string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

// --- helpers ---

func testRaw(id, subject string, date time.Time, body string) *mailbox.RawMessage {
	literal := fmt.Sprintf(
		"From: Freight Ops <ops@freightco.com>\r\nTo: me@example.com\r\nSubject: %s\r\nDate: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		subject, date.Format(time.RFC1123Z), body)
	return &mailbox.RawMessage{
		Source:    mailbox.SourceFetch,
		MessageID: id,
		Envelope:  &imap.Envelope{Subject: subject, Date: date},
		Body:      []byte(literal),
	}
}

type syncHarness struct {
	uc       ShipmentUsecase
	groups   *fakeGroupRepo
	messages *fakeMessageRepo
	provider *fakeProvider
	events   *fakeEvents
}

func newSyncHarness(t *testing.T, session *fakeSession, cfg *config.Config) *syncHarness {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	h := &syncHarness{
		groups:   newFakeGroupRepo(),
		messages: newFakeMessageRepo(),
		provider: &fakeProvider{session: session},
		events:   &fakeEvents{},
	}
	uc := NewShipmentUsecase(h.groups, h.messages, newFakeSummaryRepo(), h.provider, fakeCreds{}, lock.NewManager(), cfg)
	uc.(*shipmentUsecase).SetEventService(h.events)
	h.uc = uc
	return h
}

// --- tests ---

func TestSyncRangeExtendedSearchUnion(t *testing.T) {
	dec := func(day int) time.Time { return time.Date(2024, 12, day, 10, 0, 0, 0, time.UTC) }

	msgA := testRaw("<a@x>", "Shipment SH-123456 booked", dec(2), "Booking confirmed for your shipment.")
	msgB := testRaw("<b@x>", "Container question", dec(3), "Regarding shipment 123456, the container paperwork is attached.")
	msgC := testRaw("<c@x>", "SH-123456 departed", dec(4), "The shipment has left the port.")

	session := &fakeSession{
		initial: []*mailbox.RawMessage{msgA, msgB},
		byCode: map[string][]*mailbox.RawMessage{
			"123456": {msgA, msgC},
		},
	}

	h := newSyncHarness(t, session, nil)
	report, err := h.uc.SyncRange(context.Background(), "u1", dec(1), dec(5))
	require.NoError(t, err)

	// A appears in both fetches but is saved exactly once.
	assert.Equal(t, 3, report.NewMessages)
	assert.Equal(t, []string{"123456"}, report.CreatedGroups)
	assert.Contains(t, session.codeSearches, "123456")

	stored, err := h.messages.GetMessagesByGroup("u1", "123456")
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	assert.Equal(t, 1, h.provider.releases)
}

func TestSyncRangeBackfillsFullGroupHistory(t *testing.T) {
	msg1 := testRaw("<m1@x>", "SH-123456 booked", time.Date(2024, 12, 2, 9, 0, 0, 0, time.UTC), "Shipment booked.")
	msg2 := testRaw("<m2@x>", "SH-123456 departed", time.Date(2024, 12, 4, 16, 0, 0, 0, time.UTC), "Shipment departed.")
	msg0 := testRaw("<m0@x>", "SH-123456 quote", time.Date(2024, 11, 20, 8, 0, 0, 0, time.UTC), "Shipment quote attached.")

	session := &fakeSession{
		initial: []*mailbox.RawMessage{msg1, msg2},
		byCode: map[string][]*mailbox.RawMessage{
			"123456": {msg1, msg2, msg0},
		},
	}

	h := newSyncHarness(t, session, nil)
	report, err := h.uc.SyncRange(context.Background(),
		"u1",
		time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 3, report.NewMessages)

	group, err := h.groups.GetGroup("u1", "123456")
	require.NoError(t, err)
	require.NotNil(t, group)
	assert.Equal(t, time.Date(2024, 11, 20, 8, 0, 0, 0, time.UTC), group.CreatedAt)
	assert.Equal(t, time.Date(2024, 12, 4, 16, 0, 0, 0, time.UTC), group.UpdatedAt)
}

func TestSyncRangeIdempotent(t *testing.T) {
	msg := testRaw("<m1@x>", "SH-123456 booked", time.Date(2024, 12, 2, 9, 0, 0, 0, time.UTC), "Shipment booked.")
	session := &fakeSession{
		initial: []*mailbox.RawMessage{msg},
		byCode:  map[string][]*mailbox.RawMessage{"123456": {msg}},
	}

	h := newSyncHarness(t, session, nil)
	since := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC)

	first, err := h.uc.SyncRange(context.Background(), "u1", since, before)
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewMessages)

	groupBefore, err := h.groups.GetGroup("u1", "123456")
	require.NoError(t, err)

	second, err := h.uc.SyncRange(context.Background(), "u1", since, before)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewMessages)
	assert.Empty(t, second.CreatedGroups)
	assert.Empty(t, second.UpdatedGroups)

	groupAfter, err := h.groups.GetGroup("u1", "123456")
	require.NoError(t, err)
	assert.Equal(t, groupBefore.UpdatedAt, groupAfter.UpdatedAt)
	assert.Equal(t, 0, h.events.ofType("shipment_group_updated"))
	assert.Equal(t, 2, h.provider.releases)
}

func TestSyncRangeRechecksKnownGroups(t *testing.T) {
	// No new mail in range, but a previously tracked group gained history.
	old := testRaw("<old@x>", "SH-777888 delivered", time.Date(2024, 12, 6, 12, 0, 0, 0, time.UTC), "Shipment delivered.")
	session := &fakeSession{
		initial: nil,
		byCode:  map[string][]*mailbox.RawMessage{"777888": {old}},
	}

	h := newSyncHarness(t, session, nil)
	require.NoError(t, h.groups.CreateGroup(&shipmentdomain.ShipmentGroup{
		ID: "g1", UserID: "u1", Code: "777888",
		CreatedAt: time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
	}))

	report, err := h.uc.SyncRange(context.Background(),
		"u1",
		time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 1, report.NewMessages)
	assert.Equal(t, []string{"777888"}, report.UpdatedGroups)

	group, err := h.groups.GetGroup("u1", "777888")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 6, 12, 0, 0, 0, time.UTC), group.UpdatedAt)
}

func TestSyncGroupFiltersForeignCodes(t *testing.T) {
	dec := func(day int) time.Time { return time.Date(2024, 12, day, 10, 0, 0, 0, time.UTC) }

	wanted := testRaw("<w@x>", "SH-123456 update", dec(2), "Shipment on schedule.")
	// A body-text search for 123456 can also surface mail about a close code.
	foreign := testRaw("<f@x>", "SH-123457 update", dec(3), "Different shipment entirely.")

	session := &fakeSession{
		byCode: map[string][]*mailbox.RawMessage{
			"123456": {wanted, foreign},
		},
	}

	h := newSyncHarness(t, session, nil)
	report, err := h.uc.SyncGroup(context.Background(), "u1", "SH-123456")
	require.NoError(t, err)

	assert.Equal(t, []string{"123456"}, report.CreatedGroups)
	stored, err := h.messages.GetMessagesByGroup("u1", "123456")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "<w@x>", stored[0].ID)

	other, err := h.groups.GetGroup("u1", "123457")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSyncGroupRejectsInvalidCode(t *testing.T) {
	h := newSyncHarness(t, &fakeSession{}, nil)
	_, err := h.uc.SyncGroup(context.Background(), "u1", "not-a-code")
	assert.Error(t, err)
}

func TestSyncRangeBusyWhenLockHeld(t *testing.T) {
	session := &fakeSession{}
	cfg := &config.Config{LockTimeout: 50 * time.Millisecond}

	h := newSyncHarness(t, session, cfg)
	locks := h.uc.(*shipmentUsecase).locks

	started := make(chan struct{})
	go func() {
		_, _ = locks.Acquire("u1_sweep", time.Second, func() (any, error) {
			close(started)
			time.Sleep(300 * time.Millisecond)
			return &SyncReport{}, nil
		})
	}()
	<-started

	_, err := h.uc.SyncRange(context.Background(), "u1", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrSyncBusy)
}

func TestSyncRangeDropsSpam(t *testing.T) {
	dec2 := time.Date(2024, 12, 2, 10, 0, 0, 0, time.UTC)
	spam := testRaw("<s@x>", "Shipment SH-123456 winner", dec2, "You are our lottery winner, act now!")
	ok := testRaw("<k@x>", "SH-123456 booked", dec2, "Shipment booked.")

	session := &fakeSession{
		initial: []*mailbox.RawMessage{spam, ok},
		byCode:  map[string][]*mailbox.RawMessage{"123456": {spam, ok}},
	}

	h := newSyncHarness(t, session, nil)
	report, err := h.uc.SyncRange(context.Background(), "u1", dec2.AddDate(0, 0, -1), dec2.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, report.NewMessages)
	stored, err := h.messages.GetMessagesByGroup("u1", "123456")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "<k@x>", stored[0].ID)
}

func TestSyncRangeDefaultKeywordsMatchClassifier(t *testing.T) {
	dec2 := time.Date(2024, 12, 2, 10, 0, 0, 0, time.UTC)
	session := &fakeSession{
		initial: []*mailbox.RawMessage{testRaw("<a@x>", "SH-123456 booked", dec2, "Shipment booked.")},
		byCode:  map[string][]*mailbox.RawMessage{},
	}

	// no SYNC_KEYWORDS configured: the search must still be keyword
	// anchored, with the same default set the relevance filter uses
	h := newSyncHarness(t, session, &config.Config{})
	_, err := h.uc.SyncRange(context.Background(), "u1", dec2.AddDate(0, 0, -1), dec2.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, DefaultAllowKeywords, session.usedKeywords)
}

func TestSyncRangeConfiguredKeywordsReachSearch(t *testing.T) {
	dec2 := time.Date(2024, 12, 2, 10, 0, 0, 0, time.UTC)

	keyworded := testRaw("<f@x>", "Freight booking SH-123456", dec2, "Your freight is booked.")
	session := &fakeSession{
		initial: []*mailbox.RawMessage{keyworded},
		byCode:  map[string][]*mailbox.RawMessage{},
	}

	h := newSyncHarness(t, session, &config.Config{SyncKeywords: []string{"freight"}})
	report, err := h.uc.SyncRange(context.Background(), "u1", dec2.AddDate(0, 0, -1), dec2.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.Equal(t, []string{"freight"}, session.usedKeywords)
	assert.Equal(t, 1, report.NewMessages)
}
