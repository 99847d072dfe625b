package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"net/textproto"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
)

// State is the protocol session lifecycle:
// Disconnected -> Connecting -> Ready -> (Fetching)* -> Disconnected.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateFetching
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFetching:
		return "fetching"
	default:
		return "disconnected"
	}
}

const (
	defaultConnectTimeout = 30 * time.Second
	defaultCommandTimeout = 60 * time.Second
	inboxName             = "INBOX"
)

// Credentials are the opaque inputs for session construction, supplied by
// the credential subsystem. Password and AccessToken are mutually exclusive;
// a non-empty AccessToken selects OAUTHBEARER.
type Credentials struct {
	Host        string
	Port        int
	Username    string
	Password    string
	AccessToken string
}

func (c Credentials) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// dialFunc lets tests stand in a fake server connection.
type dialFunc func(addr string, tlsConfig *tls.Config) (*imapclient.Client, error)

// Session owns one authenticated connection to the remote mailbox for a
// given identity. It is safe for concurrent use: syncs sharing the session
// queue their commands on cmdMu, so a search issued while another caller's
// fetch is in flight waits instead of failing.
type Session struct {
	identity string
	creds    Credentials

	mu     sync.Mutex
	state  State
	client *imapclient.Client

	// cmdMu serializes protocol commands on the shared connection
	cmdMu sync.Mutex

	dial           dialFunc
	connectTimeout time.Duration
}

// NewSession creates a disconnected session for identity. A non-positive
// connectTimeout selects the default.
func NewSession(identity string, creds Credentials, connectTimeout time.Duration) *Session {
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	s := &Session{
		identity:       identity,
		creds:          creds,
		state:          StateDisconnected,
		connectTimeout: connectTimeout,
	}
	s.dial = func(addr string, tlsConfig *tls.Config) (*imapclient.Client, error) {
		dialer := &net.Dialer{Timeout: s.connectTimeout}
		return imapclient.DialWithDialerTLS(dialer, addr, tlsConfig)
	}
	return s
}

// Identity returns the mailbox identity this session serves.
func (s *Session) Identity() string {
	return s.identity
}

// IsActive reports whether the session holds a usable connection.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateReady || s.state == StateFetching
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials, authenticates and selects the inbox. Idempotent: calling
// it on a Ready session is a no-op success. Dial and login are bounded by
// the connect timeout; an expired credential surfaces as ErrAuthFailed and
// a timed-out dial as ErrConnectTimeout so callers can tell non-retryable
// from retryable failures.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReady || s.state == StateFetching {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state = StateConnecting
	log.Printf("[IMAP] Connecting to %s as %s", s.creds.addr(), s.identity)

	c, err := s.dial(s.creds.addr(), &tls.Config{ServerName: s.creds.Host})
	if err != nil {
		s.state = StateDisconnected
		var netErr net.Error
		if (errors.As(err, &netErr) && netErr.Timeout()) || ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
		}
		return fmt.Errorf("mailbox: dial %s: %w", s.creds.addr(), err)
	}
	c.Timeout = defaultCommandTimeout

	if err := s.login(c); err != nil {
		_ = c.Logout()
		s.state = StateDisconnected
		if looksLikeAuthFailure(err) {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		return fmt.Errorf("mailbox: login as %s: %w", s.identity, err)
	}

	if _, err := c.Select(inboxName, true); err != nil {
		_ = c.Logout()
		s.state = StateDisconnected
		return fmt.Errorf("mailbox: select %s: %w", inboxName, err)
	}

	s.client = c
	s.state = StateReady
	log.Printf("[IMAP] Session ready for %s", s.identity)
	return nil
}

func (s *Session) login(c *imapclient.Client) error {
	if s.creds.AccessToken != "" {
		return c.Authenticate(sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: s.creds.Username,
			Token:    s.creds.AccessToken,
			Host:     s.creds.Host,
			Port:     s.creds.Port,
		}))
	}
	return c.Login(s.creds.Username, s.creds.Password)
}

// SearchByDateAndKeyword runs a date-bounded, keyword-anchored search and
// fetches the matching bodies. With both bounds zero the range defaults to
// the last day.
func (s *Session) SearchByDateAndKeyword(ctx context.Context, since, before time.Time, keywords []string) ([]*RawMessage, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if since.IsZero() && before.IsZero() {
		since = time.Now().AddDate(0, 0, -1)
	}

	criteria := &imap.SearchCriteria{}
	if !since.IsZero() {
		criteria.Since = since
	}
	if !before.IsZero() {
		criteria.Before = before
	}
	if kw := keywordCriteria(keywords); kw != nil {
		criteria.Not = kw.Not
		criteria.Or = kw.Or
		criteria.Text = kw.Text
	}

	uids, err := s.search(criteria)
	if err != nil {
		return nil, err
	}
	return s.fetchBodies(ctx, uids)
}

// SearchByGroupCode runs an unbounded-date search for the code in subject or
// body. Used to backfill the complete history of a group once its code is
// known.
func (s *Session) SearchByGroupCode(ctx context.Context, code string) ([]*RawMessage, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	criteria := &imap.SearchCriteria{
		Or: [][2]*imap.SearchCriteria{{
			{Header: textproto.MIMEHeader{"Subject": {code}}},
			{Body: []string{code}},
		}},
	}

	uids, err := s.search(criteria)
	if err != nil {
		return nil, err
	}
	return s.fetchBodies(ctx, uids)
}

// FetchBodies bulk-fetches full messages by UID with per-message error
// isolation: a message that fails to decode is logged and excluded, it does
// not abort the batch. Only a failure of the fetch command itself propagates.
func (s *Session) FetchBodies(ctx context.Context, uids []uint32) ([]*RawMessage, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.fetchBodies(ctx, uids)
}

// fetchBodies runs the fetch; the caller holds cmdMu.
func (s *Session) fetchBodies(ctx context.Context, uids []uint32) ([]*RawMessage, error) {
	if len(uids) == 0 {
		return []*RawMessage{}, nil
	}

	c, err := s.commandClient()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.state = StateFetching
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.state == StateFetching {
			s.state = StateReady
		}
		s.mu.Unlock()
	}()

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	raws := make([]*RawMessage, 0, len(uids))
	for msg := range messages {
		raw, err := decodeFetchedMessage(msg, section)
		if err != nil {
			log.Printf("[IMAP] Skipping undecodable message for %s: %v", s.identity, err)
			continue
		}
		raws = append(raws, raw)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("mailbox: fetch for %s: %w", s.identity, err)
	}
	return raws, nil
}

// search runs a UID search; the caller holds cmdMu.
func (s *Session) search(criteria *imap.SearchCriteria) ([]uint32, error) {
	c, err := s.commandClient()
	if err != nil {
		return nil, err
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("mailbox: search for %s: %w", s.identity, err)
	}
	return uids, nil
}

// commandClient hands out the live connection for the next command. A
// session torn down while a caller waited its turn on cmdMu is reported as
// not connected; any connected state is usable since cmdMu already
// guarantees exclusive use.
func (s *Session) commandClient() (*imapclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || s.state == StateDisconnected || s.state == StateConnecting {
		return nil, ErrNotConnected
	}
	return s.client, nil
}

// Disconnect logs out and resets state.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		s.state = StateDisconnected
		return nil
	}
	err := s.client.Logout()
	s.client = nil
	s.state = StateDisconnected
	if err != nil {
		return fmt.Errorf("mailbox: logout for %s: %w", s.identity, err)
	}
	return nil
}

// SafeDisconnect never fails: teardown errors are swallowed and the state is
// force-reset to Disconnected.
func (s *Session) SafeDisconnect() {
	if err := s.Disconnect(); err != nil {
		log.Printf("[IMAP] Ignoring disconnect error for %s: %v", s.identity, err)
	}
}

// keywordCriteria folds a keyword list into an OR chain of TEXT searches.
func keywordCriteria(keywords []string) *imap.SearchCriteria {
	if len(keywords) == 0 {
		return nil
	}
	crit := &imap.SearchCriteria{Text: []string{keywords[0]}}
	for _, kw := range keywords[1:] {
		crit = &imap.SearchCriteria{
			Or: [][2]*imap.SearchCriteria{{crit, {Text: []string{kw}}}},
		}
	}
	return crit
}
