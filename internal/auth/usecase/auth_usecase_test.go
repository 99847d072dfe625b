package usecase

import (
	"testing"
	"time"

	authdomain "shipmate-backend/internal/auth/domain"
	authdto "shipmate-backend/internal/auth/dto"
	"shipmate-backend/pkg/config"
	"shipmate-backend/pkg/crypto"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	usersByID    map[string]*authdomain.User
	usersByEmail map[string]*authdomain.User
	refreshByTok map[string]*authdomain.RefreshToken
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		usersByID:    make(map[string]*authdomain.User),
		usersByEmail: make(map[string]*authdomain.User),
		refreshByTok: make(map[string]*authdomain.RefreshToken),
	}
}

func (r *fakeUserRepo) Create(user *authdomain.User) error {
	user.ID = uuid.New().String()
	copied := *user
	r.usersByID[user.ID] = &copied
	r.usersByEmail[user.Email] = &copied
	return nil
}

func (r *fakeUserRepo) FindByEmail(email string) (*authdomain.User, error) {
	u, ok := r.usersByEmail[email]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) FindByID(id string) (*authdomain.User, error) {
	u, ok := r.usersByID[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) Update(user *authdomain.User) error {
	copied := *user
	r.usersByID[user.ID] = &copied
	r.usersByEmail[user.Email] = &copied
	return nil
}

func (r *fakeUserRepo) SaveRefreshToken(token *authdomain.RefreshToken) error {
	r.refreshByTok[token.Token] = token
	return nil
}

func (r *fakeUserRepo) FindRefreshToken(token string) (*authdomain.RefreshToken, error) {
	t, ok := r.refreshByTok[token]
	if !ok {
		return nil, nil
	}
	return t, nil
}

func (r *fakeUserRepo) DeleteRefreshToken(token string) error {
	delete(r.refreshByTok, token)
	return nil
}

func (r *fakeUserRepo) DeleteRefreshTokensByUser(userID string) error {
	for tok, t := range r.refreshByTok {
		if t.UserID == userID {
			delete(r.refreshByTok, tok)
		}
	}
	return nil
}

type fakeFCMRepo struct {
	tokens map[string]string // token -> userID
}

func newFakeFCMRepo() *fakeFCMRepo {
	return &fakeFCMRepo{tokens: make(map[string]string)}
}

func (r *fakeFCMRepo) SaveToken(userID, token, deviceInfo string) error {
	r.tokens[token] = userID
	return nil
}

func (r *fakeFCMRepo) GetTokensByUserID(userID string) ([]authdomain.FCMToken, error) {
	var out []authdomain.FCMToken
	for tok, uid := range r.tokens {
		if uid == userID {
			out = append(out, authdomain.FCMToken{Token: tok, UserID: uid})
		}
	}
	return out, nil
}

func (r *fakeFCMRepo) DeleteToken(token string) error {
	delete(r.tokens, token)
	return nil
}

func (r *fakeFCMRepo) DeleteTokensByUserID(userID string) error {
	for tok, uid := range r.tokens {
		if uid == userID {
			delete(r.tokens, tok)
		}
	}
	return nil
}

func newTestAuthUsecase(t *testing.T) (AuthUsecase, *fakeUserRepo) {
	t.Helper()
	cryptoSvc, err := crypto.NewService("test-encryption-secret")
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:        "test-jwt-secret",
		JWTAccessExpiry:  15 * time.Minute,
		JWTRefreshExpiry: 7 * 24 * time.Hour,
	}
	repo := newFakeUserRepo()
	return NewAuthUsecase(repo, newFakeFCMRepo(), cryptoSvc, cfg), repo
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	uc, _ := newTestAuthUsecase(t)

	tokens, err := uc.Register(&authdto.RegisterRequest{
		Email:    "ops@freightco.com",
		Password: "secret123",
		Name:     "Freight Ops",
	})
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)

	// Duplicate registration is rejected
	_, err = uc.Register(&authdto.RegisterRequest{
		Email:    "ops@freightco.com",
		Password: "other",
		Name:     "Dup",
	})
	require.Error(t, err)

	logged, err := uc.Login(&authdto.LoginRequest{Email: "ops@freightco.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, tokens.User.ID, logged.User.ID)

	_, err = uc.Login(&authdto.LoginRequest{Email: "ops@freightco.com", Password: "wrong"})
	require.Error(t, err)
}

func TestValidateAndRefreshToken(t *testing.T) {
	uc, _ := newTestAuthUsecase(t)

	tokens, err := uc.Register(&authdto.RegisterRequest{
		Email:    "ops@freightco.com",
		Password: "secret123",
		Name:     "Freight Ops",
	})
	require.NoError(t, err)

	user, err := uc.ValidateToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ops@freightco.com", user.Email)

	refreshed, err := uc.RefreshToken(tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	// Logout revokes the stored refresh token
	require.NoError(t, uc.Logout(tokens.RefreshToken))
	_, err = uc.RefreshToken(tokens.RefreshToken)
	require.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	uc, _ := newTestAuthUsecase(t)
	_, err := uc.ValidateToken("not-a-jwt")
	require.Error(t, err)
}

func TestConnectMailboxEncryptsPassword(t *testing.T) {
	uc, repo := newTestAuthUsecase(t)

	tokens, err := uc.Register(&authdto.RegisterRequest{
		Email:    "ops@freightco.com",
		Password: "secret123",
		Name:     "Freight Ops",
	})
	require.NoError(t, err)
	userID := tokens.User.ID

	err = uc.ConnectMailbox(userID, &authdto.ConnectMailboxRequest{
		Host:     "imap.freightco.com",
		Password: "app-password",
	})
	require.NoError(t, err)

	// Stored value is sealed, never the plaintext
	stored := repo.usersByID[userID]
	require.NotEmpty(t, stored.ImapPassword)
	assert.NotEqual(t, "app-password", stored.ImapPassword)
	assert.Equal(t, 993, stored.ImapPort)

	identity, creds, err := uc.MailboxCredentials(userID)
	require.NoError(t, err)
	assert.Equal(t, "ops@freightco.com", identity)
	assert.Equal(t, "imap.freightco.com", creds.Host)
	assert.Equal(t, 993, creds.Port)
	assert.Equal(t, "app-password", creds.Password)
}

func TestConnectMailboxRequiresSecret(t *testing.T) {
	uc, _ := newTestAuthUsecase(t)

	tokens, err := uc.Register(&authdto.RegisterRequest{
		Email:    "ops@freightco.com",
		Password: "secret123",
		Name:     "Freight Ops",
	})
	require.NoError(t, err)

	err = uc.ConnectMailbox(tokens.User.ID, &authdto.ConnectMailboxRequest{Host: "imap.freightco.com"})
	require.Error(t, err)
}

func TestMailboxCredentialsBeforeConnect(t *testing.T) {
	uc, _ := newTestAuthUsecase(t)

	tokens, err := uc.Register(&authdto.RegisterRequest{
		Email:    "ops@freightco.com",
		Password: "secret123",
		Name:     "Freight Ops",
	})
	require.NoError(t, err)

	_, _, err = uc.MailboxCredentials(tokens.User.ID)
	assert.ErrorIs(t, err, ErrNoMailbox)
}

func TestDisconnectMailboxClearsCredentials(t *testing.T) {
	uc, _ := newTestAuthUsecase(t)

	tokens, err := uc.Register(&authdto.RegisterRequest{
		Email:    "ops@freightco.com",
		Password: "secret123",
		Name:     "Freight Ops",
	})
	require.NoError(t, err)
	userID := tokens.User.ID

	require.NoError(t, uc.ConnectMailbox(userID, &authdto.ConnectMailboxRequest{
		Host:     "imap.freightco.com",
		Password: "app-password",
	}))
	require.NoError(t, uc.DisconnectMailbox(userID))

	_, _, err = uc.MailboxCredentials(userID)
	assert.ErrorIs(t, err, ErrNoMailbox)
}

type fakeSessionInvalidator struct {
	cleaned []string
}

func (f *fakeSessionInvalidator) Cleanup(identity string) {
	f.cleaned = append(f.cleaned, identity)
}

func TestCredentialRotationInvalidatesLiveSession(t *testing.T) {
	uc, _ := newTestAuthUsecase(t)
	inv := &fakeSessionInvalidator{}
	uc.SetSessionInvalidator(inv)

	tokens, err := uc.Register(&authdto.RegisterRequest{
		Email:    "ops@freightco.com",
		Password: "secret123",
		Name:     "Freight Ops",
	})
	require.NoError(t, err)
	userID := tokens.User.ID

	require.NoError(t, uc.ConnectMailbox(userID, &authdto.ConnectMailboxRequest{
		Host:     "imap.freightco.com",
		Password: "app-password",
	}))
	assert.Equal(t, []string{"ops@freightco.com"}, inv.cleaned)

	// rotating the password tears the old session down again
	require.NoError(t, uc.ConnectMailbox(userID, &authdto.ConnectMailboxRequest{
		Host:     "imap.freightco.com",
		Password: "rotated-password",
	}))
	require.NoError(t, uc.DisconnectMailbox(userID))
	assert.Equal(t, []string{"ops@freightco.com", "ops@freightco.com", "ops@freightco.com"}, inv.cleaned)
}
