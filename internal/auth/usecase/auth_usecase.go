package usecase

import (
	"errors"
	"fmt"
	"time"

	authdomain "shipmate-backend/internal/auth/domain"
	authdto "shipmate-backend/internal/auth/dto"
	"shipmate-backend/internal/auth/repository"
	"shipmate-backend/pkg/config"
	"shipmate-backend/pkg/crypto"
	"shipmate-backend/pkg/mailbox"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNoMailbox is returned when a sync is requested before the user has
// connected a mailbox.
var ErrNoMailbox = errors.New("no mailbox connected for this account")

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	userRepo repository.UserRepository
	fcmRepo  repository.FCMTokenRepository
	crypto   *crypto.Service
	config   *config.Config
	sessions SessionInvalidator
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(userRepo repository.UserRepository, fcmRepo repository.FCMTokenRepository, cryptoSvc *crypto.Service, cfg *config.Config) AuthUsecase {
	return &authUsecase{
		userRepo: userRepo,
		fcmRepo:  fcmRepo,
		crypto:   cryptoSvc,
		config:   cfg,
	}
}

// SetSessionInvalidator allows wiring the connection manager after creation
func (u *authUsecase) SetSessionInvalidator(inv SessionInvalidator) {
	u.sessions = inv
}

func (u *authUsecase) Register(req *authdto.RegisterRequest) (*authdto.TokenResponse, error) {
	existing, err := u.userRepo.FindByEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.New("email already registered")
	}

	hashedPassword, err := repository.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &authdomain.User{
		Email:    req.Email,
		Password: hashedPassword,
		Name:     req.Name,
	}
	if err := u.userRepo.Create(user); err != nil {
		return nil, err
	}

	return u.generateTokens(user)
}

func (u *authUsecase) Login(req *authdto.LoginRequest) (*authdto.TokenResponse, error) {
	user, err := u.userRepo.FindByEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("invalid email or password")
	}

	if !repository.CheckPasswordHash(req.Password, user.Password) {
		return nil, errors.New("invalid email or password")
	}

	return u.generateTokens(user)
}

func (u *authUsecase) RefreshToken(refreshToken string) (*authdto.TokenResponse, error) {
	token, err := jwt.Parse(refreshToken, func(token *jwt.Token) (interface{}, error) {
		return []byte(u.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid refresh token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	storedToken, err := u.userRepo.FindRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if storedToken == nil || storedToken.ExpiresAt.Before(time.Now()) {
		return nil, errors.New("refresh token expired")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("user not found")
	}

	return u.generateTokens(user)
}

func (u *authUsecase) Logout(refreshToken string) error {
	return u.userRepo.DeleteRefreshToken(refreshToken)
}

func (u *authUsecase) ValidateToken(tokenString string) (*authdomain.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(u.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("user not found")
	}
	return user, nil
}

// ConnectMailbox stores a user's IMAP endpoint. The password is encrypted
// before it touches the database.
func (u *authUsecase) ConnectMailbox(userID string, req *authdto.ConnectMailboxRequest) error {
	if req.Password == "" && req.AccessToken == "" {
		return errors.New("either a password or an access token is required")
	}

	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return errors.New("user not found")
	}

	port := req.Port
	if port == 0 {
		port = 993
	}

	user.ImapHost = req.Host
	user.ImapPort = port
	user.AccessToken = req.AccessToken
	user.ImapPassword = ""
	if req.Password != "" {
		sealed, err := u.crypto.Encrypt(req.Password)
		if err != nil {
			return fmt.Errorf("failed to encrypt mailbox password: %w", err)
		}
		user.ImapPassword = sealed
	}

	if err := u.userRepo.Update(user); err != nil {
		return err
	}

	// A session dialed with the previous credentials must not outlive them
	u.invalidateSession(user.Email)
	return nil
}

// DisconnectMailbox clears the stored mailbox credentials
func (u *authUsecase) DisconnectMailbox(userID string) error {
	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return errors.New("user not found")
	}

	user.ImapHost = ""
	user.ImapPort = 0
	user.ImapPassword = ""
	user.AccessToken = ""
	if err := u.userRepo.Update(user); err != nil {
		return err
	}

	u.invalidateSession(user.Email)
	return nil
}

func (u *authUsecase) invalidateSession(identity string) {
	if u.sessions != nil {
		u.sessions.Cleanup(identity)
	}
}

// MailboxCredentials supplies usable credentials to the sync layer. The
// identity is the user's email address, which also keys the connection
// manager's session registry.
func (u *authUsecase) MailboxCredentials(userID string) (string, mailbox.Credentials, error) {
	user, err := u.userRepo.FindByID(userID)
	if err != nil {
		return "", mailbox.Credentials{}, err
	}
	if user == nil {
		return "", mailbox.Credentials{}, errors.New("user not found")
	}
	if !user.HasMailbox() {
		return "", mailbox.Credentials{}, ErrNoMailbox
	}

	creds := mailbox.Credentials{
		Host:        user.ImapHost,
		Port:        user.ImapPort,
		Username:    user.Email,
		AccessToken: user.AccessToken,
	}
	if user.ImapPassword != "" {
		plain, err := u.crypto.Decrypt(user.ImapPassword)
		if err != nil {
			return "", mailbox.Credentials{}, fmt.Errorf("failed to decrypt mailbox password: %w", err)
		}
		creds.Password = plain
	}
	return user.Email, creds, nil
}

func (u *authUsecase) RegisterFCMToken(userID, token, deviceInfo string) error {
	return u.fcmRepo.SaveToken(userID, token, deviceInfo)
}

func (u *authUsecase) UnregisterFCMToken(token string) error {
	return u.fcmRepo.DeleteToken(token)
}

func (u *authUsecase) generateTokens(user *authdomain.User) (*authdto.TokenResponse, error) {
	accessToken, err := u.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := u.generateRefreshToken(user)
	if err != nil {
		return nil, err
	}

	refreshTokenEntity := &authdomain.RefreshToken{
		Token:     refreshToken,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(u.config.JWTRefreshExpiry),
	}
	if err := u.userRepo.SaveRefreshToken(refreshTokenEntity); err != nil {
		return nil, err
	}

	return &authdto.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

func (u *authUsecase) generateAccessToken(user *authdomain.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     time.Now().Add(u.config.JWTAccessExpiry).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(u.config.JWTSecret))
}

func (u *authUsecase) generateRefreshToken(user *authdomain.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"token_id": uuid.New().String(),
		"exp":      time.Now().Add(u.config.JWTRefreshExpiry).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(u.config.JWTSecret))
}
