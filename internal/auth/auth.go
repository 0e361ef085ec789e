package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c-pro/geche"
	"github.com/google/uuid"

	"hitch/internal/models"
)

const (
	DefaultTokenExpiry = 24 * time.Hour
	loginFailedMessage = "Login failed"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrInvalidToken = errors.New("invalid or expired token")
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	UserID      string `json:"userId,omitempty"`
	Token       string `json:"token,omitempty"`
	TokenExpiry int64  `json:"tokenExpiry,omitempty"`
}

type UserCredentials struct {
	models.User
	PasswordHash string `json:"passwordHash"`
	// Counter for consecutive failed login attempts to throttle brute force attacks.
	FailedLoginAttempts int64 `json:"failedLoginAttempts"`
	LastAttemptTime     int64 `json:"lastAttemptTime"`
}

func (uc *UserCredentials) ResetFailedLoginAttempts(now time.Time) {
	uc.FailedLoginAttempts = 0
	uc.LastAttemptTime = now.Unix()
}

func (uc *UserCredentials) IncrementFailedLoginAttempts(now time.Time) {
	uc.FailedLoginAttempts++
	uc.LastAttemptTime = now.Unix()
}

// CredentialsStore persists accounts across restarts.
type CredentialsStore interface {
	UpsertCredentials(credentials UserCredentials) error
	ListCredentials() ([]UserCredentials, error)
}

type Config struct {
	Secret      string        `json:"secret"`
	secretBytes []byte        `json:"-"`
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}

	var err error
	c.secretBytes, err = base64.StdEncoding.DecodeString(c.Secret)
	if err != nil {
		return fmt.Errorf("auth secret is not a valid base64: %w", err)
	}

	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}

	return nil
}

type AuthService struct {
	Config
	users      *geche.Locker[string, *UserCredentials]
	liveTokens geche.Geche[string, string]
	store      CredentialsStore
	now        func() time.Time
}

func NewAuthService(ctx context.Context, config Config, store CredentialsStore) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	as := &AuthService{
		Config:     config,
		users:      geche.NewLocker[string, *UserCredentials](geche.NewMapCache[string, *UserCredentials]()),
		liveTokens: geche.NewMapTTLCache[string, string](ctx, config.TokenExpiry, time.Minute),
		store:      store,
		now:        time.Now,
	}

	if store != nil {
		creds, err := store.ListCredentials()
		if err != nil {
			return nil, fmt.Errorf("failed to load credentials: %w", err)
		}
		tx := as.users.Lock()
		for i := range creds {
			c := creds[i]
			tx.Set(c.UserName, &c)
		}
		tx.Unlock()
	}

	return as, nil
}

func (as *AuthService) hashPassword(username, password string) string {
	h := hmac.New(sha512.New, as.secretBytes)
	h.Write([]byte(username + password))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// AddUser creates an account and persists it.
func (as *AuthService) AddUser(username, displayName, role, password string) (models.User, error) {
	tx := as.users.Lock()
	defer tx.Unlock()
	if _, err := tx.Get(username); err == nil {
		return models.User{}, ErrUserExists
	}

	creds := &UserCredentials{
		User: models.User{
			ID:          uuid.NewString(),
			UserName:    username,
			DisplayName: displayName,
			Role:        role,
		},
		PasswordHash: as.hashPassword(username, password),
	}
	tx.Set(username, creds)

	if as.store != nil {
		if err := as.store.UpsertCredentials(*creds); err != nil {
			return models.User{}, fmt.Errorf("failed to persist credentials: %w", err)
		}
	}

	return creds.User, nil
}

func (as *AuthService) Login(req LoginRequest) LoginResponse {
	now := as.now()
	tx := as.users.Lock()
	defer tx.Unlock()
	user, err := tx.Get(req.Username)
	if err != nil {
		return LoginResponse{Success: false, Message: loginFailedMessage}
	}

	// Quadratic delay after repeated failures to throttle brute force.
	if user.FailedLoginAttempts > 3 {
		nextAttempt := user.LastAttemptTime + 30*(user.FailedLoginAttempts*user.FailedLoginAttempts)
		if now.Unix() < nextAttempt {
			return LoginResponse{
				Success: false,
				Message: fmt.Sprintf("Too many failed login attempts. Next attempt in %d seconds", nextAttempt-now.Unix()),
			}
		}
	}

	currentHash := as.hashPassword(req.Username, req.Password)
	if !hmac.Equal([]byte(user.PasswordHash), []byte(currentHash)) {
		user.IncrementFailedLoginAttempts(now)
		// Persist so the throttle survives a restart.
		as.persistCredentials(user)
		return LoginResponse{Success: false, Message: loginFailedMessage}
	}

	token, err := as.generateToken()
	if err != nil {
		slog.Error("login failed", "user_id", user.ID, "error", err)
		return LoginResponse{Success: false, Message: "internal error"}
	}

	as.liveTokens.Set(token, user.ID)
	user.ResetFailedLoginAttempts(now)
	as.persistCredentials(user)

	return LoginResponse{
		Success:     true,
		UserID:      user.ID,
		Token:       token,
		TokenExpiry: now.Unix() + int64(as.TokenExpiry.Seconds()),
	}
}

func (as *AuthService) persistCredentials(creds *UserCredentials) {
	if as.store == nil {
		return
	}
	if err := as.store.UpsertCredentials(*creds); err != nil {
		slog.Warn("failed to persist credentials", "user_id", creds.ID, "error", err)
	}
}

func (as *AuthService) Logoff(token string) error {
	return as.liveTokens.Del(token)
}

// VerifyToken resolves a bearer token to a user id.
func (as *AuthService) VerifyToken(token string) (string, error) {
	userID, err := as.liveTokens.Get(token)
	if err != nil {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// GetUser looks up an account by username.
func (as *AuthService) GetUser(username string) (models.User, bool) {
	tx := as.users.Lock()
	defer tx.Unlock()
	creds, err := tx.Get(username)
	if err != nil {
		return models.User{}, false
	}
	return creds.User, true
}

func (as *AuthService) generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
