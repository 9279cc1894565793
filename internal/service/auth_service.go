package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"todo-planner/internal/model"
	"todo-planner/internal/repository"
)

const defaultSessionTTL = 7 * 24 * time.Hour

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
}

type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	FindByToken(ctx context.Context, token string) (*model.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Credentials is the register/login payload.
type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,max=72"`
	Name     string
}

// AuthConfig tunes session lifetime and hashing cost.
type AuthConfig struct {
	SessionTTL time.Duration
	HashCost   int
}

// AuthService registers users and issues cookie sessions.
type AuthService struct {
	users    UserStore
	sessions SessionStore
	clock    Clock
	cfg      AuthConfig
	log      *slog.Logger
}

func NewAuthService(users UserStore, sessions SessionStore, clock Clock, cfg AuthConfig, log *slog.Logger) *AuthService {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{users: users, sessions: sessions, clock: clock, cfg: cfg, log: log}
}

// SessionTTL is how long issued sessions stay valid.
func (s *AuthService) SessionTTL() time.Duration { return s.cfg.SessionTTL }

// Register creates an account and logs it in.
func (s *AuthService) Register(ctx context.Context, creds Credentials) (*model.User, *model.Session, error) {
	creds.Email = normalizeEmail(creds.Email)
	if err := validateCredentials(creds); err != nil {
		return nil, nil, err
	}

	_, err := s.users.FindByEmail(ctx, creds.Email)
	switch {
	case err == nil:
		return nil, nil, ErrEmailTaken
	case !errors.Is(err, repository.ErrNotFound):
		return nil, nil, &StoreError{Op: "find user", Err: err}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.cfg.HashCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{Email: creds.Email, PasswordHash: string(hash), Name: strings.TrimSpace(creds.Name)}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, &StoreError{Op: "create user", Err: err}
	}

	session, err := s.issue(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("user registered", "user", user.ID)
	return user, session, nil
}

// Login checks the password and issues a new session.
func (s *AuthService) Login(ctx context.Context, creds Credentials) (*model.User, *model.Session, error) {
	creds.Email = normalizeEmail(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return nil, nil, &ValidationError{Field: "email", Message: "email and password required"}
	}

	user, err := s.users.FindByEmail(ctx, creds.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, &StoreError{Op: "find user", Err: err}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	session, err := s.issue(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// Authenticate resolves a session token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	session, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, &StoreError{Op: "find session", Err: err}
	}
	if session.Expired(s.clock.Now()) {
		return nil, ErrUnauthenticated
	}
	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, &StoreError{Op: "find user", Err: err}
	}
	return user, nil
}

// Logout ends a session. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return &StoreError{Op: "delete session", Err: err}
	}
	return nil
}

// PurgeExpiredSessions drops sessions past their expiry.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, &StoreError{Op: "purge sessions", Err: err}
	}
	if n > 0 {
		s.log.Info("expired sessions deleted", "count", n)
	}
	return n, nil
}

func (s *AuthService) issue(ctx context.Context, userID string) (*model.Session, error) {
	session := &model.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: s.clock.Now().Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, &StoreError{Op: "create session", Err: err}
	}
	return session, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(creds Credentials) error {
	err := validate.Struct(creds)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		msg := "is required"
		switch fe.Tag() {
		case "email":
			msg = "must be a valid email address"
		case "max":
			msg = "must be at most 72 bytes"
		}
		return &ValidationError{Field: lowerFirst(fe.Field()), Message: msg}
	}
	return &ValidationError{Field: "input", Message: err.Error()}
}
