// Package identity implements email/password accounts and session tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/igorgomez/medidascorporais/internal/auth"
)

var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountCreation covers every sign-up failure.
	ErrAccountCreation = errors.New("account creation failed")
	// ErrSignOut covers every sign-out failure.
	ErrSignOut = errors.New("sign out failed")
	// ErrEmailTaken is returned by an AccountStore for duplicate emails.
	ErrEmailTaken = errors.New("email already registered")
	// ErrAccountNotFound is returned when a token names an account that no longer exists.
	ErrAccountNotFound = errors.New("account not found")
)

// Account is a stored identity.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// AccountStore captures persistence operations for accounts and revoked tokens.
type AccountStore interface {
	CreateAccount(ctx context.Context, account Account) error
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	RevokeToken(ctx context.Context, tokenID, userID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Credentials is the sign-in / sign-up payload.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// User is the public view of an account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is returned after a successful sign-in or sign-up.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// Provider issues sessions for accounts held in an AccountStore.
type Provider struct {
	store    AccountStore
	cfg      auth.Config
	ttl      time.Duration
	now      func() time.Time
	validate *validator.Validate
	logger   *zap.Logger
	cost     int
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(p *Provider) { p.cost = cost }
}

// NewProvider constructs a Provider signing tokens with cfg valid for ttl.
func NewProvider(store AccountStore, cfg auth.Config, ttl time.Duration, opts ...Option) *Provider {
	p := &Provider{
		store:    store,
		cfg:      cfg,
		ttl:      ttl,
		now:      time.Now,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   zap.NewNop(),
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValidateCredentials applies the email and password rules.
func (p *Provider) ValidateCredentials(creds Credentials) error {
	return p.validate.Struct(creds)
}

// SignUp creates an account and signs it in.
func (p *Provider) SignUp(ctx context.Context, creds Credentials) (*Session, error) {
	creds.Email = normalizeEmail(creds.Email)
	if err := p.ValidateCredentials(creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountCreation, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), p.cost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountCreation, err)
	}

	account := Account{
		ID:           uuid.NewString(),
		Email:        creds.Email,
		PasswordHash: string(hash),
		CreatedAt:    p.now().UTC(),
	}
	if err := p.store.CreateAccount(ctx, account); err != nil {
		p.logger.Warn("sign up failed", zap.String("email", creds.Email), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrAccountCreation, err)
	}
	p.logger.Info("account created", zap.String("user_id", account.ID))
	return p.issue(account)
}

// SignIn verifies the password and returns a new session.
func (p *Provider) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	creds.Email = normalizeEmail(creds.Email)
	if err := p.ValidateCredentials(creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	account, err := p.store.FindByEmail(ctx, creds.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if account == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return p.issue(*account)
}

// SignOut revokes the token described by claims.
func (p *Provider) SignOut(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.TokenID == "" {
		return ErrSignOut
	}
	if err := p.store.RevokeToken(ctx, claims.TokenID, claims.Subject, claims.ExpiresAt); err != nil {
		p.logger.Error("sign out failed", zap.String("user_id", claims.Subject), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSignOut, err)
	}
	return nil
}

// CurrentUser resolves the account behind claims.
func (p *Provider) CurrentUser(ctx context.Context, claims *auth.Claims) (*User, error) {
	if claims == nil {
		return nil, auth.ErrMissingToken
	}
	account, err := p.store.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return &User{ID: account.ID, Email: account.Email}, nil
}

// IsRevoked satisfies auth.RevocationChecker.
func (p *Provider) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return p.store.IsRevoked(ctx, tokenID)
}

func (p *Provider) issue(account Account) (*Session, error) {
	token, claims, err := auth.Issue(p.cfg, account.ID, account.Email, auth.DefaultScopes, p.ttl, p.now())
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
		User:      User{ID: account.ID, Email: account.Email},
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Message maps an identity error to the notification shown to the user.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrAccountCreation):
		return "Could not create the account. Try again."
	case errors.Is(err, ErrSignOut):
		return "Could not sign out."
	}
	return "Could not verify authentication."
}
