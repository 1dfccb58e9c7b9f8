// Package session tracks who is signed in on this device and tells
// interested parties when that changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/igorgomez/medidascorporais/internal/identity"
	"github.com/igorgomez/medidascorporais/internal/sdk"
)

// Backend is the remote identity provider.
type Backend interface {
	SignUp(ctx context.Context, creds identity.Credentials) (*identity.Session, error)
	SignIn(ctx context.Context, creds identity.Credentials) (*identity.Session, error)
	SignOut(ctx context.Context) error
	Me(ctx context.Context) (*identity.User, error)
	SetToken(token string)
}

// TokenStore persists the bearer token between runs.
type TokenStore interface {
	SessionToken(ctx context.Context) (string, error)
	SaveSessionToken(ctx context.Context, token string) error
	ClearSessionToken(ctx context.Context) error
}

// Listener receives the current user after every change; nil means signed out.
type Listener func(*identity.User)

// Gate holds the authentication state of the device. Loading stays true until
// Start has resolved the persisted session.
type Gate struct {
	backend Backend
	tokens  TokenStore
	logger  *zap.Logger

	mu      sync.Mutex
	user    *identity.User
	loading bool
	errMsg  string
	subs    map[int]*subscriber
	nextID  int
}

// NewGate constructs a Gate in the loading state.
func NewGate(backend Backend, tokens TokenStore, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		backend: backend,
		tokens:  tokens,
		logger:  logger,
		loading: true,
		subs:    make(map[int]*subscriber),
	}
}

// User returns the signed-in user or nil.
func (g *Gate) User() *identity.User {
	g.mu.Lock()
	defer g.mu.Unlock()
	return copyUser(g.user)
}

// Loading reports whether the persisted session is still being resolved.
func (g *Gate) Loading() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loading
}

// Error returns the message of the last failed operation, or "".
func (g *Gate) Error() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.errMsg
}

// Subscribe registers fn for user changes. Deliveries to one listener are
// sequential and in order. If the session is already resolved fn receives the
// current user first. The returned func unsubscribes and waits for any
// in-flight delivery to finish; it must not be called from inside fn.
func (g *Gate) Subscribe(fn Listener) (unsubscribe func()) {
	sub := newSubscriber(fn)

	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.subs[id] = sub
	if !g.loading {
		sub.push(copyUser(g.user))
	}
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
			sub.stop()
		})
	}
}

// Close unsubscribes every listener.
func (g *Gate) Close() {
	g.mu.Lock()
	subs := g.subs
	g.subs = make(map[int]*subscriber)
	g.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

// Start resolves the persisted token. An expired or revoked token is
// forgotten; any other failure leaves the device signed out with an error.
func (g *Gate) Start(ctx context.Context) error {
	token, err := g.tokens.SessionToken(ctx)
	if err != nil {
		g.finish(nil, "Could not verify authentication.")
		return err
	}
	if token == "" {
		g.finish(nil, "")
		return nil
	}

	g.backend.SetToken(token)
	user, err := g.backend.Me(ctx)
	switch {
	case err == nil:
		g.finish(user, "")
		return nil
	case errors.Is(err, sdk.ErrUnauthorized):
		g.backend.SetToken("")
		if clearErr := g.tokens.ClearSessionToken(ctx); clearErr != nil {
			g.logger.Warn("clear stale session token", zap.Error(clearErr))
		}
		g.finish(nil, "")
		return nil
	default:
		g.logger.Error("resolve session", zap.Error(err))
		g.finish(nil, "Could not verify authentication.")
		return err
	}
}

// SignIn opens a session and persists its token.
func (g *Gate) SignIn(ctx context.Context, creds identity.Credentials) error {
	g.setError("")
	session, err := g.backend.SignIn(ctx, creds)
	if err != nil {
		g.setError(identity.Message(identity.ErrInvalidCredentials))
		return fmt.Errorf("%w: %w", identity.ErrInvalidCredentials, err)
	}
	return g.adopt(ctx, session)
}

// SignUp creates an account, signs it in and persists its token.
func (g *Gate) SignUp(ctx context.Context, creds identity.Credentials) error {
	g.setError("")
	session, err := g.backend.SignUp(ctx, creds)
	if err != nil {
		g.setError(identity.Message(identity.ErrAccountCreation))
		return fmt.Errorf("%w: %w", identity.ErrAccountCreation, err)
	}
	return g.adopt(ctx, session)
}

// SignOut revokes the session remotely, then forgets it locally. On a remote
// failure the user stays signed in.
func (g *Gate) SignOut(ctx context.Context) error {
	g.setError("")
	if err := g.backend.SignOut(ctx); err != nil && !errors.Is(err, sdk.ErrUnauthorized) {
		g.setError(identity.Message(identity.ErrSignOut))
		return fmt.Errorf("%w: %w", identity.ErrSignOut, err)
	}
	g.backend.SetToken("")
	if err := g.tokens.ClearSessionToken(ctx); err != nil {
		g.logger.Warn("clear session token", zap.Error(err))
	}
	g.finish(nil, "")
	return nil
}

func (g *Gate) adopt(ctx context.Context, session *identity.Session) error {
	g.backend.SetToken(session.Token)
	if err := g.tokens.SaveSessionToken(ctx, session.Token); err != nil {
		g.logger.Warn("persist session token", zap.Error(err))
	}
	user := session.User
	g.finish(&user, "")
	return nil
}

func (g *Gate) setError(msg string) {
	g.mu.Lock()
	g.errMsg = msg
	g.mu.Unlock()
}

// finish records the new user, clears loading and notifies listeners.
func (g *Gate) finish(user *identity.User, errMsg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.user = copyUser(user)
	g.loading = false
	g.errMsg = errMsg
	for _, sub := range g.subs {
		sub.push(copyUser(user))
	}
}

func copyUser(u *identity.User) *identity.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
