package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/igorgomez/medidascorporais/internal/auth"
)

var authCfg = auth.Config{Secret: "identity-test-secret", Issuer: "medidas.test"}

func newProvider() *Provider {
	return NewProvider(NewInMemoryStore(), authCfg, time.Hour, WithHashCost(bcrypt.MinCost))
}

func TestSignUpSignInSignOut(t *testing.T) {
	ctx := context.Background()
	p := newProvider()

	session, err := p.SignUp(ctx, Credentials{Email: " Ana@Example.com ", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", session.User.Email)

	signedIn, err := p.SignIn(ctx, Credentials{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.Equal(t, session.User.ID, signedIn.User.ID)

	claims, err := auth.Parse(signedIn.Token, authCfg)
	require.NoError(t, err)
	require.Equal(t, session.User.ID, claims.Subject)

	user, err := p.CurrentUser(ctx, claims)
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", user.Email)

	require.NoError(t, p.SignOut(ctx, claims))
	revoked, err := p.IsRevoked(ctx, claims.TokenID)
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestCredentialRules(t *testing.T) {
	ctx := context.Background()
	p := newProvider()

	_, err := p.SignUp(ctx, Credentials{Email: "not-an-email", Password: "secret1"})
	require.ErrorIs(t, err, ErrAccountCreation)
	_, err = p.SignUp(ctx, Credentials{Email: "bia@example.com", Password: "12345"})
	require.ErrorIs(t, err, ErrAccountCreation)

	_, err = p.SignUp(ctx, Credentials{Email: "bia@example.com", Password: "123456"})
	require.NoError(t, err)
	_, err = p.SignUp(ctx, Credentials{Email: "bia@example.com", Password: "123456"})
	require.ErrorIs(t, err, ErrAccountCreation)
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignInFailuresCollapse(t *testing.T) {
	ctx := context.Background()
	p := newProvider()
	_, err := p.SignUp(ctx, Credentials{Email: "caio@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = p.SignIn(ctx, Credentials{Email: "caio@example.com", Password: "wrong-pass"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.SignIn(ctx, Credentials{Email: "nobody@example.com", Password: "secret1"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, "Invalid email or password.", Message(err))
}

func TestSignOutWithoutToken(t *testing.T) {
	require.ErrorIs(t, newProvider().SignOut(context.Background(), nil), ErrSignOut)
}
