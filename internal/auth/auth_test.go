package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"glassy-social/internal/docstore"
	"glassy-social/internal/shared/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRevoker struct {
	mu   sync.Mutex
	jtis map[string]time.Time
}

func (m *memRevoker) Revoke(_ context.Context, jti string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jtis[jti] = until
	return nil
}

func (m *memRevoker) Revoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jtis[jti]
	return ok, nil
}

func newProvider() *Provider {
	return NewProvider(docstore.NewMemory(), jwt.NewSigner("test", time.Hour), &memRevoker{jtis: map[string]time.Time{}})
}

func TestSignUpThenSignIn(t *testing.T) {
	ctx := context.Background()
	p := newProvider()

	id, err := p.SignUp(ctx, " Alice@Example.com ", "secret1", "Alice")
	require.NoError(t, err)
	assert.NotEmpty(t, id.UID)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.Equal(t, "Alice", id.DisplayName)

	got, err := p.SignIn(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = p.SignIn(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.SignIn(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignUpValidation(t *testing.T) {
	ctx := context.Background()
	p := newProvider()

	_, err := p.SignUp(ctx, "", "secret1", "")
	assert.ErrorIs(t, err, ErrMissingFields)
	_, err = p.SignUp(ctx, "a@b.c", "123", "")
	assert.ErrorIs(t, err, ErrWeakPassword)

	_, err = p.SignUp(ctx, "a@b.c", "secret1", "")
	require.NoError(t, err)
	_, err = p.SignUp(ctx, "A@B.C", "secret2", "")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestTokenRevokedOnSignOut(t *testing.T) {
	ctx := context.Background()
	p := newProvider()

	tok, err := p.Issue(Identity{UID: "u1"})
	require.NoError(t, err)
	uid, err := p.Verify(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	require.NoError(t, p.SignOut(ctx, tok))
	_, err = p.Verify(ctx, tok)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestFederatedDisabledByDefault(t *testing.T) {
	p := newProvider()
	assert.False(t, p.FederatedEnabled())
	_, err := p.FederatedURL("state")
	assert.ErrorIs(t, err, ErrFederatedDisabled)
	_, err = p.CompleteFederated(context.Background(), "code")
	assert.ErrorIs(t, err, ErrFederatedDisabled)
}

func TestFederatedURLCarriesState(t *testing.T) {
	p := newProvider().WithGoogle("client", "secret", "http://localhost/cb")
	u, err := p.FederatedURL("xyz")
	require.NoError(t, err)
	assert.Contains(t, u, "state=xyz")
	assert.Contains(t, u, "client_id=client")
}
