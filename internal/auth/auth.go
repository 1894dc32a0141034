package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"glassy-social/internal/docstore"
	"glassy-social/internal/shared/jwt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Identity is what the auth boundary hands back after a successful sign-in.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photoURL"`
}

var (
	ErrInvalidCredentials = errors.New("wrong email or password")
	ErrEmailTaken         = errors.New("email already in use")
	ErrWeakPassword       = errors.New("password should be at least 6 characters")
	ErrMissingFields      = errors.New("email and password are required")
	ErrFederatedDisabled  = errors.New("federated sign-in is not configured")
	ErrRevoked            = errors.New("token revoked")
)

type Credentials interface {
	CreateCredential(ctx context.Context, c *docstore.Credential) error
	GetCredential(ctx context.Context, email string) (*docstore.Credential, error)
}

type Revoker interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	Revoked(ctx context.Context, jti string) (bool, error)
}

type Provider struct {
	creds   Credentials
	signer  *jwt.Signer
	revoker Revoker
	google  *google
	now     func() time.Time
}

func NewProvider(creds Credentials, signer *jwt.Signer, revoker Revoker) *Provider {
	return &Provider{creds: creds, signer: signer, revoker: revoker, now: time.Now}
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (p *Provider) SignIn(ctx context.Context, email, password string) (Identity, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Identity{}, ErrMissingFields
	}
	c, err := p.creds.GetCredential(ctx, email)
	if errors.Is(err, docstore.ErrNotFound) {
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load credential: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(c.PassHash), []byte(password)) != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{UID: c.UserID, DisplayName: c.DisplayName, Email: c.Email, PhotoURL: c.PhotoURL}, nil
}

func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) (Identity, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Identity{}, ErrMissingFields
	}
	if len(password) < 6 {
		return Identity{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, errors.New("hash fail")
	}
	c := &docstore.Credential{
		Email:       email,
		UserID:      uuid.NewString(),
		PassHash:    string(hash),
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   p.now().UTC(),
	}
	if err := p.creds.CreateCredential(ctx, c); err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return Identity{}, ErrEmailTaken
		}
		return Identity{}, fmt.Errorf("create credential: %w", err)
	}
	return Identity{UID: c.UserID, DisplayName: c.DisplayName, Email: c.Email}, nil
}

// Issue signs a session token for id.
func (p *Provider) Issue(id Identity) (string, error) {
	tok, _, err := p.signer.Make(id.UID)
	return tok, err
}

// Verify resolves a token to its user id, honouring revocations.
func (p *Provider) Verify(ctx context.Context, token string) (string, error) {
	c, err := p.signer.Parse(token)
	if err != nil {
		return "", err
	}
	if p.revoker != nil && c.ID != "" {
		revoked, err := p.revoker.Revoked(ctx, c.ID)
		if err != nil {
			return "", err
		}
		if revoked {
			return "", ErrRevoked
		}
	}
	return c.Subject, nil
}

// SignOut revokes token until it would have expired anyway.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	if token == "" || p.revoker == nil {
		return nil
	}
	c, err := p.signer.Parse(token)
	if err != nil {
		return nil
	}
	return p.revoker.Revoke(ctx, c.ID, c.ExpiresAt)
}
