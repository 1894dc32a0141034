package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	oauthapi "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

type google struct {
	cfg      *oauth2.Config
	userinfo func(ctx context.Context, tok *oauth2.Token) (Identity, error)
}

// WithGoogle enables the interactive federated sign-in flow.
func (p *Provider) WithGoogle(clientID, secret, redirect string) *Provider {
	g := &google{cfg: &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: secret,
		RedirectURL:  redirect,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: googleoauth.Endpoint,
	}}
	g.userinfo = g.fetchUserinfo
	p.google = g
	return p
}

func (p *Provider) FederatedEnabled() bool { return p.google != nil }

func (p *Provider) FederatedURL(state string) (string, error) {
	if p.google == nil {
		return "", ErrFederatedDisabled
	}
	return p.google.cfg.AuthCodeURL(state), nil
}

func (p *Provider) CompleteFederated(ctx context.Context, code string) (Identity, error) {
	if p.google == nil {
		return Identity{}, ErrFederatedDisabled
	}
	tok, err := p.google.cfg.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchange code: %w", err)
	}
	return p.google.userinfo(ctx, tok)
}

func (g *google) fetchUserinfo(ctx context.Context, tok *oauth2.Token) (Identity, error) {
	svc, err := oauthapi.NewService(ctx, option.WithTokenSource(g.cfg.TokenSource(ctx, tok)))
	if err != nil {
		return Identity{}, fmt.Errorf("userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Identity{}, fmt.Errorf("userinfo: %w", err)
	}
	return Identity{
		UID:         "google-" + info.Id,
		DisplayName: info.Name,
		Email:       info.Email,
		PhotoURL:    info.Picture,
	}, nil
}
