package jwt

import (
	"errors"
	"time"

	jw "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalid = errors.New("invalid token")

type Claims struct {
	Subject   string
	ID        string
	ExpiresAt time.Time
}

type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	if secret == "" {
		// dev fallback; replace in prod
		secret = "replace-this-with-a-strong-secret"
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Make issues an HS256 token for userID with a fresh jti.
func (s *Signer) Make(userID string) (string, Claims, error) {
	now := s.now()
	c := Claims{Subject: userID, ID: uuid.NewString(), ExpiresAt: now.Add(s.ttl)}
	claims := jw.MapClaims{
		"sub": c.Subject,
		"jti": c.ID,
		"iat": now.Unix(),
		"exp": c.ExpiresAt.Unix(),
	}
	tok, err := jw.NewWithClaims(jw.SigningMethodHS256, claims).SignedString(s.secret)
	return tok, c, err
}

// Parse validates the signature and expiry and returns the claims.
func (s *Signer) Parse(tok string) (Claims, error) {
	t, err := jw.Parse(tok, func(t *jw.Token) (any, error) {
		if _, ok := t.Method.(*jw.SigningMethodHMAC); !ok {
			return nil, ErrInvalid
		}
		return s.secret, nil
	}, jw.WithTimeFunc(s.now))
	if err != nil || !t.Valid {
		return Claims{}, ErrInvalid
	}
	mc, ok := t.Claims.(jw.MapClaims)
	if !ok {
		return Claims{}, errors.New("bad claims")
	}
	uid, _ := mc["sub"].(string)
	if uid == "" {
		return Claims{}, errors.New("no subject")
	}
	jti, _ := mc["jti"].(string)
	var exp time.Time
	if f, ok := mc["exp"].(float64); ok {
		exp = time.Unix(int64(f), 0)
	}
	return Claims{Subject: uid, ID: jti, ExpiresAt: exp}, nil
}
