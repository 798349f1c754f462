// Package token issues and validates HS256 JWTs for API access and OAuth state.
package token

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "bleed"

	audienceAPI   = "api"
	audienceState = "oauth-state"

	defaultStateTTL = 10 * time.Minute
)

// Sentinel errors.
var (
	ErrEmptySecret  = errors.New("token: empty secret")
	ErrInvalidToken = errors.New("token: invalid")
)

// Claims defines the JWT payload.
type Claims struct {
	UserID string `json:"user_id"`
	jwtlib.RegisteredClaims
}

// Manager signs and verifies tokens with a shared secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager builds a Manager issuing API tokens valid for ttl.
func NewManager(secret string, ttl time.Duration, opts ...Option) (*Manager, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	m := &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue returns an API token for userID.
func (m *Manager) Issue(userID string) (string, error) {
	return m.sign(userID, audienceAPI, m.ttl)
}

// Parse validates an API token and returns its claims.
func (m *Manager) Parse(raw string) (*Claims, error) {
	return m.parse(raw, audienceAPI)
}

// IssueState returns a short-lived token binding an OAuth round trip to
// userID.
func (m *Manager) IssueState(userID string) (string, error) {
	return m.sign(userID, audienceState, defaultStateTTL)
}

// ParseState validates an OAuth state token and returns its user.
func (m *Manager) ParseState(raw string) (string, error) {
	c, err := m.parse(raw, audienceState)
	if err != nil {
		return "", err
	}
	return c.UserID, nil
}

func (m *Manager) sign(userID, audience string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty user", ErrInvalidToken)
	}
	now := m.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			Audience:  jwtlib.ClaimStrings{audience},
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) parse(raw, audience string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(raw, &Claims{}, func(*jwtlib.Token) (any, error) {
		return m.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}),
		jwtlib.WithIssuer(issuer),
		jwtlib.WithAudience(audience),
		jwtlib.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
