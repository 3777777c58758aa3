// Package identity is the boundary with the external identity provider.
//
// The synchronizer trusts only the identity this package extracts from a
// verified bearer token, never client-supplied identity claims in request
// payloads. An absent or invalid token yields no identity; callers decide
// whether anonymous access is acceptable (viewing and presence are, mutation
// is not).
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is a verified participant identity.
type Identity struct {
	UserID   string
	Username string
}

// Provider verifies bearer tokens and mints them for dev/test use.
// Tokens are HMAC-signed JWTs with subject = user ID.
type Provider struct {
	secret []byte
	now    func() time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
}

// NewProvider creates a provider from a shared signing secret.
func NewProvider(secret string) (*Provider, error) {
	if secret == "" {
		return nil, fmt.Errorf("identity secret cannot be empty")
	}

	return &Provider{secret: []byte(secret), now: time.Now}, nil
}

// Mint issues a signed session token for a user. Used by the CLI token
// command and by tests; production deployments are expected to receive
// tokens from the real identity provider sharing the same secret.
func (p *Provider) Mint(userID, username string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user ID cannot be empty")
	}

	now := p.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// Verify parses and validates a session token, returning the identity it carries.
func (p *Provider) Verify(tokenString string) (Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Identity{}, errors.New("empty session token")
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(tokenString, &parsed, func(token *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid session token: %w", err)
	}

	if parsed.Subject == "" {
		return Identity{}, errors.New("session token missing subject")
	}

	return Identity{UserID: parsed.Subject, Username: parsed.Username}, nil
}

// FromRequest extracts and verifies the identity on an HTTP request.
// Accepts "Authorization: Bearer <token>"; also checks the "session" query
// parameter for websocket upgrades, where setting headers is awkward for
// browser clients. Returns (zero, false) when no valid identity is present.
func (p *Provider) FromRequest(r *http.Request) (Identity, bool) {
	token := ""
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	} else if q := r.URL.Query().Get("session"); q != "" {
		token = q
	}

	if token == "" {
		return Identity{}, false
	}

	id, err := p.Verify(token)
	if err != nil {
		return Identity{}, false
	}

	return id, true
}
