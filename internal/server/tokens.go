package server

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/desertthunder/marquee/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL matches the backend's one-day access tokens.
const DefaultTokenTTL = 24 * time.Hour

var ErrTokenRevoked = errors.New("token revoked")

// TokenIssuer signs and verifies HS256 access tokens whose subject is the user id.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	issued  []string
	revoked map[string]struct{}
}

// NewTokenIssuer creates a [TokenIssuer]. A non-positive ttl uses [DefaultTokenTTL].
func NewTokenIssuer(secret string, ttl time.Duration, now func() time.Time) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: now, revoked: make(map[string]struct{})}
}

// Issue signs a token for userID.
func (i *TokenIssuer) Issue(userID int) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		ID:        shared.GenerateID(),
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	i.mu.Lock()
	i.issued = append(i.issued, signed)
	i.mu.Unlock()
	return signed, nil
}

// Verify checks the signature, expiry and revocation list and returns the user id.
func (i *TokenIssuer) Verify(raw string) (int, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(i.now))
	if err != nil {
		return 0, err
	}

	i.mu.RLock()
	_, revoked := i.revoked[raw]
	i.mu.RUnlock()
	if revoked {
		return 0, ErrTokenRevoked
	}

	userID, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return 0, fmt.Errorf("invalid subject %q: %w", claims.Subject, err)
	}
	return userID, nil
}

// Revoke rejects raw from now on.
func (i *TokenIssuer) Revoke(raw string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.revoked[raw] = struct{}{}
}

// RevokeAll rejects every token issued so far.
func (i *TokenIssuer) RevokeAll() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, raw := range i.issued {
		i.revoked[raw] = struct{}{}
	}
	i.issued = nil
}
