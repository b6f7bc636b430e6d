// Package session issues and verifies the signed tokens a terminal holds
// between card insertion and card return.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "cashpoint"

var (
	// ErrInvalidToken covers malformed, expired and badly signed tokens.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrRevoked is returned for tokens ended by Logout.
	ErrRevoked = errors.New("session ended")
)

// Claims bind a token to one account.
type Claims struct {
	jwt.RegisteredClaims
}

// AccountID returns the account the session belongs to.
func (c Claims) AccountID() string {
	return c.Subject
}

// Token is an issued session.
type Token struct {
	Value     string
	AccountID string
	ExpiresAt time.Time
}

// Service signs session tokens with HS256.
type Service struct {
	secret      []byte
	ttl         time.Duration
	revocations Revocations
	now         func() time.Time
}

// NewService builds a session service. A nil revocation store keeps
// revocations in memory.
func NewService(secret []byte, ttl time.Duration, revocations Revocations) *Service {
	if revocations == nil {
		revocations = NewMemoryRevocations()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{secret: secret, ttl: ttl, revocations: revocations, now: time.Now}
}

// Issue creates a token for accountID.
func (s *Service) Issue(accountID string) (Token, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    issuer,
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign session: %w", err)
	}
	return Token{Value: signed, AccountID: accountID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks the signature, expiry and revocation state of raw.
func (s *Service) Verify(ctx context.Context, raw string) (Claims, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return Claims{}, err
	}
	revoked, err := s.revocations.Revoked(ctx, claims.ID)
	if err != nil {
		return Claims{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Claims{}, ErrRevoked
	}
	return claims, nil
}

// Revoke ends the session carried by raw.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	claims, err := s.parse(raw)
	if err != nil {
		return err
	}
	return s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

func (s *Service) parse(raw string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || claims.Subject == "" || claims.ID == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
