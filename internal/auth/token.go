// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultTokenTTL is the session token lifetime when none is configured.
const DefaultTokenTTL = time.Hour

// MinSigningSecretLength is the shortest accepted HS256 signing secret.
const MinSigningSecretLength = 32

// TokenErrorReason classifies a token verification failure.
type TokenErrorReason string

// Token failure reasons.
const (
	TokenMalformed    TokenErrorReason = "Malformed"
	TokenBadSignature TokenErrorReason = "BadSignature"
	TokenExpired      TokenErrorReason = "Expired"
)

// TokenError is returned by TokenService.Verify.
type TokenError struct {
	Reason TokenErrorReason
	cause  error
}

func (e *TokenError) Error() string {
	if e.cause != nil {
		return "token " + string(e.Reason) + ": " + e.cause.Error()
	}
	return "token " + string(e.Reason)
}

func (e *TokenError) Unwrap() error { return e.cause }

// Is matches any TokenError with the same reason.
func (e *TokenError) Is(target error) bool {
	t, ok := target.(*TokenError)
	return ok && t.Reason == e.Reason
}

// Sentinels for errors.Is.
var (
	ErrTokenMalformed    = &TokenError{Reason: TokenMalformed}
	ErrTokenBadSignature = &TokenError{Reason: TokenBadSignature}
	ErrTokenExpired      = &TokenError{Reason: TokenExpired}
)

// Claims are the decoded contents of a session token.
type Claims struct {
	Subject   ulid.ULID
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenIssuer issues and verifies session tokens.
type TokenIssuer interface {
	Issue(subject ulid.ULID) (string, *Claims, error)
	Verify(token string) (*Claims, error)
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithClock sets the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// TokenService issues HS256 JWTs bound to a user ID. It holds no state
// beyond the signing secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenService creates a TokenService. The secret is required and must be
// at least MinSigningSecretLength bytes. A zero ttl selects DefaultTokenTTL.
func NewTokenService(secret []byte, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, oops.Code("AUTH_SIGNING_SECRET_MISSING").Errorf("signing secret is required")
	}
	if len(secret) < MinSigningSecretLength {
		return nil, oops.Code("AUTH_SIGNING_SECRET_TOO_SHORT").
			With("min", MinSigningSecretLength).
			Errorf("signing secret must be at least %d bytes", MinSigningSecretLength)
	}
	if ttl < 0 {
		return nil, oops.Code("AUTH_INVALID_TOKEN_TTL").With("ttl", ttl.String()).Errorf("token ttl must be positive")
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}

	s := &TokenService{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
		// Expiry is checked by Verify against the injected clock, after the
		// signature.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for subject valid from now until now+TTL.
func (s *TokenService) Issue(subject ulid.ULID) (string, *Claims, error) {
	now := s.now()
	registered := jwt.RegisteredClaims{
		Subject:   subject.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        ulid.Make().String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, registered).SignedString(s.secret)
	if err != nil {
		return "", nil, oops.Code("AUTH_TOKEN_SIGN_FAILED").Wrap(err)
	}

	return signed, &Claims{
		Subject:   subject,
		TokenID:   registered.ID,
		IssuedAt:  registered.IssuedAt.Time,
		ExpiresAt: registered.ExpiresAt.Time,
	}, nil
}

// Verify checks the signature, then expiry, and returns the decoded claims.
// Failures are *TokenError. Any change to a three-segment token fails as
// BadSignature; only a token that is not three segments, or one whose signed
// contents do not decode, is Malformed.
func (s *TokenService) Verify(token string) (*Claims, error) {
	if err := s.verifySignature(token); err != nil {
		return nil, err
	}

	var registered jwt.RegisteredClaims
	if _, err := s.parser.ParseWithClaims(token, &registered, s.key); err != nil {
		return nil, mapJWTError(err)
	}

	if registered.ExpiresAt == nil {
		return nil, &TokenError{Reason: TokenMalformed, cause: errors.New("missing exp")}
	}
	subject, err := ulid.ParseStrict(registered.Subject)
	if err != nil {
		return nil, &TokenError{Reason: TokenMalformed, cause: err}
	}
	if !s.now().Before(registered.ExpiresAt.Time) {
		return nil, &TokenError{Reason: TokenExpired}
	}

	claims := &Claims{
		Subject:   subject,
		TokenID:   registered.ID,
		ExpiresAt: registered.ExpiresAt.Time,
	}
	if registered.IssuedAt != nil {
		claims.IssuedAt = registered.IssuedAt.Time
	}
	return claims, nil
}

// verifySignature checks the HS256 signature over the raw header and payload
// before anything is decoded. The signature segment must be canonical
// unpadded base64url.
func (s *TokenService) verifySignature(token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return &TokenError{Reason: TokenMalformed, cause: errors.New("token must have three segments")}
	}

	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return &TokenError{Reason: TokenBadSignature, cause: err}
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, s.secret); err != nil {
		return &TokenError{Reason: TokenBadSignature, cause: err}
	}
	return nil
}

func (s *TokenService) key(_ *jwt.Token) (any, error) {
	return s.secret, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &TokenError{Reason: TokenMalformed, cause: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &TokenError{Reason: TokenBadSignature, cause: err}
	default:
		return &TokenError{Reason: TokenMalformed, cause: err}
	}
}

var _ TokenIssuer = (*TokenService)(nil)
