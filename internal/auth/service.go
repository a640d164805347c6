// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultStoreTimeout bounds every user store call made by the Service.
const DefaultStoreTimeout = 5 * time.Second

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Operations and outcomes reported to a Recorder.
const (
	OpRegister = "register"
	OpLogin    = "login"
	OpResolve  = "resolve"
	OpUpdate   = "update"
	OpDelete   = "delete"

	OutcomeSuccess = "success"
)

// Recorder receives one event per service call. Outcome is OutcomeSuccess or
// the Kind of the returned error.
type Recorder interface {
	RecordAuth(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuth(string, string) {}

// dummyHasher is implemented by hashers that can produce a timing-equivalent
// hash for unknown users.
type dummyHasher interface {
	DummyHash() string
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string
	TokenID   string
	UserID    ulid.ULID
	ExpiresAt time.Time
	// ExpiresIn is the token lifetime from its issue time.
	ExpiresIn time.Duration
}

// UpdateUserInput carries the optional fields of a profile update in
// plaintext form. The password is hashed before it reaches the store.
type UpdateUserInput struct {
	Name     *string
	Email    *string
	Password *string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreTimeout sets the per-call store deadline.
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithRecorder sets the metrics hook.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Service provides authentication operations. It is stateless between calls
// and safe for concurrent use.
type Service struct {
	users        UserRepository
	hasher       PasswordHasher
	tokens       TokenIssuer
	logger       *slog.Logger
	recorder     Recorder
	storeTimeout time.Duration
	dummyHash    string
}

// NewAuthService creates a new Service.
func NewAuthService(users UserRepository, hasher PasswordHasher, tokens TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("token issuer is required")
	}

	s := &Service{
		users:        users,
		hasher:       hasher,
		tokens:       tokens,
		logger:       slog.Default(),
		recorder:     nopRecorder{},
		storeTimeout: DefaultStoreTimeout,
		dummyHash:    dummyPasswordHash,
	}
	for _, opt := range opts {
		opt(s)
	}
	if dh, ok := hasher.(dummyHasher); ok {
		s.dummyHash = dh.DummyHash()
	}
	return s, nil
}

// Register creates a new user and returns its public projection.
func (s *Service) Register(ctx context.Context, name, email, password string) (user *UserPublic, err error) {
	defer func() { s.record(OpRegister, err) }()

	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	_, lookupErr := s.getByEmail(ctx, email)
	switch {
	case lookupErr == nil:
		return nil, duplicateEmailError(email)
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, storeError("get user by email", lookupErr)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}

	created, err := NewUser(name, email, hash)
	if err != nil {
		return nil, err
	}

	if err := s.withStore(ctx, func(ctx context.Context) error {
		return s.users.Create(ctx, created)
	}); err != nil {
		// Lost a race with a concurrent registration; the unique index decided.
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, duplicateEmailError(email)
		}
		return nil, storeError("create user", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", created.ID.String())
	return created.Public(), nil
}

// Login verifies credentials and issues a session token. Unknown emails and
// wrong passwords fail identically; only the log line tells them apart.
func (s *Service) Login(ctx context.Context, email, password string) (result *LoginResult, err error) {
	defer func() { s.record(OpLogin, err) }()

	email = NormalizeEmail(email)

	// Oversized input is never hashed, but the dummy verification keeps the
	// response time in line with a normal failure.
	if len(password) > MaxPasswordLength {
		s.hasher.Verify("", s.dummyHash)
		s.logger.InfoContext(ctx, "login failed", "reason", "bad_password")
		return nil, invalidCredentialsError()
	}

	user, lookupErr := s.getByEmail(ctx, email)

	var targetHash string
	userExists := false
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		userExists = true
	case errors.Is(lookupErr, ErrNotFound):
		targetHash = s.dummyHash
	default:
		return nil, storeError("get user by email", lookupErr)
	}

	// Always verify password (constant-time operation for timing attack prevention)
	valid := s.hasher.Verify(password, targetHash)

	if !userExists {
		s.logger.InfoContext(ctx, "login failed", "reason", "unknown_email")
		return nil, invalidCredentialsError()
	}
	if !valid {
		s.logger.InfoContext(ctx, "login failed", "reason", "bad_password", "user_id", user.ID.String())
		return nil, invalidCredentialsError()
	}

	token, claims, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_ISSUE_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, password)
	}

	s.logger.InfoContext(ctx, "login succeeded",
		"user_id", user.ID.String(),
		"token_id", claims.TokenID)

	return &LoginResult{
		Token:     token,
		TokenID:   claims.TokenID,
		UserID:    user.ID,
		ExpiresAt: claims.ExpiresAt,
		ExpiresIn: claims.ExpiresAt.Sub(claims.IssuedAt),
	}, nil
}

// upgradeHash rehashes password with the current parameters. Failures are
// logged and do not affect the login.
func (s *Service) upgradeHash(ctx context.Context, id ulid.ULID, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort hash upgrade failed",
			"user_id", id.String(),
			"operation", "hash",
			"error", err.Error())
		return
	}
	update := UserUpdate{PasswordHash: &hash}
	if err := s.withStore(ctx, func(ctx context.Context) error {
		_, err := s.users.Update(ctx, id, update)
		return err
	}); err != nil {
		s.logger.WarnContext(ctx, "best-effort hash upgrade failed",
			"user_id", id.String(),
			"operation", "update",
			"error", err.Error())
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", id.String())
}

// ResolveCurrentUser verifies a bearer token and loads the user it names.
// Every token failure and a missing user map to Unauthorized.
func (s *Service) ResolveCurrentUser(ctx context.Context, token string) (user *UserPublic, err error) {
	defer func() { s.record(OpResolve, err) }()

	claims, err := s.tokens.Verify(token)
	if err != nil {
		reason := string(TokenMalformed)
		var tokenErr *TokenError
		if errors.As(err, &tokenErr) {
			reason = string(tokenErr.Reason)
		}
		s.logger.DebugContext(ctx, "token rejected", "reason", reason)
		return nil, unauthorizedError(reason)
	}

	found, err := s.getByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.DebugContext(ctx, "token subject not found",
				"user_id", claims.Subject.String(),
				"token_id", claims.TokenID)
			return nil, unauthorizedError("user_not_found")
		}
		return nil, storeError("get user by id", err)
	}
	return found.Public(), nil
}

// UpdateUser applies a partial profile update to the user with the given ID.
func (s *Service) UpdateUser(ctx context.Context, id ulid.ULID, in UpdateUserInput) (user *UserPublic, err error) {
	defer func() { s.record(OpUpdate, err) }()

	var update UserUpdate
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		update.Name = &name
	}
	if in.Email != nil {
		email := NormalizeEmail(*in.Email)
		update.Email = &email
	}
	if in.Name == nil && in.Email == nil && in.Password == nil {
		return nil, encodingError("update", "update has no fields")
	}
	// Validate every field before paying for a hash.
	if update.Name != nil {
		if err := ValidateName(*update.Name); err != nil {
			return nil, err
		}
	}
	if update.Email != nil {
		if err := ValidateEmail(*update.Email); err != nil {
			return nil, err
		}
	}
	if in.Password != nil {
		if err := ValidatePassword(*in.Password); err != nil {
			return nil, err
		}
	}

	if update.Email != nil {
		existing, lookupErr := s.getByEmail(ctx, *update.Email)
		switch {
		case lookupErr == nil && existing.ID != id:
			return nil, duplicateEmailError(*update.Email)
		case lookupErr != nil && !errors.Is(lookupErr, ErrNotFound):
			return nil, storeError("get user by email", lookupErr)
		}
	}

	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, oops.Code("AUTH_HASH_FAILED").Wrap(err)
		}
		update.PasswordHash = &hash
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var updated *User
	if err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.users.Update(ctx, id, update)
		return err
	}); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, unauthorizedError("user_not_found")
		case errors.Is(err, ErrDuplicateEmail) && update.Email != nil:
			return nil, duplicateEmailError(*update.Email)
		default:
			return nil, storeError("update user", err)
		}
	}

	s.logger.InfoContext(ctx, "user updated", "user_id", id.String())
	return updated.Public(), nil
}

// DeleteUser removes the user with the given ID. Tokens issued to that user
// stop resolving immediately.
func (s *Service) DeleteUser(ctx context.Context, id ulid.ULID) (err error) {
	defer func() { s.record(OpDelete, err) }()

	if err := s.withStore(ctx, func(ctx context.Context) error {
		return s.users.Delete(ctx, id)
	}); err != nil {
		if errors.Is(err, ErrNotFound) {
			return unauthorizedError("user_not_found")
		}
		return storeError("delete user", err)
	}

	s.logger.InfoContext(ctx, "user deleted", "user_id", id.String())
	return nil
}

func (s *Service) getByEmail(ctx context.Context, email string) (*User, error) {
	var user *User
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.GetByEmail(ctx, email)
		return err
	})
	return user, err
}

func (s *Service) getByID(ctx context.Context, id ulid.ULID) (*User, error) {
	var user *User
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.GetByID(ctx, id)
		return err
	})
	return user, err
}

func (s *Service) withStore(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *Service) record(operation string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = string(KindOf(err))
	}
	s.recorder.RecordAuth(operation, outcome)
}
