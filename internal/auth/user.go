// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// Field constraints.
const (
	MaxNameLength     = 100
	MaxEmailLength    = 254
	MinPasswordLength = 8
	MaxPasswordLength = 1024
)

// User is a registered account. PasswordHash never leaves the service; use
// Public for anything returned to a caller.
type User struct {
	ID           ulid.ULID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserPublic is the externally visible projection of a User.
type UserPublic struct {
	ID    ulid.ULID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Public returns the public projection of u.
func (u *User) Public() *UserPublic {
	return &UserPublic{ID: u.ID, Name: u.Name, Email: u.Email}
}

// NewUser creates a User with a fresh ID after normalizing and validating
// name and email.
func NewUser(name, email, passwordHash string) (*User, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, encodingError("password_hash", "password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// Emails are compared case-insensitively everywhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateName checks a display name: 1 to MaxNameLength characters of valid
// UTF-8 with no surrounding whitespace.
func ValidateName(name string) error {
	if !utf8.ValidString(name) {
		return encodingError("name", "name must be valid UTF-8")
	}
	if strings.TrimSpace(name) != name {
		return encodingError("name", "name has surrounding whitespace")
	}
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return encodingError("name", "name cannot be empty")
	}
	if n > MaxNameLength {
		return encodingError("name", "name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// ValidateEmail checks that email is a bare, normalized address.
func ValidateEmail(email string) error {
	if email == "" {
		return encodingError("email", "email cannot be empty")
	}
	if !utf8.ValidString(email) {
		return encodingError("email", "email must be valid UTF-8")
	}
	if len(email) > MaxEmailLength {
		return encodingError("email", "email must be at most %d bytes", MaxEmailLength)
	}
	if email != NormalizeEmail(email) {
		return encodingError("email", "email is not normalized")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return encodingError("email", "email is not a valid address")
	}
	return nil
}

// ValidatePassword checks a plaintext password against the length and
// encoding policy.
func ValidatePassword(password string) error {
	if !utf8.ValidString(password) {
		return encodingError("password", "password must be valid UTF-8")
	}
	if len(password) < MinPasswordLength {
		return encodingError("password", "password must be at least %d bytes", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return encodingError("password", "password must be at most %d bytes", MaxPasswordLength)
	}
	return nil
}

// UserUpdate is a partial update. Nil fields are left unchanged.
type UserUpdate struct {
	Name         *string
	Email        *string
	PasswordHash *string
}

// IsEmpty reports whether the update changes nothing.
func (u UserUpdate) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.PasswordHash == nil
}

// Validate rejects an empty update and any invalid field value. Email must
// already be normalized.
func (u UserUpdate) Validate() error {
	if u.IsEmpty() {
		return encodingError("update", "update has no fields")
	}
	if u.Name != nil {
		if err := ValidateName(*u.Name); err != nil {
			return err
		}
	}
	if u.Email != nil {
		if err := ValidateEmail(*u.Email); err != nil {
			return err
		}
	}
	if u.PasswordHash != nil && *u.PasswordHash == "" {
		return encodingError("password_hash", "password hash cannot be empty")
	}
	return nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user.
	// Returns ErrDuplicateEmail if the email is already registered.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	// Returns ErrNotFound if no user has the given ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by normalized email.
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update applies a validated partial update and returns the stored result.
	// Returns ErrNotFound or ErrDuplicateEmail.
	Update(ctx context.Context, id ulid.ULID, update UserUpdate) (*User, error)

	// Delete removes a user.
	// Returns ErrNotFound if no user has the given ID.
	Delete(ctx context.Context, id ulid.ULID) error
}
