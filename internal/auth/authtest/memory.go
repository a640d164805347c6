// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides test helpers for authentication.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/authsvc/internal/auth"
)

// TestSigningSecret is a signing secret long enough for auth.NewTokenService.
//
//nolint:gosec // G101: test-only secret.
const TestSigningSecret = "authtest-signing-secret-0123456789abcdef"

// FastArgon2Params returns argon2id parameters cheap enough for unit tests.
func FastArgon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Memory:      64,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// NewFastHasher returns an Argon2idHasher using FastArgon2Params.
func NewFastHasher() *auth.Argon2idHasher {
	h, err := auth.NewArgon2idHasherWithParams(FastArgon2Params())
	if err != nil {
		panic(err)
	}
	return h
}

// MemoryUserStore is an in-memory auth.UserRepository. Writes are serialized
// and email uniqueness is enforced the same way the database does.
type MemoryUserStore struct {
	mu      sync.Mutex
	byID    map[ulid.ULID]auth.User
	byEmail map[string]ulid.ULID
	err     error
}

// NewMemoryUserStore creates an empty MemoryUserStore.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[ulid.ULID]auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (s *MemoryUserStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Len returns the number of stored users.
func (s *MemoryUserStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Create implements auth.UserRepository.
func (s *MemoryUserStore) Create(ctx context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, taken := s.byEmail[user.Email]; taken {
		return auth.ErrDuplicateEmail
	}
	s.byID[user.ID] = *user
	s.byEmail[user.Email] = user.ID
	return nil
}

// GetByID implements auth.UserRepository.
func (s *MemoryUserStore) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	user, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &user, nil
}

// GetByEmail implements auth.UserRepository.
func (s *MemoryUserStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	id, ok := s.byEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	user := s.byID[id]
	return &user, nil
}

// Update implements auth.UserRepository.
func (s *MemoryUserStore) Update(ctx context.Context, id ulid.ULID, update auth.UserUpdate) (*auth.User, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	user, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if update.Email != nil && *update.Email != user.Email {
		if _, taken := s.byEmail[*update.Email]; taken {
			return nil, auth.ErrDuplicateEmail
		}
		delete(s.byEmail, user.Email)
		user.Email = *update.Email
		s.byEmail[user.Email] = id
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.PasswordHash != nil {
		user.PasswordHash = *update.PasswordHash
	}
	user.UpdatedAt = time.Now().UTC()
	s.byID[id] = user
	return &user, nil
}

// Delete implements auth.UserRepository.
func (s *MemoryUserStore) Delete(ctx context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	user, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byEmail, user.Email)
	return nil
}

func (s *MemoryUserStore) check(ctx context.Context) error {
	if s.err != nil {
		return s.err
	}
	return ctx.Err()
}

var _ auth.UserRepository = (*MemoryUserStore)(nil)
