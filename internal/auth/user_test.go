// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authsvc/internal/auth"
	"github.com/holomush/authsvc/pkg/errutil"
)

func ptr[T any](v T) *T { return &v }

func TestNewUser(t *testing.T) {
	t.Run("normalizes name and email", func(t *testing.T) {
		user, err := auth.NewUser("  Test User ", " Test@Example.COM ", "hash")
		require.NoError(t, err)
		assert.Equal(t, "Test User", user.Name)
		assert.Equal(t, "test@example.com", user.Email)
		assert.False(t, user.CreatedAt.IsZero())
		assert.Equal(t, user.CreatedAt, user.UpdatedAt)
	})

	t.Run("generates distinct ids", func(t *testing.T) {
		a, err := auth.NewUser("A", "a@example.com", "hash")
		require.NoError(t, err)
		b, err := auth.NewUser("B", "b@example.com", "hash")
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("rejects empty password hash", func(t *testing.T) {
		_, err := auth.NewUser("A", "a@example.com", "")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeEncodingError)
	})
}

func TestUser_Public(t *testing.T) {
	user, err := auth.NewUser("Test User", "test@example.com", "secret-hash")
	require.NoError(t, err)

	data, err := json.Marshal(user.Public())
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, user.ID.String(), body["id"])
	assert.Equal(t, "Test User", body["name"])
	assert.Equal(t, "test@example.com", body["email"])
	assert.Len(t, body, 3)
	assert.NotContains(t, string(data), "secret-hash")
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "test@example.com", auth.NormalizeEmail("  TEST@example.com\t"))
	assert.Equal(t, auth.NormalizeEmail("Test@Example.com"), auth.NormalizeEmail("test@EXAMPLE.com"))
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "Test User"},
		{name: "unicode", input: "Zoë Ångström"},
		{name: "max length in runes", input: strings.Repeat("é", auth.MaxNameLength)},
		{name: "empty", input: "", wantErr: true},
		{name: "too long", input: strings.Repeat("a", auth.MaxNameLength+1), wantErr: true},
		{name: "surrounding whitespace", input: " padded ", wantErr: true},
		{name: "invalid utf-8", input: "bad\xffname", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateName(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, auth.CodeEncodingError)
				errutil.AssertErrorContext(t, err, "field", "name")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "test@example.com"},
		{name: "plus addressing", input: "test+tag@example.co.uk"},
		{name: "empty", input: "", wantErr: true},
		{name: "no at sign", input: "example.com", wantErr: true},
		{name: "display name", input: "test <test@example.com>", wantErr: true},
		{name: "not normalized", input: "Test@Example.com", wantErr: true},
		{name: "too long", input: strings.Repeat("a", auth.MaxEmailLength) + "@example.com", wantErr: true},
		{name: "invalid utf-8", input: "te\xffst@example.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateEmail(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, auth.CodeEncodingError)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, auth.ValidatePassword("testpassword123"))
	assert.NoError(t, auth.ValidatePassword(strings.Repeat("p", auth.MinPasswordLength)))

	for name, input := range map[string]string{
		"too short":    strings.Repeat("p", auth.MinPasswordLength-1),
		"too long":     strings.Repeat("p", auth.MaxPasswordLength+1),
		"invalid utf8": "password\xff",
	} {
		t.Run(name, func(t *testing.T) {
			err := auth.ValidatePassword(input)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, auth.CodeEncodingError)
		})
	}
}

func TestUserUpdate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		update  auth.UserUpdate
		wantErr bool
	}{
		{name: "name only", update: auth.UserUpdate{Name: ptr("New Name")}},
		{name: "email only", update: auth.UserUpdate{Email: ptr("new@example.com")}},
		{name: "hash only", update: auth.UserUpdate{PasswordHash: ptr("hash")}},
		{name: "all fields", update: auth.UserUpdate{Name: ptr("N"), Email: ptr("n@example.com"), PasswordHash: ptr("h")}},
		{name: "no fields", update: auth.UserUpdate{}, wantErr: true},
		{name: "empty name", update: auth.UserUpdate{Name: ptr("")}, wantErr: true},
		{name: "bad email", update: auth.UserUpdate{Email: ptr("nope")}, wantErr: true},
		{name: "unnormalized email", update: auth.UserUpdate{Email: ptr("New@Example.com")}, wantErr: true},
		{name: "empty hash", update: auth.UserUpdate{PasswordHash: ptr("")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.update.Validate()
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, auth.CodeEncodingError)
				return
			}
			assert.NoError(t, err)
		})
	}

	assert.True(t, auth.UserUpdate{}.IsEmpty())
	assert.False(t, auth.UserUpdate{Name: ptr("x")}.IsEmpty())
}
