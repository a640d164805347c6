// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"

	"github.com/holomush/authsvc/pkg/errutil"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by a UserRepository when the normalized email
// is already taken.
var ErrDuplicateEmail = errors.New("duplicate email")

// Error codes carried by errors that cross the service boundary.
const (
	CodeDuplicateEmail     = "AUTH_DUPLICATE_EMAIL"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeUnauthorized       = "AUTH_UNAUTHORIZED"
	CodeStoreError         = "AUTH_STORE_ERROR"
	CodeEncodingError      = "AUTH_ENCODING_ERROR"
)

// Kind is the public error taxonomy exposed to callers.
type Kind string

// Error kinds.
const (
	KindDuplicateEmail     Kind = "DuplicateEmail"
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindUnauthorized       Kind = "Unauthorized"
	KindStoreError         Kind = "StoreError"
	KindEncodingError      Kind = "EncodingError"
	KindInternal           Kind = "Internal"
)

// KindOf classifies err by its oops code. A nil error has no kind; any error
// without a known code is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	switch errutil.Code(err) {
	case CodeDuplicateEmail:
		return KindDuplicateEmail
	case CodeInvalidCredentials:
		return KindInvalidCredentials
	case CodeUnauthorized:
		return KindUnauthorized
	case CodeStoreError:
		return KindStoreError
	case CodeEncodingError:
		return KindEncodingError
	default:
		return KindInternal
	}
}

// IsRetryable reports whether the operation that produced err may succeed if
// repeated. Only store failures qualify.
func IsRetryable(err error) bool {
	return KindOf(err) == KindStoreError
}

// The constructors below build fresh errors rather than wrapping the cause.
// oops resolves the code from the innermost error in a chain, so wrapping a
// coded repository error would leak its code into the public taxonomy.

func duplicateEmailError(email string) error {
	return oops.Code(CodeDuplicateEmail).
		With("email", email).
		Errorf("email already registered")
}

func invalidCredentialsError() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}

func unauthorizedError(reason string) error {
	return oops.Code(CodeUnauthorized).
		With("reason", reason).
		Errorf("not authenticated")
}

func storeError(operation string, cause error) error {
	return oops.Code(CodeStoreError).
		With("operation", operation).
		With("cause", cause.Error()).
		Errorf("user store unavailable")
}

func encodingError(field, format string, args ...any) error {
	return oops.Code(CodeEncodingError).
		With("field", field).
		Errorf(format, args...)
}
