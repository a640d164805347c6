// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides password authentication and stateless session
// tokens.
//
// # Domain Types
//
// Users should be created using NewUser, which normalizes the email and
// validates the name. Partial updates go through UserUpdate, which is
// validated before it reaches a UserRepository.
//
// # Primitives
//
//   - Argon2idHasher - argon2id password hashing, legacy bcrypt verification
//   - TokenService - HS256 session tokens with an injected clock
//
// # Services
//
// Service coordinates registration, login, current-user resolution, profile
// updates and account deletion. Errors it returns carry a code that KindOf
// maps onto the public taxonomy; unknown users and wrong passwords are
// indistinguishable to callers.
package auth
