// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/authsvc/internal/auth"
	"github.com/holomush/authsvc/internal/auth/authtest"
)

// logEntry represents a parsed JSON log entry.
type logEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Reason    string `json:"reason"`
	Operation string `json:"operation"`
	Error     string `json:"error"`
	UserID    string `json:"user_id"`
}

func parseLogs(t *testing.T, buf *bytes.Buffer) []logEntry {
	t.Helper()
	var entries []logEntry
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var entry logEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func filterMsg(entries []logEntry, msg string) []logEntry {
	var out []logEntry
	for _, e := range entries {
		if e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}

func newLoggingService(t *testing.T, buf *bytes.Buffer) *auth.Service {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc, err := auth.NewAuthService(
		authtest.NewMemoryUserStore(),
		authtest.NewFastHasher(),
		newTokenService(t, newClock()),
		auth.WithLogger(logger),
	)
	require.NoError(t, err)
	return svc
}

func TestService_Login_LogsFailureReason(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	svc := newLoggingService(t, &buf)

	registered, err := svc.Register(ctx, "Test User", "test@example.com", "testpassword123")
	require.NoError(t, err)
	buf.Reset()

	_, err = svc.Login(ctx, "test@example.com", "wrongpassword")
	require.Error(t, err)
	_, err = svc.Login(ctx, "nobody@example.com", "testpassword123")
	require.Error(t, err)

	failures := filterMsg(parseLogs(t, &buf), "login failed")
	require.Len(t, failures, 2)

	assert.Equal(t, "INFO", failures[0].Level)
	assert.Equal(t, "bad_password", failures[0].Reason)
	assert.Equal(t, registered.ID.String(), failures[0].UserID)

	assert.Equal(t, "unknown_email", failures[1].Reason)
	assert.Empty(t, failures[1].UserID)
}

func TestService_Login_NeverLogsPassword(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	svc := newLoggingService(t, &buf)

	_, err := svc.Register(ctx, "Test User", "test@example.com", "testpassword123")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "test@example.com", "testpassword123")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "test@example.com", "wrongpassword")
	require.Error(t, err)

	assert.NotContains(t, buf.String(), "testpassword123")
	assert.NotContains(t, buf.String(), "wrongpassword")
}

func TestService_ResolveCurrentUser_LogsRejectionReason(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	svc := newLoggingService(t, &buf)

	_, err := svc.ResolveCurrentUser(ctx, "garbage")
	require.Error(t, err)

	rejected := filterMsg(parseLogs(t, &buf), "token rejected")
	require.Len(t, rejected, 1)
	assert.Equal(t, "DEBUG", rejected[0].Level)
	assert.Equal(t, string(auth.TokenMalformed), rejected[0].Reason)
}
