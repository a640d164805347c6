// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/holomush/authsvc/internal/auth"
)

const currentUserKey = "authsvc.current_user"

// unmatchedRoute labels requests that hit no route.
const unmatchedRoute = "unmatched"

// requestLogger logs and observes every request once it completes.
func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := h.now()
		c.Next()
		elapsed := h.now().Sub(start)

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()

		h.observer.ObserveRequest(c.Request.Method, route, status, elapsed)
		h.logger.InfoContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"latency_ms", elapsed.Milliseconds(),
			"client_ip", c.ClientIP())
	}
}

// recovery turns a handler panic into a 500 Internal response.
func (h *Handler) recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		h.logger.ErrorContext(c.Request.Context(), "panic recovered",
			"panic", fmt.Sprint(recovered),
			"method", c.Request.Method,
			"route", c.FullPath())
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: string(auth.KindInternal)})
	})
}

// requireUser resolves the bearer token into the current user or aborts
// with 401.
func (h *Handler) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: string(auth.KindUnauthorized)})
			return
		}

		user, err := h.svc.ResolveCurrentUser(c.Request.Context(), token)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.Set(currentUserKey, user)
		c.Next()
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// currentUser returns the user set by requireUser.
func currentUser(c *gin.Context) *auth.UserPublic {
	user, _ := c.MustGet(currentUserKey).(*auth.UserPublic)
	return user
}
