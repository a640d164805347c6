// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/holomush/authsvc/internal/auth"
	"github.com/holomush/authsvc/pkg/errutil"
)

type errorResponse struct {
	Error string `json:"error"`
}

// StatusFor maps a public error kind to its HTTP status.
func StatusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindDuplicateEmail, auth.KindEncodingError:
		return http.StatusBadRequest
	case auth.KindInvalidCredentials, auth.KindUnauthorized:
		return http.StatusUnauthorized
	case auth.KindStoreError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError aborts the request with the kind of err as the body. 5xx
// responses are logged with the full oops detail.
func (h *Handler) writeError(c *gin.Context, err error) {
	kind := auth.KindOf(err)
	status := StatusFor(kind)

	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	if status >= http.StatusInternalServerError {
		errutil.LogError(c.Request.Context(), h.logger, "request failed", err,
			"method", c.Request.Method,
			"route", c.FullPath(),
			"kind", string(kind))
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: string(kind)})
}

// badRequest answers an undecodable body.
func (h *Handler) badRequest(c *gin.Context, operation string, err error) {
	h.logger.DebugContext(c.Request.Context(), "request body rejected",
		"operation", operation,
		"error", err.Error())
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: string(auth.KindEncodingError)})
}
