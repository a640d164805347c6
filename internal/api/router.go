// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package api is the HTTP boundary of authsvc. It decodes requests, calls
// the auth service and encodes results. Error bodies are always
// {"error": "<Kind>"} and never carry internal detail.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/holomush/authsvc/internal/auth"
)

// APIPrefix is the versioned mount point. Routes are also served at the root.
const APIPrefix = "/api/v1"

// Authenticator is the subset of *auth.Service the handlers call.
type Authenticator interface {
	Register(ctx context.Context, name, email, password string) (*auth.UserPublic, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	ResolveCurrentUser(ctx context.Context, token string) (*auth.UserPublic, error)
	UpdateUser(ctx context.Context, id ulid.ULID, in auth.UpdateUserInput) (*auth.UserPublic, error)
	DeleteUser(ctx context.Context, id ulid.ULID) error
}

// RequestObserver records served requests. observability.HTTPMetrics
// satisfies it.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, string, int, time.Duration) {}

// Handler serves the auth endpoints.
type Handler struct {
	svc      Authenticator
	logger   *slog.Logger
	observer RequestObserver
	now      func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithObserver sets the request metrics sink.
func WithObserver(o RequestObserver) Option {
	return func(h *Handler) {
		if o != nil {
			h.observer = o
		}
	}
}

// WithClock sets the clock used to time requests.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler creates a Handler.
func NewHandler(svc Authenticator, opts ...Option) *Handler {
	h := &Handler{
		svc:      svc,
		logger:   slog.Default(),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds the gin engine. The caller owns gin.SetMode.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(h.requestLogger(), h.recovery())

	h.mount(&r.RouterGroup)
	h.mount(r.Group(APIPrefix))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "NotFound"})
	})
	return r
}

func (h *Handler) mount(g *gin.RouterGroup) {
	g.POST("/register", h.register)
	g.POST("/login", h.login)

	me := g.Group("/me", h.requireUser())
	me.GET("", h.me)
	me.PATCH("", h.updateMe)
	me.DELETE("", h.deleteMe)
}
