// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/holomush/authsvc/internal/auth"
)

// TokenType is the only token type issued.
const TokenType = "bearer"

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// tokenResponse carries the token under both "token" and the OAuth2
// "access_token" name so either client convention works.
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "register", err)
		return
	}

	user, err := h.svc.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// login accepts a JSON body or an OAuth2 password-grant style form with
// username and password fields.
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	switch c.ContentType() {
	case binding.MIMEPOSTForm, binding.MIMEMultipartPOSTForm:
		req.Email = c.PostForm("username")
		req.Password = c.PostForm("password")
	default:
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "login", err)
			return
		}
	}

	result, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		Token:       result.Token,
		AccessToken: result.Token,
		TokenType:   TokenType,
		ExpiresIn:   int64(result.ExpiresIn / time.Second),
	})
}

func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (h *Handler) updateMe(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "update", err)
		return
	}

	user, err := h.svc.UpdateUser(c.Request.Context(), currentUser(c).ID, auth.UpdateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) deleteMe(c *gin.Context) {
	if err := h.svc.DeleteUser(c.Request.Context(), currentUser(c).ID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
