package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	httpapi "github.com/cipherstudio/sandbox-backend/internal/api/http"
	"github.com/cipherstudio/sandbox-backend/internal/auth"
	"github.com/cipherstudio/sandbox-backend/internal/auth/domain"
)

// RegisterUser creates an account and returns a session token
func (h *Handler) RegisterUser(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "invalid body")
		return
	}

	session, err := h.authService.Register(c.Request.Context(), domain.RegisterRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Mobile:    req.Mobile,
	})
	if err != nil {
		httpapi.WriteError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "token": session.Token, "expiresAt": session.ExpiresAt, "user": session.User})
}

// Login exchanges email and password for a session token
func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "email and password are required")
		return
	}

	session, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httpapi.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "token": session.Token, "expiresAt": session.ExpiresAt, "user": session.User})
}

// GetProfile returns the current user's profile
func (h *Handler) GetProfile(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "user not authenticated"})
		return
	}

	user, err := h.authService.Profile(c.Request.Context(), userID)
	if err != nil {
		httpapi.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "user": user.Public()})
}

// UpdateProfile updates the user's profile
func (h *Handler) UpdateProfile(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "user not authenticated"})
		return
	}

	var req updateProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "invalid request body")
		return
	}

	user, err := h.authService.UpdateProfile(c.Request.Context(), userID, domain.UpdateUserRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Mobile:    req.Mobile,
	})
	if err != nil {
		httpapi.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "user": user.Public()})
}
