package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cipherstudio/sandbox-backend/internal/api/http/middleware"
	authdomain "github.com/cipherstudio/sandbox-backend/internal/auth/domain"
	"github.com/cipherstudio/sandbox-backend/internal/blobstore"
	"github.com/cipherstudio/sandbox-backend/internal/logging"
	"github.com/cipherstudio/sandbox-backend/internal/projects/domain"
)

// StatusFor maps a service error onto an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, authdomain.ErrValidation),
		errors.Is(err, blobstore.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, authdomain.ErrUnauthenticated), errors.Is(err, authdomain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, authdomain.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateKey), errors.Is(err, authdomain.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, blobstore.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, blobstore.ErrQuotaExceeded):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes the {"ok": false, "error": ...} body for err. Server
// side failures are logged and their detail is not echoed.
func WriteError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status < http.StatusInternalServerError {
		c.JSON(status, gin.H{"ok": false, "error": err.Error()})
		return
	}

	logging.FromContext(c.Request.Context()).Error("request failed",
		"status", status, "path", c.FullPath(), "error", err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	body := gin.H{"ok": false, "error": msg}
	// lets a client quote the id that appears in the server log
	if rid := middleware.GetRequestID(c.Request.Context()); rid != "" {
		body["request_id"] = rid
	}
	c.JSON(status, body)
}

// BadRequest writes a 400 with msg.
func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": msg})
}
