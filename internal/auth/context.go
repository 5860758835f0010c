package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/cipherstudio/sandbox-backend/internal/logging"
)

const (
	CtxUserID = "user_id"
)

// SetCaller stores the authenticated user id in the Gin context and tags the
// request logger with it.
func SetCaller(c *gin.Context, userID int64) {
	c.Set(CtxUserID, userID)
	ctx := c.Request.Context()
	l := logging.FromContext(ctx).With("user_id", userID)
	c.Request = c.Request.WithContext(logging.WithContext(ctx, l))
}

// UserID extracts the user id set by RequireUser or OptionalUser.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// CallerID returns the caller's id, or nil for an anonymous request.
func CallerID(c *gin.Context) *int64 {
	if id, ok := UserID(c); ok {
		return &id
	}
	return nil
}
