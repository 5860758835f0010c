package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/cipherstudio/sandbox-backend/internal/api/http/middleware"
	authhttp "github.com/cipherstudio/sandbox-backend/internal/auth/http"
	authmw "github.com/cipherstudio/sandbox-backend/internal/auth/middleware"
	projecthttp "github.com/cipherstudio/sandbox-backend/internal/projects/http"
)

type APIDeps struct {
	Accounts    authhttp.AccountService
	Projects    projecthttp.Projects
	Gate        authmw.Authenticator
	AuthLimiter *middleware.IPRateLimiter
}

// RegisterAPI mounts the account and project routes under /api.
func RegisterAPI(r *gin.Engine, dep APIDeps) {
	api := r.Group("/api")

	requireUser := authmw.RequireUser(dep.Gate)
	optionalUser := authmw.OptionalUser(dep.Gate)

	limit := func(c *gin.Context) { c.Next() }
	if dep.AuthLimiter != nil {
		limit = middleware.RateLimit(dep.AuthLimiter)
	}

	authhttp.New(dep.Accounts).Register(api.Group("/auth"), requireUser, limit)
	projecthttp.New(dep.Projects).Register(api.Group("/projects"), requireUser, optionalUser)
}
