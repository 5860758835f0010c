package http

import "github.com/gin-gonic/gin"

// Register mounts the account routes. requireUser guards the profile
// endpoints and limit throttles the credential endpoints.
func (h *Handler) Register(rg *gin.RouterGroup, requireUser, limit gin.HandlerFunc) {
	rg.POST("/register", limit, h.RegisterUser)
	rg.POST("/login", limit, h.Login)
	rg.GET("/profile", requireUser, h.GetProfile)
	rg.PUT("/profile", requireUser, h.UpdateProfile)
}
