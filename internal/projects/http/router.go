package http

import "github.com/gin-gonic/gin"

// Register attaches project routes to the given router group. Static paths
// are registered before the :id routes.
func (h *Handler) Register(rg *gin.RouterGroup, requireUser, optionalUser gin.HandlerFunc) {
	rg.POST("/save", optionalUser, h.save)
	rg.POST("", requireUser, h.create)
	rg.GET("/user", requireUser, h.list)
	rg.GET("/:id/files", optionalUser, h.files)
	rg.GET("/:id", h.get)
	rg.PUT("/:id", requireUser, h.update)
	rg.DELETE("/:id", requireUser, h.delete)
}
