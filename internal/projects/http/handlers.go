package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	httpapi "github.com/cipherstudio/sandbox-backend/internal/api/http"
	"github.com/cipherstudio/sandbox-backend/internal/auth"
	"github.com/cipherstudio/sandbox-backend/internal/projects/domain"
)

func (h *Handler) save(c *gin.Context) {
	var req saveReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		httpapi.BadRequest(c, "invalid body")
		return
	}

	p, err := h.svc.SaveProject(c.Request.Context(), domain.SaveRequest{
		OwnerID:     auth.CallerID(c),
		Name:        req.Name,
		Description: req.Description,
		Files:       req.Files,
	})
	if err != nil {
		httpapi.WriteError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "project": p})
}

func (h *Handler) create(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		httpapi.BadRequest(c, "invalid body")
		return
	}

	userID, _ := auth.UserID(c)
	p, err := h.svc.CreateProject(c.Request.Context(), userID, req.Name, req.Description)
	if err != nil {
		httpapi.WriteError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "project": p})
}

func (h *Handler) list(c *gin.Context) {
	userID, _ := auth.UserID(c)
	items, err := h.svc.ListProjects(c.Request.Context(), userID)
	if err != nil {
		httpapi.WriteError(c, err)
		return
	}
	if items == nil {
		items = []domain.Project{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "projects": items})
}

func (h *Handler) get(c *gin.Context) {
	p, err := h.svc.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpapi.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

func (h *Handler) files(c *gin.Context) {
	out, err := h.svc.LoadProjectFiles(c.Request.Context(), c.Param("id"), auth.CallerID(c))
	if err != nil {
		httpapi.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": out.Project, "files": out.Files})
}

func (h *Handler) update(c *gin.Context) {
	var req updateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.BadRequest(c, "invalid body")
		return
	}

	p, err := h.svc.UpdateProject(c.Request.Context(), c.Param("id"), auth.CallerID(c), domain.UpdateRequest{
		Name:        req.Name,
		Description: req.Description,
		Files:       req.Files,
	})
	if err != nil {
		httpapi.WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p})
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.DeleteProject(c.Request.Context(), c.Param("id"), auth.CallerID(c)); err != nil {
		httpapi.WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
