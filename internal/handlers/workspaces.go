package handlers

import (
	"net/http"

	"tasktree/backend/internal/models"
	"tasktree/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type WorkspaceHandler struct {
	workspaces services.WorkspaceService
}

func NewWorkspaceHandler(workspaces services.WorkspaceService) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaces}
}

type createWorkspaceRequest struct {
	Name        string  `json:"name" binding:"required,max=200"`
	Description *string `json:"description" binding:"omitnil,max=2000"`
}

type updateWorkspaceRequest struct {
	Name        *string `json:"name" binding:"omitnil,min=1,max=200"`
	Description *string `json:"description" binding:"omitnil,max=2000"`
}

func (h *WorkspaceHandler) List(c *gin.Context) {
	workspaces, err := h.workspaces.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if workspaces == nil {
		workspaces = []models.Workspace{}
	}
	c.JSON(http.StatusOK, workspaces)
}

// Get answers null rather than 404 when the workspace is missing or belongs
// to someone else.
func (h *WorkspaceHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	workspace, err := h.workspaces.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if workspace == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, workspace)
}

func (h *WorkspaceHandler) Create(c *gin.Context) {
	var req createWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	id, err := h.workspaces.Create(c.Request.Context(), services.CreateWorkspaceInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *WorkspaceHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	err := h.workspaces.Update(c.Request.Context(), id, models.WorkspaceUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "workspace updated"})
}

func (h *WorkspaceHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.workspaces.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
