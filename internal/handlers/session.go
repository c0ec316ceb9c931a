package handlers

import (
	"context"
	"net/http"

	"tasktree/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

// WorkspaceSelector is satisfied by session.Selector.
type WorkspaceSelector interface {
	Current(ctx context.Context) (*models.Workspace, error)
	Select(ctx context.Context, workspaceID *uuid.UUID) (*models.Workspace, error)
}

type SessionHandler struct {
	selector WorkspaceSelector
}

func NewSessionHandler(selector WorkspaceSelector) *SessionHandler {
	return &SessionHandler{selector: selector}
}

type selectWorkspaceRequest struct {
	WorkspaceID *uuid.UUID `json:"workspace_id"`
}

func (h *SessionHandler) Current(c *gin.Context) {
	workspace, err := h.selector.Current(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	writeWorkspace(c, workspace)
}

// Select switches the caller's workspace; {"workspace_id": null} clears it.
func (h *SessionHandler) Select(c *gin.Context) {
	var req selectWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}
	workspace, err := h.selector.Select(c.Request.Context(), req.WorkspaceID)
	if err != nil {
		respondError(c, err)
		return
	}
	writeWorkspace(c, workspace)
}

func writeWorkspace(c *gin.Context, workspace *models.Workspace) {
	if workspace == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, workspace)
}
