package handlers

import (
	"errors"
	"net/http"

	"tasktree/backend/internal/models"
	"tasktree/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

type TaskHandler struct {
	tasks services.TaskService
}

func NewTaskHandler(tasks services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

type createTaskRequest struct {
	Title       string     `json:"title" binding:"required,max=500"`
	WorkspaceID uuid.UUID  `json:"workspace_id" binding:"required"`
	ParentID    *uuid.UUID `json:"parent_id"`
	Completed   *bool      `json:"completed"`
}

type updateTaskRequest struct {
	Title     *string `json:"title" binding:"omitnil,min=1,max=500"`
	Completed *bool   `json:"completed"`
}

func (h *TaskHandler) ListByWorkspace(c *gin.Context) {
	workspaceID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tasks, err := h.tasks.ListByWorkspace(c.Request.Context(), workspaceID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondTasks(c, tasks)
}

// GetChildren lists the direct children of ?parent_id, or the workspace's
// root tasks when the parameter is absent.
func (h *TaskHandler) GetChildren(c *gin.Context) {
	workspaceID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var parentID *uuid.UUID
	if raw := c.Query("parent_id"); raw != "" {
		id, err := uuid.FromString(raw)
		if err != nil {
			respondBadRequest(c, errors.New("parent_id must be a UUID"))
			return
		}
		parentID = &id
	}

	tasks, err := h.tasks.GetChildren(c.Request.Context(), workspaceID, parentID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondTasks(c, tasks)
}

func (h *TaskHandler) Create(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	id, err := h.tasks.Create(c.Request.Context(), services.CreateTaskInput{
		Title:       req.Title,
		WorkspaceID: req.WorkspaceID,
		ParentID:    req.ParentID,
		Completed:   req.Completed,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (h *TaskHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	err := h.tasks.Update(c.Request.Context(), id, models.TaskUpdate{
		Title:     req.Title,
		Completed: req.Completed,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task updated"})
}

func (h *TaskHandler) GetDescendantIDs(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	ids, err := h.tasks.GetDescendantIDs(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	c.JSON(http.StatusOK, ids)
}

func (h *TaskHandler) MarkCompleted(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.tasks.MarkCompleted(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "task completed"})
}

func (h *TaskHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.tasks.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondTasks(c *gin.Context, tasks []models.Task) {
	if tasks == nil {
		tasks = []models.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}
