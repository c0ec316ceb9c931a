package handlers

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the API on group. Authentication and rate limiting
// are expected to be installed on the group already.
func RegisterRoutes(group *gin.RouterGroup, workspaces *WorkspaceHandler, tasks *TaskHandler, sessions *SessionHandler) {
	ws := group.Group("/workspaces")
	{
		ws.GET("", workspaces.List)
		ws.POST("", workspaces.Create)
		ws.GET("/:id", workspaces.Get)
		ws.PATCH("/:id", workspaces.Update)
		ws.DELETE("/:id", workspaces.Delete)
		ws.GET("/:id/tasks", tasks.ListByWorkspace)
		ws.GET("/:id/tasks/children", tasks.GetChildren)
	}

	t := group.Group("/tasks")
	{
		t.POST("", tasks.Create)
		t.PATCH("/:id", tasks.Update)
		t.DELETE("/:id", tasks.Delete)
		t.GET("/:id/descendants", tasks.GetDescendantIDs)
		t.POST("/:id/complete", tasks.MarkCompleted)
	}

	group.GET("/session/workspace", sessions.Current)
	group.PUT("/session/workspace", sessions.Select)
}
