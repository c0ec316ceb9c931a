package services

import (
	"context"
	"time"

	"tasktree/backend/internal/models"
	"tasktree/backend/internal/repositories"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const resourceTask = "task"

type TaskService interface {
	ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.Task, error)
	// GetChildren lists the direct children of parentID, or the roots of the
	// workspace when parentID is nil.
	GetChildren(ctx context.Context, workspaceID uuid.UUID, parentID *uuid.UUID) ([]models.Task, error)
	Create(ctx context.Context, input CreateTaskInput) (uuid.UUID, error)
	Update(ctx context.Context, id uuid.UUID, update models.TaskUpdate) error
	GetDescendantIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type CreateTaskInput struct {
	Title       string
	WorkspaceID uuid.UUID
	ParentID    *uuid.UUID
	Completed   *bool
}

type TaskServiceImpl struct {
	db     *gorm.DB
	guard  *AccessGuard
	logger zerolog.Logger
	now    func() time.Time
}

func NewTaskService(db *gorm.DB, guard *AccessGuard, logger zerolog.Logger) *TaskServiceImpl {
	return &TaskServiceImpl{
		db:     db,
		guard:  guard,
		logger: logger.With().Str("service", "tasks").Logger(),
		now:    time.Now,
	}
}

func (s *TaskServiceImpl) WithClock(now func() time.Time) *TaskServiceImpl {
	s.now = now
	return s
}

func (s *TaskServiceImpl) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.Task, error) {
	caller, err := s.guard.Caller(ctx)
	if err != nil {
		return nil, err
	}

	var tasks []models.Task
	err = repositories.Transact(ctx, s.db, func(repos repositories.Repositories) error {
		if err := s.checkWorkspace(ctx, repos, caller, workspaceID, "task.list"); err != nil {
			return err
		}
		list, err := repos.Tasks.ListByWorkspace(ctx, workspaceID)
		tasks = list
		return err
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *TaskServiceImpl) GetChildren(ctx context.Context, workspaceID uuid.UUID, parentID *uuid.UUID) ([]models.Task, error) {
	caller, err := s.guard.Caller(ctx)
	if err != nil {
		return nil, err
	}

	var tasks []models.Task
	err = repositories.Transact(ctx, s.db, func(repos repositories.Repositories) error {
		if err := s.checkWorkspace(ctx, repos, caller, workspaceID, "task.children"); err != nil {
			return err
		}
		children, err := repos.Tasks.ListChildren(ctx, workspaceID, parentID)
		tasks = children
		return err
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *TaskServiceImpl) Create(ctx context.Context, input CreateTaskInput) (uuid.UUID, error) {
	caller, err := s.guard.Caller(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	now := s.now()
	task := &models.Task{
		Title:       input.Title,
		ParentID:    input.ParentID,
		WorkspaceID: input.WorkspaceID,
		UserID:      caller.Subject,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.Completed != nil {
		task.Completed = *input.Completed
	}

	err = repositories.Transact(ctx, s.db, func(repos repositories.Repositories) error {
		if err := s.checkWorkspace(ctx, repos, caller, input.WorkspaceID, "task.create"); err != nil {
			return err
		}
		if input.ParentID != nil {
			parent, err := repos.Tasks.FindByID(ctx, *input.ParentID)
			if err != nil {
				return err
			}
			if parent == nil || parent.WorkspaceID != input.WorkspaceID {
				s.logger.Warn().
					Str("parent_id", input.ParentID.String()).
					Str("workspace_id", input.WorkspaceID.String()).
					Msg("rejected task with foreign or missing parent")
				return ErrInvalidParent
			}
		}
		return repos.Tasks.Create(ctx, task)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return task.ID, nil
}

// Update applies the provided fields and always refreshes updated_at, even
// when nothing else changes.
func (s *TaskServiceImpl) Update(ctx context.Context, id uuid.UUID, update models.TaskUpdate) error {
	caller, err := s.guard.Caller(ctx)
	if err != nil {
		return err
	}

	return repositories.Transact(ctx, s.db, func(repos repositories.Repositories) error {
		if _, err := s.loadOwned(ctx, repos, caller, id, "task.update"); err != nil {
			return err
		}

		fields := map[string]interface{}{"updated_at": s.now()}
		if update.Title != nil {
			fields["title"] = *update.Title
		}
		if update.Completed != nil {
			fields["completed"] = *update.Completed
		}
		return repos.Tasks.Update(ctx, id, fields)
	})
}

func (s *TaskServiceImpl) GetDescendantIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	caller, err := s.guard.Caller(ctx)
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	err = repositories.Transact(ctx, s.db, func(repos repositories.Repositories) error {
		if _, err := s.loadOwned(ctx, repos, caller, id, "task.descendants"); err != nil {
			return err
		}
		descendants, err := collectDescendants(ctx, repos.Tasks, id)
		ids = descendants
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkCompleted completes the task and its whole subtree. Ancestors are
// never touched, and there is no matching cascade for un-completing.
func (s *TaskServiceImpl) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	caller, err := s.guard.Caller(ctx)
	if err != nil {
		return err
	}

	var affected int
	err = repositories.Transact(ctx, s.db, func(repos repositories.Repositories) error {
		if _, err := s.loadOwned(ctx, repos, caller, id, "task.complete"); err != nil {
			return err
		}
		descendants, err := collectDescendants(ctx, repos.Tasks, id)
		if err != nil {
			return err
		}

		targets := append([]uuid.UUID{id}, descendants...)
		affected = len(targets)
		return repos.Tasks.UpdateMany(ctx, targets, map[string]interface{}{
			"completed":  true,
			"updated_at": s.now(),
		})
	})
	if err != nil {
		return err
	}

	s.logger.Debug().Str("task_id", id.String()).Int("tasks", affected).Msg("task subtree completed")
	return nil
}

// Delete removes every descendant first, then the task itself.
func (s *TaskServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	caller, err := s.guard.Caller(ctx)
	if err != nil {
		return err
	}

	var removed int
	err = repositories.Transact(ctx, s.db, func(repos repositories.Repositories) error {
		if _, err := s.loadOwned(ctx, repos, caller, id, "task.delete"); err != nil {
			return err
		}
		descendants, err := collectDescendants(ctx, repos.Tasks, id)
		if err != nil {
			return err
		}

		if err := repos.Tasks.DeleteMany(ctx, descendants); err != nil {
			return err
		}
		removed = len(descendants) + 1
		return repos.Tasks.DeleteMany(ctx, []uuid.UUID{id})
	})
	if err != nil {
		return err
	}

	s.logger.Info().Str("task_id", id.String()).Int("tasks_removed", removed).Msg("task deleted")
	return nil
}

func (s *TaskServiceImpl) checkWorkspace(ctx context.Context, repos repositories.Repositories, caller Identity, workspaceID uuid.UUID, action string) error {
	workspace, err := repos.Workspaces.FindByID(ctx, workspaceID)
	if err != nil {
		return err
	}

	req := AccessRequest{Action: action, Resource: resourceWorkspace, ResourceID: workspaceID}
	if workspace != nil {
		req.OwnerID = workspace.UserID
	}
	return s.guard.Authorize(ctx, caller, req)
}

func (s *TaskServiceImpl) loadOwned(ctx context.Context, repos repositories.Repositories, caller Identity, id uuid.UUID, action string) (*models.Task, error) {
	task, err := repos.Tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	req := AccessRequest{Action: action, Resource: resourceTask, ResourceID: id}
	if task != nil {
		req.OwnerID = task.UserID
	}
	if err := s.guard.Authorize(ctx, caller, req); err != nil {
		return nil, err
	}
	return task, nil
}
