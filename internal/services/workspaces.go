package services

import (
	"context"
	"errors"
	"time"

	"tasktree/backend/internal/models"
	"tasktree/backend/internal/repositories"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const resourceWorkspace = "workspace"

type WorkspaceService interface {
	List(ctx context.Context) ([]models.Workspace, error)
	// Get returns nil, without error, when the workspace is missing or not
	// owned by the caller.
	Get(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
	Create(ctx context.Context, input CreateWorkspaceInput) (uuid.UUID, error)
	Update(ctx context.Context, id uuid.UUID, update models.WorkspaceUpdate) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type CreateWorkspaceInput struct {
	Name        string
	Description *string
}

type WorkspaceServiceImpl struct {
	db     *gorm.DB
	guard  *AccessGuard
	logger zerolog.Logger
	now    func() time.Time
}

func NewWorkspaceService(db *gorm.DB, guard *AccessGuard, logger zerolog.Logger) *WorkspaceServiceImpl {
	return &WorkspaceServiceImpl{
		db:     db,
		guard:  guard,
		logger: logger.With().Str("service", "workspaces").Logger(),
		now:    time.Now,
	}
}

// WithClock replaces the timestamp source; tests use it to get stable ordering.
func (s *WorkspaceServiceImpl) WithClock(now func() time.Time) *WorkspaceServiceImpl {
	s.now = now
	return s
}

func (s *WorkspaceServiceImpl) List(ctx context.Context) ([]models.Workspace, error) {
	caller, err := s.guard.Caller(ctx)
	if err != nil {
		return nil, err
	}
	return repositories.NewWorkspaceRepository(s.db).ListByOwner(ctx, caller.Subject)
}

func (s *WorkspaceServiceImpl) Get(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	caller, err := s.guard.Caller(ctx)
	if err != nil {
		return nil, err
	}

	var found *models.Workspace
	err = repositories.Transact(ctx, s.db, func(repos repositories.Repositories) error {
		ws, err := s.loadOwned(ctx, repos, caller, id, "workspace.get")
		found = ws
		return err
	})
	if errors.Is(err, ErrUnauthorized) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *WorkspaceServiceImpl) Create(ctx context.Context, input CreateWorkspaceInput) (uuid.UUID, error) {
	caller, err := s.guard.Caller(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	workspace := &models.Workspace{
		Name:        input.Name,
		Description: input.Description,
		UserID:      caller.Subject,
		CreatedAt:   s.now(),
	}
	if err := repositories.NewWorkspaceRepository(s.db).Create(ctx, workspace); err != nil {
		return uuid.Nil, err
	}

	s.logger.Info().Str("workspace_id", workspace.ID.String()).Str("subject", caller.Subject).Msg("workspace created")
	return workspace.ID, nil
}

func (s *WorkspaceServiceImpl) Update(ctx context.Context, id uuid.UUID, update models.WorkspaceUpdate) error {
	caller, err := s.guard.Caller(ctx)
	if err != nil {
		return err
	}

	return repositories.Transact(ctx, s.db, func(repos repositories.Repositories) error {
		if _, err := s.loadOwned(ctx, repos, caller, id, "workspace.update"); err != nil {
			return err
		}
		if update.IsEmpty() {
			return nil
		}

		fields := map[string]interface{}{}
		if update.Name != nil {
			fields["name"] = *update.Name
		}
		if update.Description != nil {
			fields["description"] = *update.Description
		}
		return repos.Workspaces.Update(ctx, id, fields)
	})
}

// Delete removes the workspace and every task that references it. Tasks are
// selected by workspace, not by walking the tree, so orphans go too.
func (s *WorkspaceServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	caller, err := s.guard.Caller(ctx)
	if err != nil {
		return err
	}

	var removed int64
	err = repositories.Transact(ctx, s.db, func(repos repositories.Repositories) error {
		if _, err := s.loadOwned(ctx, repos, caller, id, "workspace.delete"); err != nil {
			return err
		}

		n, err := repos.Tasks.DeleteByWorkspace(ctx, id)
		if err != nil {
			return err
		}
		removed = n
		return repos.Workspaces.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("workspace_id", id.String()).
		Int64("tasks_removed", removed).
		Msg("workspace deleted")
	return nil
}

func (s *WorkspaceServiceImpl) loadOwned(ctx context.Context, repos repositories.Repositories, caller Identity, id uuid.UUID, action string) (*models.Workspace, error) {
	workspace, err := repos.Workspaces.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	req := AccessRequest{Action: action, Resource: resourceWorkspace, ResourceID: id}
	if workspace != nil {
		req.OwnerID = workspace.UserID
	}
	if err := s.guard.Authorize(ctx, caller, req); err != nil {
		return nil, err
	}
	return workspace, nil
}
