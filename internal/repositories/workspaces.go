package repositories

import (
	"context"
	"fmt"

	"tasktree/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type WorkspaceRepository struct {
	db *gorm.DB
}

func NewWorkspaceRepository(db *gorm.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

// FindByID returns nil without error when the workspace does not exist.
func (r *WorkspaceRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	var workspace models.Workspace
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&workspace).Error
	if err != nil {
		if err = notFoundAsNil(err); err != nil {
			return nil, fmt.Errorf("failed to load workspace %s: %w", id, err)
		}
		return nil, nil
	}
	return &workspace, nil
}

// ListByOwner returns the owner's workspaces, newest first.
func (r *WorkspaceRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Workspace, error) {
	workspaces := []models.Workspace{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&workspaces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	return workspaces, nil
}

func (r *WorkspaceRepository) Create(ctx context.Context, workspace *models.Workspace) error {
	if err := r.db.WithContext(ctx).Create(workspace).Error; err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

func (r *WorkspaceRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.Workspace{}).
		Where("id = ?", id).
		Updates(fields).Error
	if err != nil {
		return fmt.Errorf("failed to update workspace %s: %w", id, err)
	}
	return nil
}

func (r *WorkspaceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Workspace{}).Error; err != nil {
		return fmt.Errorf("failed to delete workspace %s: %w", id, err)
	}
	return nil
}
