package repositories

import (
	"context"
	"fmt"

	"tasktree/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// batchSize bounds the IN lists of bulk updates and deletes.
const batchSize = 500

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// FindByID returns nil without error when the task does not exist.
func (r *TaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if err != nil {
		if err = notFoundAsNil(err); err != nil {
			return nil, fmt.Errorf("failed to load task %s: %w", id, err)
		}
		return nil, nil
	}
	return &task, nil
}

func (r *TaskRepository) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.Task, error) {
	tasks := []models.Task{}
	err := r.creationOrder(r.db.WithContext(ctx)).
		Where("workspace_id = ?", workspaceID).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks of workspace %s: %w", workspaceID, err)
	}
	return tasks, nil
}

// ListChildren returns the direct children of parentID inside the workspace,
// or the workspace roots when parentID is nil.
func (r *TaskRepository) ListChildren(ctx context.Context, workspaceID uuid.UUID, parentID *uuid.UUID) ([]models.Task, error) {
	query := r.creationOrder(r.db.WithContext(ctx)).Where("workspace_id = ?", workspaceID)
	if parentID == nil {
		query = query.Where("parent_id IS NULL")
	} else {
		query = query.Where("parent_id = ?", *parentID)
	}

	tasks := []models.Task{}
	if err := query.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("failed to list child tasks: %w", err)
	}
	return tasks, nil
}

// ChildIDs returns the ids of the direct children of parentID in creation order.
func (r *TaskRepository) ChildIDs(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := r.creationOrder(r.db.WithContext(ctx).Model(&models.Task{})).
		Where("parent_id = ?", parentID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", parentID, err)
	}
	return ids, nil
}

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return r.UpdateMany(ctx, []uuid.UUID{id}, fields)
}

func (r *TaskRepository) UpdateMany(ctx context.Context, ids []uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	for _, chunk := range chunkIDs(ids) {
		err := r.db.WithContext(ctx).
			Model(&models.Task{}).
			Where("id IN ?", chunk).
			Updates(fields).Error
		if err != nil {
			return fmt.Errorf("failed to update %d tasks: %w", len(chunk), err)
		}
	}
	return nil
}

func (r *TaskRepository) DeleteMany(ctx context.Context, ids []uuid.UUID) error {
	for _, chunk := range chunkIDs(ids) {
		if err := r.db.WithContext(ctx).Where("id IN ?", chunk).Delete(&models.Task{}).Error; err != nil {
			return fmt.Errorf("failed to delete %d tasks: %w", len(chunk), err)
		}
	}
	return nil
}

// DeleteByWorkspace removes every task of the workspace regardless of its
// position in the tree and returns how many rows were deleted.
func (r *TaskRepository) DeleteByWorkspace(ctx context.Context, workspaceID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).Delete(&models.Task{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete tasks of workspace %s: %w", workspaceID, result.Error)
	}
	return result.RowsAffected, nil
}

func (r *TaskRepository) creationOrder(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC").Order("id ASC")
}

func chunkIDs(ids []uuid.UUID) [][]uuid.UUID {
	var chunks [][]uuid.UUID
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
