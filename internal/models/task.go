package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type Task struct {
	ID          uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	Title       string     `json:"title" gorm:"not null"`
	Completed   bool       `json:"completed" gorm:"not null;default:false"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty" gorm:"type:uuid;index:idx_tasks_parent;index:idx_tasks_workspace_parent,priority:2"`
	WorkspaceID uuid.UUID  `json:"workspace_id" gorm:"type:uuid;not null;index:idx_tasks_workspace;index:idx_tasks_workspace_parent,priority:1"`
	UserID      string     `json:"user_id" gorm:"not null;index:idx_tasks_user"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		t.ID = id
	}
	return nil
}

// IsRoot reports whether the task sits at the top of its workspace forest.
func (t *Task) IsRoot() bool {
	return t.ParentID == nil
}

// TaskUpdate is a partial update; nil fields are left untouched.
type TaskUpdate struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}
