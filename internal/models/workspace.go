package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type Workspace struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string    `json:"name" gorm:"not null"`
	Description *string   `json:"description,omitempty"`
	UserID      string    `json:"user_id" gorm:"not null;index:idx_workspaces_user"`
	CreatedAt   time.Time `json:"created_at"`
}

func (w *Workspace) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		w.ID = id
	}
	return nil
}

type WorkspaceUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (u WorkspaceUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil
}
