// Package repositories holds the gorm queries behind the workspace and task
// services. Repositories are cheap values bound to a *gorm.DB, so the same
// code runs against the root connection or inside a transaction.
package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repositories struct {
	Workspaces *WorkspaceRepository
	Tasks      *TaskRepository
	Audit      *AuditRepository
}

func New(db *gorm.DB) Repositories {
	return Repositories{
		Workspaces: NewWorkspaceRepository(db),
		Tasks:      NewTaskRepository(db),
		Audit:      NewAuditRepository(db),
	}
}

// Transact runs fn inside one database transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
func Transact(ctx context.Context, db *gorm.DB, fn func(repos Repositories) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

func notFoundAsNil(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
