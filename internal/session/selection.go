package session

import (
	"context"

	"tasktree/backend/internal/models"
	"tasktree/backend/internal/services"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
)

// Selector tracks the caller's current workspace. The stored id is only a
// hint: every read is checked against the workspaces the caller can see.
type Selector struct {
	store      Store
	workspaces services.WorkspaceService
	logger     zerolog.Logger
}

func NewSelector(store Store, workspaces services.WorkspaceService, logger zerolog.Logger) *Selector {
	return &Selector{
		store:      store,
		workspaces: workspaces,
		logger:     logger.With().Str("component", "selection").Logger(),
	}
}

// Current returns the selected workspace, or nil when nothing is selected. A
// selection pointing at a deleted or foreign workspace is cleared.
func (s *Selector) Current(ctx context.Context) (*models.Workspace, error) {
	identity, ok := services.IdentityFromContext(ctx)
	if !ok {
		return nil, services.ErrUnauthenticated
	}

	selected, err := s.store.Load(ctx, identity.Subject)
	if err != nil || selected == nil {
		return nil, err
	}

	workspaces, err := s.workspaces.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range workspaces {
		if workspaces[i].ID == *selected {
			return &workspaces[i], nil
		}
	}

	s.logger.Debug().
		Str("subject", identity.Subject).
		Str("workspace_id", selected.String()).
		Msg("dropping stale selection")
	if err := s.store.Clear(ctx, identity.Subject); err != nil {
		return nil, err
	}
	return nil, nil
}

// Select stores workspaceID as the caller's selection, or clears it when
// workspaceID is nil.
func (s *Selector) Select(ctx context.Context, workspaceID *uuid.UUID) (*models.Workspace, error) {
	identity, ok := services.IdentityFromContext(ctx)
	if !ok {
		return nil, services.ErrUnauthenticated
	}

	if workspaceID == nil {
		return nil, s.store.Clear(ctx, identity.Subject)
	}

	workspace, err := s.workspaces.Get(ctx, *workspaceID)
	if err != nil {
		return nil, err
	}
	if workspace == nil {
		return nil, services.ErrUnauthorized
	}

	if err := s.store.Save(ctx, identity.Subject, workspace.ID); err != nil {
		return nil, err
	}
	return workspace, nil
}
