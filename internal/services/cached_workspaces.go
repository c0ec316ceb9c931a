package services

import (
	"context"
	"time"

	"tasktree/backend/internal/cache"
	"tasktree/backend/internal/models"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
)

type CachedWorkspaceService struct {
	workspaceService WorkspaceService
	cache            cache.Cache
	ttl              time.Duration
	logger           zerolog.Logger
}

func NewCachedWorkspaceService(workspaceService WorkspaceService, cacheInstance cache.Cache, ttl time.Duration, logger zerolog.Logger) *CachedWorkspaceService {
	return &CachedWorkspaceService{
		workspaceService: workspaceService,
		cache:            cacheInstance,
		ttl:              ttl,
		logger:           logger.With().Str("component", "workspace_cache").Logger(),
	}
}

func (s *CachedWorkspaceService) key(ctx context.Context, suffix string) (string, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return "", false
	}
	return generationalKey(s.cache, s.logger, workspaceGenerationKey(identity.Subject), workspaceKeyPrefix(identity.Subject), suffix)
}

func (s *CachedWorkspaceService) List(ctx context.Context) ([]models.Workspace, error) {
	key, ok := s.key(ctx, "list")
	if !ok {
		return s.workspaceService.List(ctx)
	}

	var cached []models.Workspace
	if err := s.cache.Get(key, &cached); err == nil {
		return cached, nil
	}

	workspaces, err := s.workspaceService.List(ctx)
	if err != nil {
		return nil, err
	}
	s.store(key, workspaces)
	return workspaces, nil
}

// Get caches only hits; an absent result is looked up again next time.
func (s *CachedWorkspaceService) Get(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	key, ok := s.key(ctx, id.String())
	if !ok {
		return s.workspaceService.Get(ctx, id)
	}

	var cached models.Workspace
	if err := s.cache.Get(key, &cached); err == nil {
		return &cached, nil
	}

	workspace, err := s.workspaceService.Get(ctx, id)
	if err != nil || workspace == nil {
		return workspace, err
	}
	s.store(key, workspace)
	return workspace, nil
}

func (s *CachedWorkspaceService) Create(ctx context.Context, input CreateWorkspaceInput) (uuid.UUID, error) {
	id, err := s.workspaceService.Create(ctx, input)
	if err != nil {
		return uuid.Nil, err
	}
	s.invalidate(ctx, false)
	return id, nil
}

func (s *CachedWorkspaceService) Update(ctx context.Context, id uuid.UUID, update models.WorkspaceUpdate) error {
	if err := s.workspaceService.Update(ctx, id, update); err != nil {
		return err
	}
	if update.IsEmpty() {
		return nil
	}
	s.invalidate(ctx, false)
	return nil
}

// Delete also retires the caller's task entries, since the workspace's
// tasks are gone with it.
func (s *CachedWorkspaceService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.workspaceService.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, true)
	return nil
}

func (s *CachedWorkspaceService) store(key string, value interface{}) {
	if err := s.cache.Set(key, value, s.ttl); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("cache set failed")
	}
}

func (s *CachedWorkspaceService) invalidate(ctx context.Context, withTasks bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return
	}
	retire(s.cache, s.logger, workspaceGenerationKey(identity.Subject), workspaceKeyPrefix(identity.Subject))
	if withTasks {
		retire(s.cache, s.logger, taskGenerationKey(identity.Subject), taskKeyPrefix(identity.Subject))
	}
}
