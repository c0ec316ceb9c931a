package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tasktree/backend/internal/cache"
	"tasktree/backend/internal/models"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
)

// Cache keys are scoped by the caller subject. Only the owner can read a
// workspace's tasks, and only the owner can change them, so a write by S only
// needs to retire S's entries. Each key also carries S's current generation;
// writes bump it after commit, so a read that loaded rows before the write
// stores them under a key nobody will ask for again.
func taskKeyPrefix(subject string) string {
	return fmt.Sprintf("tasks:%s:", subject)
}

func workspaceKeyPrefix(subject string) string {
	return fmt.Sprintf("workspaces:%s:", subject)
}

func taskGenerationKey(subject string) string {
	return "gen:tasks:" + subject
}

func workspaceGenerationKey(subject string) string {
	return "gen:workspaces:" + subject
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob keeps a subject from acting as a pattern when its prefix is
// passed to DeletePattern.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}

// generationalKey builds prefix + "g<gen>:" + suffix. ok is false when the
// generation cannot be read; the caller then skips the cache entirely.
func generationalKey(c cache.Cache, logger zerolog.Logger, genKey, prefix, suffix string) (string, bool) {
	gen, err := c.Generation(genKey)
	if err != nil {
		logger.Debug().Err(err).Str("generation", genKey).Msg("cache bypassed")
		return "", false
	}
	return fmt.Sprintf("%sg%d:%s", prefix, gen, suffix), true
}

// retire bumps the generation, then drops the old entries to free memory.
// A failed delete is harmless once the bump is recorded.
func retire(c cache.Cache, logger zerolog.Logger, genKey, prefix string) {
	if _, err := c.BumpGeneration(genKey); err != nil {
		logger.Warn().Err(err).Str("generation", genKey).Msg("generation bump deferred")
	}
	invalidatePrefix(c, logger, prefix)
}

// CachedTaskService serves repeated tree reads from cache. Errors are never
// cached.
type CachedTaskService struct {
	taskService TaskService
	cache       cache.Cache
	ttl         time.Duration
	logger      zerolog.Logger
}

func NewCachedTaskService(taskService TaskService, cacheInstance cache.Cache, ttl time.Duration, logger zerolog.Logger) *CachedTaskService {
	return &CachedTaskService{
		taskService: taskService,
		cache:       cacheInstance,
		ttl:         ttl,
		logger:      logger.With().Str("component", "task_cache").Logger(),
	}
}

// key returns the cache key for suffix under the caller's current task
// generation.
func (s *CachedTaskService) key(ctx context.Context, suffix string) (string, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return "", false
	}
	return generationalKey(s.cache, s.logger, taskGenerationKey(identity.Subject), taskKeyPrefix(identity.Subject), suffix)
}

func (s *CachedTaskService) ListByWorkspace(ctx context.Context, workspaceID uuid.UUID) ([]models.Task, error) {
	key, ok := s.key(ctx, fmt.Sprintf("ws:%s:all", workspaceID))
	if !ok {
		return s.taskService.ListByWorkspace(ctx, workspaceID)
	}

	var cached []models.Task
	if err := s.cache.Get(key, &cached); err == nil {
		return cached, nil
	}

	tasks, err := s.taskService.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	s.store(key, tasks)
	return tasks, nil
}

func (s *CachedTaskService) GetChildren(ctx context.Context, workspaceID uuid.UUID, parentID *uuid.UUID) ([]models.Task, error) {
	parent := "root"
	if parentID != nil {
		parent = parentID.String()
	}
	key, ok := s.key(ctx, fmt.Sprintf("ws:%s:children:%s", workspaceID, parent))
	if !ok {
		return s.taskService.GetChildren(ctx, workspaceID, parentID)
	}

	var cached []models.Task
	if err := s.cache.Get(key, &cached); err == nil {
		return cached, nil
	}

	tasks, err := s.taskService.GetChildren(ctx, workspaceID, parentID)
	if err != nil {
		return nil, err
	}
	s.store(key, tasks)
	return tasks, nil
}

func (s *CachedTaskService) GetDescendantIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	key, ok := s.key(ctx, "descendants:"+id.String())
	if !ok {
		return s.taskService.GetDescendantIDs(ctx, id)
	}

	var cached []uuid.UUID
	if err := s.cache.Get(key, &cached); err == nil {
		return cached, nil
	}

	ids, err := s.taskService.GetDescendantIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(key, ids)
	return ids, nil
}

func (s *CachedTaskService) Create(ctx context.Context, input CreateTaskInput) (uuid.UUID, error) {
	id, err := s.taskService.Create(ctx, input)
	if err != nil {
		return uuid.Nil, err
	}
	s.invalidate(ctx)
	return id, nil
}

func (s *CachedTaskService) Update(ctx context.Context, id uuid.UUID, update models.TaskUpdate) error {
	if err := s.taskService.Update(ctx, id, update); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedTaskService) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	if err := s.taskService.MarkCompleted(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedTaskService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.taskService.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CachedTaskService) store(key string, value interface{}) {
	if err := s.cache.Set(key, value, s.ttl); err != nil {
		s.logger.Debug().Err(err).Str("key", key).Msg("cache set failed")
	}
}

func (s *CachedTaskService) invalidate(ctx context.Context) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return
	}
	retire(s.cache, s.logger, taskGenerationKey(identity.Subject), taskKeyPrefix(identity.Subject))
}

func invalidatePrefix(c cache.Cache, logger zerolog.Logger, prefix string) {
	pattern := escapeGlob(prefix) + "*"
	if err := c.DeletePattern(pattern); err != nil {
		logger.Warn().Err(err).Str("pattern", pattern).Msg("cache cleanup failed")
	}
}
