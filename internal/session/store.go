// Package session remembers which workspace each user has selected.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "selection:"

// Store persists one selected workspace id per subject.
type Store interface {
	// Load returns nil when nothing is selected.
	Load(ctx context.Context, subject string) (*uuid.UUID, error)
	Save(ctx context.Context, subject string, workspaceID uuid.UUID) error
	Clear(ctx context.Context, subject string) error
}

// RedisStore keeps selections without expiry so they survive restarts and
// new sessions.
type RedisStore struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, timeout: 2 * time.Second}
}

func (s *RedisStore) Load(ctx context.Context, subject string) (*uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.Get(ctx, keyPrefix+subject).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load selection: %w", err)
	}

	id, err := uuid.FromString(raw)
	if err != nil {
		// Unreadable values are treated as no selection.
		return nil, nil
	}
	return &id, nil
}

func (s *RedisStore) Save(ctx context.Context, subject string, workspaceID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, keyPrefix+subject, workspaceID.String(), 0).Err(); err != nil {
		return fmt.Errorf("failed to save selection: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, subject string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, keyPrefix+subject).Err(); err != nil {
		return fmt.Errorf("failed to clear selection: %w", err)
	}
	return nil
}

// MemoryStore is used when redis is disabled. Selections are lost on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	selections map[string]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{selections: make(map[string]uuid.UUID)}
}

func (s *MemoryStore) Load(_ context.Context, subject string) (*uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.selections[subject]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (s *MemoryStore) Save(_ context.Context, subject string, workspaceID uuid.UUID) error {
	s.mu.Lock()
	s.selections[subject] = workspaceID
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, subject string) error {
	s.mu.Lock()
	delete(s.selections, subject)
	s.mu.Unlock()
	return nil
}
