package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"todo-api/internal/models"

	"github.com/gofrs/uuid"
)

const (
	allTasksKey  = "tasks:all"
	taskCacheTTL = 30 * time.Minute
	listCacheTTL = 10 * time.Minute
)

type TaskStore interface {
	List(ctx context.Context) ([]models.Task, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Create(ctx context.Context, task *models.Task) error
	Update(ctx context.Context, id uuid.UUID, update models.TaskUpdate) (*models.Task, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type TaskCache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

func taskKey(id uuid.UUID) string {
	return fmt.Sprintf("task:%s", id.String())
}

// CachedTaskStore is a read-through cache in front of a TaskStore. Every
// mutation drops the affected entries. Cache failures fall back to the store.
//
// A read that raced with a mutation must not write its result back: the
// generation is bumped after each store write, and a fill is stored only if
// the generation seen before the read is still current.
type CachedTaskStore struct {
	store TaskStore
	cache TaskCache
	log   *slog.Logger

	mu         sync.Mutex
	generation uint64
}

func NewCachedTaskStore(store TaskStore, cache TaskCache, log *slog.Logger) *CachedTaskStore {
	if log == nil {
		log = slog.Default()
	}
	return &CachedTaskStore{store: store, cache: cache, log: log}
}

func (s *CachedTaskStore) List(ctx context.Context) ([]models.Task, error) {
	var cached []models.Task
	if err := s.cache.Get(ctx, allTasksKey, &cached); err == nil {
		return cached, nil
	}

	gen := s.currentGeneration()
	tasks, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	s.fill(ctx, gen, allTasksKey, tasks, listCacheTTL)
	return tasks, nil
}

func (s *CachedTaskStore) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var cached models.Task
	if err := s.cache.Get(ctx, taskKey(id), &cached); err == nil {
		return &cached, nil
	}

	gen := s.currentGeneration()
	task, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.fill(ctx, gen, taskKey(id), task, taskCacheTTL)
	return task, nil
}

func (s *CachedTaskStore) Create(ctx context.Context, task *models.Task) error {
	if err := s.store.Create(ctx, task); err != nil {
		return err
	}

	s.invalidate(ctx, allTasksKey)
	return nil
}

func (s *CachedTaskStore) Update(ctx context.Context, id uuid.UUID, update models.TaskUpdate) (*models.Task, error) {
	task, err := s.store.Update(ctx, id, update)
	s.invalidate(ctx, taskKey(id), allTasksKey)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *CachedTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.store.Delete(ctx, id)
	s.invalidate(ctx, taskKey(id), allTasksKey)
	return err
}

// Forget drops cached copies of the given tasks and the task listing.
func (s *CachedTaskStore) Forget(ctx context.Context, ids []uuid.UUID) {
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, taskKey(id))
	}
	keys = append(keys, allTasksKey)

	s.invalidate(ctx, keys...)
}

// Warm loads the task listing into the cache.
func (s *CachedTaskStore) Warm(ctx context.Context) error {
	gen := s.currentGeneration()
	tasks, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("services.CachedTaskStore.Warm: %w", err)
	}

	s.fill(ctx, gen, allTasksKey, tasks, listCacheTTL)
	return nil
}

func (s *CachedTaskStore) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// fill caches a value read at generation gen. The check and the write share
// the lock with the bump in invalidate, so a fill either lands before the
// bump and is removed by the following delete, or is skipped.
func (s *CachedTaskStore) fill(ctx context.Context, gen uint64, key string, value interface{}, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.log.Debug("cache fill skipped after concurrent write", slog.String("key", key))
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.log.Debug("cache set failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// invalidate must run after the store write it follows.
func (s *CachedTaskStore) invalidate(ctx context.Context, keys ...string) {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()

	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.log.Warn("cache invalidation failed", slog.Any("keys", keys), slog.String("error", err.Error()))
	}
}
