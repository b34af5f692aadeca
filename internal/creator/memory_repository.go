package creator

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu         sync.RWMutex
	creators   map[string]Creator
	byUsername map[string]string
}

// NewMemoryRepository builds an in-memory creator store for tests and local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{creators: make(map[string]Creator), byUsername: make(map[string]string)}
}

func (r *memoryRepository) Create(_ context.Context, c Creator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byUsername[c.Username]; exists {
		return ErrUsernameTaken
	}
	r.creators[c.ID] = c
	r.byUsername[c.Username] = c.ID
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Creator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.creators[id]
	if !ok {
		return Creator{}, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepository) FindByUsername(ctx context.Context, username string) (Creator, error) {
	r.mu.RLock()
	id, ok := r.byUsername[username]
	r.mu.RUnlock()
	if !ok {
		return Creator{}, ErrNotFound
	}
	return r.Get(ctx, id)
}
