package wallet

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu        sync.RWMutex
	storage   map[string]Wallet
	byCreator map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests and local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Wallet), byCreator: make(map[string]string)}
}

func (r *memoryRepository) GetOrCreate(_ context.Context, w Wallet) (Wallet, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, exists := r.byCreator[w.CreatorID]; exists {
		return r.storage[id], false, nil
	}
	w.UpdatedAt = w.CreatedAt
	r.storage[w.ID] = w
	r.byCreator[w.CreatorID] = w.ID
	return w, true, nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.storage[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (r *memoryRepository) GetByCreator(ctx context.Context, creatorID string) (Wallet, error) {
	r.mu.RLock()
	id, ok := r.byCreator[creatorID]
	r.mu.RUnlock()
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *memoryRepository) SetVerified(_ context.Context, id string, verified bool, at time.Time) (Wallet, error) {
	return r.update(id, at, func(w *Wallet) { w.IsVerified = verified })
}

func (r *memoryRepository) SetActive(_ context.Context, id string, active bool, at time.Time) (Wallet, error) {
	return r.update(id, at, func(w *Wallet) { w.IsActive = active })
}

func (r *memoryRepository) ListPayoutEligible(_ context.Context) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Wallet
	for _, w := range r.storage {
		if w.PayoutEligible() {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepository) update(id string, at time.Time, mutate func(*Wallet)) (Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.storage[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	mutate(&w)
	w.UpdatedAt = at
	r.storage[id] = w
	return w, nil
}
