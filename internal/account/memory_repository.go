package account

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local development. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	byToken  map[string]string // undo token -> account ID
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory account repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		accounts: make(map[string]*Account),
		byToken:  make(map[string]string),
		now:      time.Now,
	}
}

// Create stores a new account. Existing accounts with the same ID are replaced.
func (r *InMemoryRepository) Create(_ context.Context, a *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.accounts[a.ID]; ok && prev.Deletion != nil {
		delete(r.byToken, prev.Deletion.UndoToken)
	}

	stored := copyAccount(a)
	stored.Status = stored.Status.Normalize()
	r.accounts[a.ID] = stored
	if stored.Deletion != nil && stored.Deletion.UndoToken != "" {
		r.byToken[stored.Deletion.UndoToken] = stored.ID
	}
	return nil
}

// Delete removes an account, simulating a purge by the deletion executor.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.accounts[id]; ok && a.Deletion != nil {
		delete(r.byToken, a.Deletion.UndoToken)
	}
	delete(r.accounts, id)
	return nil
}

// Get retrieves an account by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}

	// Return a deep copy to prevent mutation
	return copyAccount(a), nil
}

// FindByUndoToken retrieves the pending account holding the given undo token.
func (r *InMemoryRepository) FindByUndoToken(_ context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, ErrAccountNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[token]
	if !ok {
		return nil, ErrAccountNotFound
	}

	a, ok := r.accounts[id]
	if !ok || !a.IsPendingDeletion() || a.Deletion.UndoToken != token {
		return nil, ErrAccountNotFound
	}

	return copyAccount(a), nil
}

// MarkPendingDeletion sets the account to PENDING_DELETION with the given deletion fields.
func (r *InMemoryRepository) MarkPendingDeletion(_ context.Context, id string, expectedVersion int64, deletion Deletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if a.Version != expectedVersion {
		return ErrVersionConflict
	}

	if a.Deletion != nil {
		delete(r.byToken, a.Deletion.UndoToken)
	}

	d := deletion
	a.Status = StatusPendingDeletion
	a.Deletion = &d
	a.Version++
	a.UpdatedAt = r.now()
	r.byToken[d.UndoToken] = id

	return nil
}

// RestoreActive sets the account back to ACTIVE and clears the deletion fields.
func (r *InMemoryRepository) RestoreActive(_ context.Context, id string, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if a.Version != expectedVersion {
		return ErrVersionConflict
	}

	if a.Deletion != nil {
		delete(r.byToken, a.Deletion.UndoToken)
	}

	a.Status = StatusActive
	a.Deletion = nil
	a.Version++
	a.UpdatedAt = r.now()

	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
