package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository owns the uniqueness and identity invariants of stored accounts.
// Insert and Update must reject an email already owned by another account
// atomically, without a read-then-write window.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Insert(ctx context.Context, candidate Candidate) (*Account, error)
	Update(ctx context.Context, id string, patch Patch) (*Account, error)
	Delete(ctx context.Context, id string) error
	// List returns a snapshot ordered by creation time. PasswordHash is left
	// empty unless withSecrets is set.
	List(ctx context.Context, withSecrets bool) ([]Account, error)
}

// MemoryRepository keeps accounts in process memory. It backs tests and
// single-instance development runs.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FindByEmail fetches an account by its login email.
func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	account := *r.byID[id]
	return &account, nil
}

// FindByID fetches an account by id.
func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	account := *stored
	return &account, nil
}

// Insert stores a new account if its email is free.
func (r *MemoryRepository) Insert(ctx context.Context, candidate Candidate) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byEmail[candidate.Email]; taken {
		return nil, ErrAlreadyExists
	}
	now := r.now()
	account := &Account{
		ID:           uuid.NewString(),
		Name:         candidate.Name,
		Email:        candidate.Email,
		PasswordHash: candidate.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byID[account.ID] = account
	r.byEmail[account.Email] = account.ID
	out := *account
	return &out, nil
}

// Update overwrites the non-empty fields of patch.
func (r *MemoryRepository) Update(ctx context.Context, id string, patch Patch) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Email != "" && patch.Email != stored.Email {
		if _, taken := r.byEmail[patch.Email]; taken {
			return nil, ErrAlreadyExists
		}
		delete(r.byEmail, stored.Email)
		r.byEmail[patch.Email] = id
	}
	patch.apply(stored)
	stored.UpdatedAt = r.now()
	out := *stored
	return &out, nil
}

// Delete removes an account.
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byEmail, stored.Email)
	delete(r.byID, id)
	return nil
}

// List returns all accounts.
func (r *MemoryRepository) List(ctx context.Context, withSecrets bool) ([]Account, error) {
	r.mu.RLock()
	accounts := make([]Account, 0, len(r.byID))
	for _, stored := range r.byID {
		account := *stored
		if !withSecrets {
			account.PasswordHash = ""
		}
		accounts = append(accounts, account)
	}
	r.mu.RUnlock()
	sortAccounts(accounts)
	return accounts, nil
}

// Len returns the number of stored accounts.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func sortAccounts(accounts []Account) {
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
}

var _ Repository = (*MemoryRepository)(nil)
