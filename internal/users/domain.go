package users

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = fmt.Errorf("account %w", shared.ErrNotFound)
	// ErrAlreadyExists is returned when another account already owns the email.
	ErrAlreadyExists = fmt.Errorf("account: %w", shared.ErrDuplicateEmail)
)

// Account is a stored identity record.
type Account struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PublicAccount is the projection of Account exposed to API clients.
type PublicAccount struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public strips secrets from the account.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// Candidate carries the fields of an account that has not been stored yet.
type Candidate struct {
	Name         string
	Email        string
	PasswordHash string
}

// Patch lists fields to overwrite. Empty strings leave the stored value unchanged.
type Patch struct {
	Name         string
	Email        string
	PasswordHash string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == "" && p.Email == "" && p.PasswordHash == ""
}

func (p Patch) apply(a *Account) {
	if p.Name != "" {
		a.Name = p.Name
	}
	if p.Email != "" {
		a.Email = p.Email
	}
	if p.PasswordHash != "" {
		a.PasswordHash = p.PasswordHash
	}
}
