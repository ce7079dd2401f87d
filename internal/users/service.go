package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-accounts/internal/platform/password"
	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
)

// PasswordHasher hashes replacement passwords.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
}

// UpdateInput carries a partial account update. Empty fields keep their current value.
type UpdateInput struct {
	Name     string
	Email    string
	Password string
}

// Service handles account maintenance for authenticated callers.
type Service struct {
	repo   Repository
	hasher PasswordHasher
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo Repository, hasher PasswordHasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, hasher: hasher, logger: logger}
}

// Get returns the public view of one account.
func (s *Service) Get(ctx context.Context, id string) (PublicAccount, error) {
	if !validID(id) {
		return PublicAccount{}, ErrNotFound
	}
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return PublicAccount{}, s.classify(ctx, "get account", err)
	}
	return account.Public(), nil
}

// Update applies the non-empty fields of in. A new password is hashed before storage.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (PublicAccount, error) {
	if !validID(id) {
		return PublicAccount{}, ErrNotFound
	}
	patch := Patch{Name: in.Name, Email: in.Email}
	if in.Password != "" {
		hashed, err := s.hasher.Hash(ctx, in.Password)
		if err != nil {
			return PublicAccount{}, s.classify(ctx, "hash password", err)
		}
		patch.PasswordHash = hashed
	}
	if patch.IsEmpty() {
		return s.Get(ctx, id)
	}
	account, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return PublicAccount{}, s.classify(ctx, "update account", err)
	}
	return account.Public(), nil
}

// Delete removes an account.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.classify(ctx, "delete account", err)
	}
	return nil
}

// List returns all accounts without secrets.
func (s *Service) List(ctx context.Context) ([]PublicAccount, error) {
	accounts, err := s.repo.List(ctx, false)
	if err != nil {
		return nil, s.classify(ctx, "list accounts", err)
	}
	out := make([]PublicAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Public())
	}
	return out, nil
}

// classify passes domain outcomes through and collapses everything else to
// shared.ErrInternal after logging the detail.
func (s *Service) classify(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, shared.ErrNotFound),
		errors.Is(err, shared.ErrDuplicateEmail),
		errors.Is(err, shared.ErrValidation):
		return err
	case errors.Is(err, password.ErrPasswordTooLong):
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.WarnContext(ctx, "users: request abandoned", slog.String("op", op), slog.Any("error", err))
	default:
		s.logger.ErrorContext(ctx, "users: "+op, slog.Any("error", err))
	}
	return fmt.Errorf("users: %s: %w", op, shared.ErrInternal)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
