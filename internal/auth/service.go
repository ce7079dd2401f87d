package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-accounts/internal/observability"
	"github.com/odyssey-erp/odyssey-accounts/internal/platform/password"
	"github.com/odyssey-erp/odyssey-accounts/internal/platform/token"
	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
	"github.com/odyssey-erp/odyssey-accounts/internal/users"
)

// Metric operation labels.
const (
	opRegister     = "register"
	opLogin        = "login"
	opAuthenticate = "authenticate"
)

// AccountStore is the slice of users.Repository the credential flows need.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*users.Account, error)
	Insert(ctx context.Context, candidate users.Candidate) (*users.Account, error)
	Update(ctx context.Context, id string, patch users.Patch) (*users.Account, error)
}

// PasswordHasher hashes and verifies secrets.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, hash string) (bool, error)
	VerifyDecoy(ctx context.Context, plaintext string)
	NeedsRehash(hash string) bool
}

// TokenIssuer signs and verifies bearer tokens.
type TokenIssuer interface {
	Issue(subjectID string, claims token.Claims) (string, error)
	Verify(raw string) (*token.Claims, error)
}

// Service wraps authentication business rules.
type Service struct {
	accounts AccountStore
	hasher   PasswordHasher
	issuer   TokenIssuer
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewService constructs a new Service. metrics may be nil.
func NewService(accounts AccountStore, hasher PasswordHasher, issuer TokenIssuer, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts: accounts,
		hasher:   hasher,
		issuer:   issuer,
		logger:   logger,
		metrics:  metrics,
	}
}

// Register creates an account and returns a token for it. Among concurrent
// registrations of one email exactly one succeeds; the others get
// shared.ErrDuplicateEmail.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	_, err := s.accounts.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		s.metrics.ObserveAuth(opRegister, observability.ResultRejected)
		return "", users.ErrAlreadyExists
	case !errors.Is(err, users.ErrNotFound):
		return "", s.fail(ctx, opRegister, "lookup account", err)
	}

	hashed, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return "", s.fail(ctx, opRegister, "hash password", err)
	}

	account, err := s.accounts.Insert(ctx, users.Candidate{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, users.ErrAlreadyExists) {
			s.metrics.ObserveAuth(opRegister, observability.ResultRejected)
			return "", err
		}
		return "", s.fail(ctx, opRegister, "insert account", err)
	}

	// The account stays stored even if signing fails.
	raw, err := s.issuer.Issue(account.ID, token.Claims{Email: account.Email})
	if err != nil {
		return "", s.fail(ctx, opRegister, "issue token", err)
	}
	s.metrics.ObserveAuth(opRegister, observability.ResultSuccess)
	return raw, nil
}

// Login checks credentials and returns a fresh token. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, in LoginInput) (string, error) {
	account, err := s.accounts.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			s.hasher.VerifyDecoy(ctx, in.Password)
			s.metrics.ObserveAuth(opLogin, observability.ResultRejected)
			return "", shared.ErrInvalidCredentials
		}
		return "", s.fail(ctx, opLogin, "lookup account", err)
	}

	ok, err := s.hasher.Verify(ctx, in.Password, account.PasswordHash)
	if err != nil {
		return "", s.fail(ctx, opLogin, "verify password", err)
	}
	if !ok {
		s.metrics.ObserveAuth(opLogin, observability.ResultRejected)
		return "", shared.ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(account.PasswordHash) {
		s.rehash(ctx, account, in.Password)
	}

	raw, err := s.issuer.Issue(account.ID, token.Claims{Email: account.Email})
	if err != nil {
		return "", s.fail(ctx, opLogin, "issue token", err)
	}
	s.metrics.ObserveAuth(opLogin, observability.ResultSuccess)
	return raw, nil
}

// Authenticate verifies a bearer token. Any rejection is shared.ErrUnauthorized
// with the token error kept in the chain.
func (s *Service) Authenticate(ctx context.Context, bearer string) (shared.Subject, error) {
	claims, err := s.issuer.Verify(bearer)
	if err != nil {
		s.metrics.ObserveAuth(opAuthenticate, observability.ResultRejected)
		s.logger.DebugContext(ctx, "bearer token rejected", slog.Any("error", err))
		return shared.Subject{}, fmt.Errorf("%w: %w", shared.ErrUnauthorized, err)
	}
	s.metrics.ObserveAuth(opAuthenticate, observability.ResultSuccess)
	return shared.Subject{AccountID: claims.SubjectID(), Email: claims.Email}, nil
}

// rehash upgrades a hash produced with an outdated cost. Failures only cost
// the upgrade, never the login.
func (s *Service) rehash(ctx context.Context, account *users.Account, plaintext string) {
	hashed, err := s.hasher.Hash(ctx, plaintext)
	if err == nil {
		_, err = s.accounts.Update(ctx, account.ID, users.Patch{PasswordHash: hashed})
	}
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash skipped", slog.String("account_id", account.ID), slog.Any("error", err))
	}
}

func (s *Service) fail(ctx context.Context, op, step string, err error) error {
	if errors.Is(err, password.ErrPasswordTooLong) {
		s.metrics.ObserveAuth(op, observability.ResultRejected)
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	s.metrics.ObserveAuth(op, observability.ResultError)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.WarnContext(ctx, "auth: request abandoned", slog.String("op", op), slog.String("step", step), slog.Any("error", err))
	} else {
		s.logger.ErrorContext(ctx, "auth: "+op+" failed", slog.String("step", step), slog.Any("error", err))
	}
	return fmt.Errorf("auth: %s: %w", step, shared.ErrInternal)
}
