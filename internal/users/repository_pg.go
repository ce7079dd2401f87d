package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-accounts/internal/platform/db"
)

type pgxIface interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error)
}

const accountColumns = `id, name, email, password_hash, created_at, updated_at`

// PostgresRepository provides PostgreSQL backed persistence. The accounts_email_key
// unique constraint is what makes Insert and Update atomic with respect to email.
type PostgresRepository struct {
	db  pgxIface
	now func() time.Time
}

// NewPostgresRepository constructs a repository over a pool (or anything pool shaped).
func NewPostgresRepository(pool pgxIface) *PostgresRepository {
	return &PostgresRepository{
		db:  pool,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// FindByEmail fetches an account by its login email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// FindByID fetches an account by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// Insert stores a new account; a unique violation means the email is taken.
func (r *PostgresRepository) Insert(ctx context.Context, candidate Candidate) (*Account, error) {
	now := r.now()
	account := &Account{
		ID:           uuid.NewString(),
		Name:         candidate.Name,
		Email:        candidate.Email,
		PasswordHash: candidate.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $5)`,
		account.ID, account.Name, account.Email, account.PasswordHash, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("users: insert account: %w", err)
	}
	return account, nil
}

// updateTxOptions is ReadCommitted so a writer blocked on FOR UPDATE re-reads
// the committed row instead of failing with a serialization error.
var updateTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// Update overwrites the non-empty fields of patch inside a transaction.
// Concurrent updates of one account serialize on the row lock; the last
// writer wins.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch Patch) (*Account, error) {
	var updated *Account
	err := db.WithTxOptions(ctx, r.db, updateTxOptions, func(tx pgx.Tx) error {
		account, err := scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		patch.apply(account)
		account.UpdatedAt = r.now()
		_, err = tx.Exec(ctx,
			`UPDATE accounts SET name = $2, email = $3, password_hash = $4, updated_at = $5 WHERE id = $1`,
			account.ID, account.Name, account.Email, account.PasswordHash, account.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("users: update account: %w", err)
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes an account.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("users: delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all accounts ordered by creation.
func (r *PostgresRepository) List(ctx context.Context, withSecrets bool) ([]Account, error) {
	columns := `id, name, email, '' AS password_hash, created_at, updated_at`
	if withSecrets {
		columns = accountColumns
	}
	rows, err := r.db.Query(ctx, `SELECT `+columns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("users: list accounts: %w", err)
	}
	defer rows.Close()
	accounts := []Account{}
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("users: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: list accounts: %w", err)
	}
	return accounts, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: scan account: %w", err)
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ Repository = (*PostgresRepository)(nil)
