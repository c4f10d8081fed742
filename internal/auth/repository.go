package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const defaultQueryTimeout = 5 * time.Second

// pgxQuerier is satisfied by *pgxpool.Pool and pgxmock pools.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository provides PostgreSQL access for accounts.
type PostgresRepository struct {
	pool pgxQuerier
}

// NewPostgresRepository constructs a new PostgresRepository.
func NewPostgresRepository(pool pgxQuerier) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// CreateAccount persists a new account record.
func (r *PostgresRepository) CreateAccount(ctx context.Context, code, name, passwordHash string) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
INSERT INTO accounts (code, name, password_hash)
VALUES ($1, $2, $3)
RETURNING id, code, name, password_hash, created_at;`

	var account Account
	err := r.pool.QueryRow(ctx, query, code, name, passwordHash).Scan(
		&account.ID,
		&account.Code,
		&account.Name,
		&account.PasswordHash,
		&account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, ErrAccountExists
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}

	return account, nil
}

// FindAccountByCode fetches an account by its login code.
func (r *PostgresRepository) FindAccountByCode(ctx context.Context, code string) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	query := `
SELECT id, code, name, password_hash, created_at
FROM accounts
WHERE code = $1;`

	var account Account
	err := r.pool.QueryRow(ctx, query, code).Scan(
		&account.ID,
		&account.Code,
		&account.Name,
		&account.PasswordHash,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("find account: %w", err)
	}

	return account, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
