package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLiteRepository stores accounts in an embedded SQLite database.
type SQLiteRepository struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewSQLiteRepository constructs a new SQLiteRepository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, nowFunc: time.Now}
}

// CreateAccount persists a new account record.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, code, name, passwordHash string) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	createdAt := r.nowFunc().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (code, name, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		code, name, passwordHash, createdAt.UnixMilli(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return Account{}, ErrAccountExists
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Account{}, fmt.Errorf("read account id: %w", err)
	}

	return Account{
		ID:           id,
		Code:         code,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.UnixMilli(createdAt.UnixMilli()).UTC(),
	}, nil
}

// FindAccountByCode fetches an account by its login code.
func (r *SQLiteRepository) FindAccountByCode(ctx context.Context, code string) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	var (
		account   Account
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, name, password_hash, created_at FROM accounts WHERE code = ?`, code,
	).Scan(&account.ID, &account.Code, &account.Name, &account.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("find account: %w", err)
	}
	account.CreatedAt = time.UnixMilli(createdAt).UTC()

	return account, nil
}
