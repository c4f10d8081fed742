package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/abduss/clientdrop/internal/blob"
)

const repoTimeout = 5 * time.Second

// pgxQuerier is satisfied by *pgxpool.Pool and pgxmock pools.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository provides access to file metadata stored in PostgreSQL.
type PostgresRepository struct {
	pool pgxQuerier
}

// NewPostgresRepository builds a new file repository.
func NewPostgresRepository(pool pgxQuerier) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create inserts metadata for a new file.
func (r *PostgresRepository) Create(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO files (id, account_id, original_name, storage_key, size_bytes, content_type, backend, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.OwnerID,
		rec.OriginalName,
		rec.StorageKey,
		rec.SizeBytes,
		rec.ContentType,
		string(rec.Backend),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert file metadata: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's files, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID int64) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT id, account_id, original_name, storage_key, size_bytes, content_type, backend, created_at
FROM files
WHERE account_id = $1
ORDER BY created_at DESC;`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file metadata: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return records, nil
}

// Get fetches metadata for a single file regardless of owner.
func (r *PostgresRepository) Get(ctx context.Context, fileID uuid.UUID) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT id, account_id, original_name, storage_key, size_bytes, content_type, backend, created_at
FROM files
WHERE id = $1;`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get file metadata: %w", err)
	}
	return rec, nil
}

// Delete removes the owner's metadata row.
func (r *PostgresRepository) Delete(ctx context.Context, fileID uuid.UUID, ownerID int64) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id = $1 AND account_id = $2;`, fileID, ownerID)
	if err != nil {
		return fmt.Errorf("delete file metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec     Record
		backend string
	)
	err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.OriginalName,
		&rec.StorageKey,
		&rec.SizeBytes,
		&rec.ContentType,
		&backend,
		&rec.CreatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	rec.Backend = blob.Backend(backend)
	return rec, nil
}
