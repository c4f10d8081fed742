package file

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abduss/clientdrop/internal/blob"
)

// SQLiteRepository keeps file metadata in an embedded SQLite database.
// Timestamps are stored as unix milliseconds.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository builds a new SQLite-backed file repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts metadata for a new file.
func (r *SQLiteRepository) Create(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
INSERT INTO files (id, account_id, original_name, storage_key, size_bytes, content_type, backend, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(),
		rec.OwnerID,
		rec.OriginalName,
		rec.StorageKey,
		rec.SizeBytes,
		rec.ContentType,
		string(rec.Backend),
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert file metadata: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's files, newest first.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID int64) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
SELECT id, account_id, original_name, storage_key, size_bytes, content_type, backend, created_at
FROM files
WHERE account_id = ?
ORDER BY created_at DESC, rowid DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
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
func (r *SQLiteRepository) Get(ctx context.Context, fileID uuid.UUID) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
SELECT id, account_id, original_name, storage_key, size_bytes, content_type, backend, created_at
FROM files
WHERE id = ?`, fileID.String())

	rec, err := scanSQLiteRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get file metadata: %w", err)
	}
	return rec, nil
}

// Delete removes the owner's metadata row.
func (r *SQLiteRepository) Delete(ctx context.Context, fileID uuid.UUID, ownerID int64) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = ? AND account_id = ?`, fileID.String(), ownerID)
	if err != nil {
		return fmt.Errorf("delete file metadata: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete file metadata: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSQLiteRecord(row rowScanner) (Record, error) {
	var (
		rec       Record
		id        string
		backend   string
		createdAt int64
	)
	err := row.Scan(&id, &rec.OwnerID, &rec.OriginalName, &rec.StorageKey, &rec.SizeBytes, &rec.ContentType, &backend, &createdAt)
	if err != nil {
		return Record{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Record{}, fmt.Errorf("parse file id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.Backend = blob.Backend(backend)
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	return rec, nil
}
