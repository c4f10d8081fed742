package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abduss/clientdrop/internal/blob"
)

// metadataStore abstracts the metadata persistence layer.
type metadataStore interface {
	Create(ctx context.Context, rec Record) error
	ListByOwner(ctx context.Context, ownerID int64) ([]Record, error)
	Get(ctx context.Context, fileID uuid.UUID) (Record, error)
	Delete(ctx context.Context, fileID uuid.UUID, ownerID int64) error
}

// Registry owns file metadata and its ownership rules. Records whose backend
// differs from the active store are treated as absent.
type Registry struct {
	store   metadataStore
	blobs   blob.Store
	nowFunc func() time.Time
	log     *zap.Logger
}

// NewRegistry constructs a Registry bound to the active blob store.
func NewRegistry(store metadataStore, blobs blob.Store, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{store: store, blobs: blobs, nowFunc: time.Now, log: log}
}

// Record registers a blob that has already been stored.
func (r *Registry) Record(ctx context.Context, in RecordInput) (Record, error) {
	if in.OwnerID <= 0 {
		return Record{}, errors.New("record requires an owner")
	}
	if in.StorageKey == "" {
		return Record{}, errors.New("record requires a storage key")
	}
	if !in.Backend.Valid() {
		return Record{}, fmt.Errorf("unknown backend %q", in.Backend)
	}

	rec := Record{
		ID:           uuid.New(),
		OwnerID:      in.OwnerID,
		OriginalName: in.OriginalName,
		StorageKey:   in.StorageKey,
		SizeBytes:    in.SizeBytes,
		ContentType:  in.ContentType,
		Backend:      in.Backend,
		CreatedAt:    r.nowFunc().UTC().Truncate(time.Millisecond),
	}
	if err := r.store.Create(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns the owner's records on the active backend, newest first.
func (r *Registry) List(ctx context.Context, ownerID int64) ([]Record, error) {
	records, err := r.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if rec.Backend == r.blobs.Backend() {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Get returns the record only when ownerID owns it.
func (r *Registry) Get(ctx context.Context, fileID uuid.UUID, ownerID int64) (Record, error) {
	rec, err := r.GetUnscoped(ctx, fileID)
	if err != nil {
		return Record{}, err
	}
	if rec.OwnerID != ownerID {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// GetUnscoped returns the record without an ownership check. Used when the
// caller holds a capability for the file.
func (r *Registry) GetUnscoped(ctx context.Context, fileID uuid.UUID) (Record, error) {
	rec, err := r.store.Get(ctx, fileID)
	if err != nil {
		return Record{}, err
	}
	if rec.Backend != r.blobs.Backend() {
		r.log.Warn("file recorded on inactive backend",
			zap.String("file_id", fileID.String()),
			zap.String("backend", string(rec.Backend)),
		)
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Remove deletes the stored bytes and then the metadata. When the bytes
// cannot be deleted the record is kept and blob.ErrStorageDelete is returned.
func (r *Registry) Remove(ctx context.Context, fileID uuid.UUID, ownerID int64) (Record, error) {
	rec, err := r.Get(ctx, fileID, ownerID)
	if err != nil {
		return Record{}, err
	}

	if err := r.blobs.Delete(ctx, rec.StorageKey); err != nil {
		return Record{}, err
	}

	if err := r.store.Delete(ctx, fileID, ownerID); err != nil {
		return Record{}, err
	}
	return rec, nil
}
