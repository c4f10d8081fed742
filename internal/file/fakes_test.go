package file

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/abduss/clientdrop/internal/blob"
)

type fakeRepo struct {
	mu        sync.Mutex
	records   map[uuid.UUID]Record
	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[uuid.UUID]Record)}
}

func (f *fakeRepo) Create(_ context.Context, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeRepo) ListByOwner(_ context.Context, ownerID int64) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Record
	for _, rec := range f.records {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeRepo) Get(_ context.Context, fileID uuid.UUID) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[fileID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepo) Delete(_ context.Context, fileID uuid.UUID, ownerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[fileID]
	if !ok || rec.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(f.records, fileID)
	return nil
}

type fakeBlobStore struct {
	mu        sync.Mutex
	backend   blob.Backend
	objects   map[string][]byte
	next      int
	deleteErr error
	deletes   int
}

func newFakeBlobStore(backend blob.Backend) *fakeBlobStore {
	return &fakeBlobStore{backend: backend, objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) Backend() blob.Backend { return f.backend }

func (f *fakeBlobStore) Put(_ context.Context, r io.Reader, _, _ string) (blob.PutResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return blob.PutResult{}, fmt.Errorf("%w: %w", blob.ErrStorageWrite, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	key := fmt.Sprintf("2024/01/01/obj-%d", f.next)
	f.objects[key] = data
	return blob.PutResult{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeBlobStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBlobStore) URL(_ context.Context, key string) (string, error) {
	return "/uploads/" + key, nil
}

func (f *fakeBlobStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.deleteErr != nil {
		return fmt.Errorf("%w: %w", blob.ErrStorageDelete, f.deleteErr)
	}
	delete(f.objects, key)
	return nil
}
