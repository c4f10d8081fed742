package file

import (
	"time"

	"github.com/google/uuid"

	"github.com/abduss/clientdrop/internal/blob"
)

// Record is the metadata kept for one stored file.
type Record struct {
	ID           uuid.UUID
	OwnerID      int64
	OriginalName string
	StorageKey   string
	SizeBytes    int64
	ContentType  string
	// Backend is the store kind the key is valid for.
	Backend   blob.Backend
	CreatedAt time.Time
}

// RecordInput carries the facts about a stored blob needed to register it.
type RecordInput struct {
	OwnerID      int64
	OriginalName string
	StorageKey   string
	SizeBytes    int64
	ContentType  string
	Backend      blob.Backend
}
