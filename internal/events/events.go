// Package events announces file lifecycle changes to RabbitMQ. Publishing is
// best effort: request handling never waits on the broker.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys.
const (
	TypeFileUploaded = "file.uploaded"
	TypeFileDeleted  = "file.deleted"
	TypeFileShared   = "file.shared"
)

// Event describes one file lifecycle change.
type Event struct {
	ID         uuid.UUID `json:"event_id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	AccountID  int64     `json:"account_id"`
	FileID     uuid.UUID `json:"file_id"`
	SizeBytes  int64     `json:"size_bytes,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType string, accountID int64, fileID uuid.UUID, size int64) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		AccountID:  accountID,
		FileID:     fileID,
		SizeBytes:  size,
	}
}

// Publisher accepts events without blocking.
type Publisher interface {
	Publish(e Event)
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(Event) {}
