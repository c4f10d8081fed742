package blob

import "errors"

var (
	// ErrNotFound signals that no object exists under the key.
	ErrNotFound = errors.New("object not found")
	// ErrStorageWrite signals that the bytes could not be durably stored.
	ErrStorageWrite = errors.New("storage write failed")
	// ErrStorageDelete signals that an existing object could not be removed.
	ErrStorageDelete = errors.New("storage delete failed")
	// ErrInvalidKey signals a key that could escape the store's namespace.
	ErrInvalidKey = errors.New("invalid storage key")
)
