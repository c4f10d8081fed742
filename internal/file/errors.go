package file

import "errors"

var (
	// ErrNotFound signals that the file does not exist or belongs to another account.
	ErrNotFound = errors.New("file not found")
	// ErrPayloadTooLarge signals that the upload exceeds the configured ceiling.
	ErrPayloadTooLarge = errors.New("file too large")
	// ErrMissingFile signals an upload request without a file part.
	ErrMissingFile = errors.New("file field is required")
)
