package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/abduss/clientdrop/internal/blob"
	"github.com/abduss/clientdrop/internal/events"
	"github.com/abduss/clientdrop/internal/metrics"
)

const (
	defaultMaxFileSize = 10 * 1024 * 1024 // 10MB
	maxDisplayNameLen  = 255
	fallbackName       = "upload"
)

// Service manages the file lifecycle on top of the Registry and blob store.
type Service struct {
	registry    *Registry
	blobs       blob.Store
	events      events.Publisher
	maxFileSize int64
	log         *zap.Logger
}

// NewService constructs a file service. A non-positive maxFileSize selects the default.
func NewService(registry *Registry, blobs blob.Store, publisher events.Publisher, maxFileSize int64, log *zap.Logger) *Service {
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		registry:    registry,
		blobs:       blobs,
		events:      publisher,
		maxFileSize: maxFileSize,
		log:         log,
	}
}

// MaxFileSize returns the upload ceiling in bytes.
func (s *Service) MaxFileSize() int64 { return s.maxFileSize }

// Registry exposes the metadata registry.
func (s *Service) Registry() *Registry { return s.registry }

// UploadInput carries one streamed upload.
type UploadInput struct {
	OwnerID     int64
	Filename    string
	ContentType string
	Body        io.Reader
}

// Upload streams the body into the blob store and registers it. Nothing is
// recorded unless the bytes were stored in full.
func (s *Service) Upload(ctx context.Context, in UploadInput) (Record, error) {
	if in.Body == nil {
		return Record{}, ErrMissingFile
	}

	name := sanitizeFilename(in.Filename)
	contentType := detectContentType(in.ContentType, name)

	res, err := s.blobs.Put(ctx, &limitedReader{r: in.Body, remaining: s.maxFileSize}, name, contentType)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.Is(err, ErrPayloadTooLarge) || errors.As(err, &maxBytesErr) {
			metrics.FileOperation("upload", "too_large")
			return Record{}, ErrPayloadTooLarge
		}
		metrics.FileOperation("upload", "storage_error")
		return Record{}, fmt.Errorf("store upload: %w", err)
	}

	rec, err := s.registry.Record(ctx, RecordInput{
		OwnerID:      in.OwnerID,
		OriginalName: name,
		StorageKey:   res.Key,
		SizeBytes:    res.Size,
		ContentType:  contentType,
		Backend:      s.blobs.Backend(),
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, res.Key); delErr != nil {
			s.log.Warn("orphaned upload", zap.String("key", res.Key), zap.Error(delErr))
		}
		metrics.FileOperation("upload", "metadata_error")
		return Record{}, fmt.Errorf("record upload: %w", err)
	}

	metrics.FileOperation("upload", "ok")
	metrics.ObserveUpload(rec.SizeBytes)
	s.events.Publish(events.New(events.TypeFileUploaded, rec.OwnerID, rec.ID, rec.SizeBytes))
	return rec, nil
}

// List returns the owner's files, newest first.
func (s *Service) List(ctx context.Context, ownerID int64) ([]Record, error) {
	return s.registry.List(ctx, ownerID)
}

// Download returns the owner's file with an open stream of its bytes.
func (s *Service) Download(ctx context.Context, ownerID int64, fileID uuid.UUID) (Record, io.ReadCloser, error) {
	rec, err := s.registry.Get(ctx, fileID, ownerID)
	if err != nil {
		return Record{}, nil, err
	}
	return s.open(ctx, rec)
}

// OpenRecord streams the bytes of an already resolved record.
func (s *Service) OpenRecord(ctx context.Context, rec Record) (io.ReadCloser, error) {
	_, rc, err := s.open(ctx, rec)
	return rc, err
}

func (s *Service) open(ctx context.Context, rec Record) (Record, io.ReadCloser, error) {
	rc, err := s.blobs.Open(ctx, rec.StorageKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			s.log.Warn("metadata without bytes", zap.String("file_id", rec.ID.String()), zap.String("key", rec.StorageKey))
			return Record{}, nil, ErrNotFound
		}
		return Record{}, nil, fmt.Errorf("open object: %w", err)
	}
	metrics.FileOperation("download", "ok")
	return rec, rc, nil
}

// Locate returns a retrievable URL for the owner's file: the public path on
// the local backend or a presigned URL on the remote one.
func (s *Service) Locate(ctx context.Context, ownerID int64, fileID uuid.UUID) (string, error) {
	rec, err := s.registry.Get(ctx, fileID, ownerID)
	if err != nil {
		return "", err
	}
	return s.blobs.URL(ctx, rec.StorageKey)
}

// Delete removes the owner's file, bytes first.
func (s *Service) Delete(ctx context.Context, ownerID int64, fileID uuid.UUID) error {
	rec, err := s.registry.Remove(ctx, fileID, ownerID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			metrics.FileOperation("delete", "not_found")
		case errors.Is(err, blob.ErrStorageDelete):
			metrics.FileOperation("delete", "storage_error")
		default:
			metrics.FileOperation("delete", "error")
		}
		return err
	}

	metrics.FileOperation("delete", "ok")
	s.events.Publish(events.New(events.TypeFileDeleted, ownerID, rec.ID, rec.SizeBytes))
	return nil
}

// limitedReader fails with ErrPayloadTooLarge once more than remaining bytes
// have been read.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrPayloadTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrPayloadTooLarge
	}
	return n, err
}

// sanitizeFilename keeps the display name only: no directories, no control
// characters, NFC-normalized and bounded in length.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	name = norm.NFC.String(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	switch name {
	case "", ".", "..", "/":
		return fallbackName
	}

	if len(name) > maxDisplayNameLen {
		// cut at the last rune start at or below the limit
		cut := maxDisplayNameLen
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	return name
}

// detectContentType prefers the declared type unless it is the generic
// octet-stream browsers send for unknown files.
func detectContentType(declared, name string) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != octetStream {
			return mediaType
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(name))); byExt != "" {
		return byExt
	}
	return octetStream
}

const octetStream = "application/octet-stream"
