// Package blob stores uploaded file bytes under opaque keys, either on the
// local filesystem or in an S3-compatible object store.
package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/abduss/clientdrop/internal/config"
	"github.com/abduss/clientdrop/internal/storage"
)

// Backend records which kind of store holds an object.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// Valid reports whether b is a known backend kind.
func (b Backend) Valid() bool {
	return b == BackendLocal || b == BackendRemote
}

// PutResult describes a stored object.
type PutResult struct {
	Key  string
	Size int64
}

// Store is the capability set every backend provides. Keys are generated by
// the store on Put and are opaque to callers.
type Store interface {
	Backend() Backend
	Put(ctx context.Context, r io.Reader, suggestedName, contentType string) (PutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by stores that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New constructs the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, minioCfg config.MinIOConfig, s3Cfg config.S3Config) (Store, error) {
	switch cfg.Backend {
	case config.StorageLocal:
		return NewLocalStore(cfg.UploadDir, cfg.PublicPrefix)
	case config.StorageMinIO:
		client, err := storage.NewMinIOClient(minioCfg)
		if err != nil {
			return nil, err
		}
		if err := storage.EnsureBucket(ctx, client, minioCfg.Bucket, minioCfg.Region); err != nil {
			return nil, err
		}
		return NewMinIOStore(NewMinIOObjects(client), minioCfg.Bucket, cfg.OperationTimeout, cfg.URLTTL), nil
	case config.StorageS3:
		client, err := storage.NewS3Client(ctx, s3Cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, NewS3Presigner(client), s3Cfg.Bucket, cfg.OperationTimeout, cfg.URLTTL), nil
	}
	return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
}

// cancelOnClose releases a per-operation context once the caller is done
// reading the stream.
type cancelOnClose struct {
	io.ReadCloser
	cancel func()
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// countingReader records how many bytes passed through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// contextReader stops reading once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
