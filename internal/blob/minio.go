package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

const minioPartSize = 8 << 20

// MinIOObjects is the subset of the MinIO client used by MinIOStore.
type MinIOObjects interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

// minioObjects adapts minio.Client to MinIOObjects.
type minioObjects struct {
	client *minio.Client
}

// NewMinIOObjects wraps a MinIO client.
func NewMinIOObjects(client *minio.Client) MinIOObjects {
	return &minioObjects{client: client}
}

func (m *minioObjects) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return m.client.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (m *minioObjects) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return m.client.GetObject(ctx, bucketName, objectName, opts)
}

func (m *minioObjects) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return m.client.StatObject(ctx, bucketName, objectName, opts)
}

func (m *minioObjects) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return m.client.RemoveObject(ctx, bucketName, objectName, opts)
}

func (m *minioObjects) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	return m.client.PresignedGetObject(ctx, bucketName, objectName, expires, reqParams)
}

func (m *minioObjects) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return m.client.BucketExists(ctx, bucketName)
}

// MinIOStore keeps objects in a MinIO bucket.
type MinIOStore struct {
	objects MinIOObjects
	bucket  string
	timeout time.Duration
	urlTTL  time.Duration
	nowFunc func() time.Time
}

// NewMinIOStore constructs a remote store over a single bucket.
func NewMinIOStore(objects MinIOObjects, bucket string, timeout, urlTTL time.Duration) *MinIOStore {
	return &MinIOStore{
		objects: objects,
		bucket:  bucket,
		timeout: timeout,
		urlTTL:  urlTTL,
		nowFunc: time.Now,
	}
}

func (s *MinIOStore) Backend() Backend { return BackendRemote }

// Put streams r with an unknown size; MinIO uploads it in parts and aborts
// the upload if the reader fails.
func (s *MinIOStore) Put(ctx context.Context, r io.Reader, suggestedName, contentType string) (PutResult, error) {
	key := NewKey(s.nowFunc(), suggestedName)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	counter := &countingReader{r: r}
	if _, err := s.objects.PutObject(ctx, s.bucket, key, counter, -1, minio.PutObjectOptions{
		ContentType: contentType,
		PartSize:    minioPartSize,
	}); err != nil {
		return PutResult{}, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	return PutResult{Key: key, Size: counter.n}, nil
}

// Open returns a stream whose context stays alive until the caller closes it.
func (s *MinIOStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	if _, err := s.objects.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		cancel()
		if isMinIONotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}

	obj, err := s.objects.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		cancel()
		if isMinIONotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return &cancelOnClose{ReadCloser: obj, cancel: cancel}, nil
}

// URL returns a time-limited presigned GET URL.
func (s *MinIOStore) URL(ctx context.Context, key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	u, err := s.objects.PresignedGetObject(ctx, s.bucket, key, s.urlTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

// Delete removes the object. Deleting a missing key succeeds.
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.objects.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isMinIONotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrStorageDelete, err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *MinIOStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	exists, err := s.objects.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

func (s *MinIOStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func isMinIONotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
