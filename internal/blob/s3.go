package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Presigner is the subset of *s3.PresignClient used by S3Store.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// NewS3Presigner builds a presign client sharing the client's configuration.
func NewS3Presigner(client *s3.Client) S3Presigner {
	return s3.NewPresignClient(client)
}

// S3Store keeps objects in an AWS S3 bucket.
type S3Store struct {
	api       S3API
	presigner S3Presigner
	bucket    string
	timeout   time.Duration
	urlTTL    time.Duration
	nowFunc   func() time.Time
	tempDir   string
}

// NewS3Store constructs a remote store over a single bucket.
func NewS3Store(api S3API, presigner S3Presigner, bucket string, timeout, urlTTL time.Duration) *S3Store {
	return &S3Store{
		api:       api,
		presigner: presigner,
		bucket:    bucket,
		timeout:   timeout,
		urlTTL:    urlTTL,
		nowFunc:   time.Now,
	}
}

func (s *S3Store) Backend() Backend { return BackendRemote }

// Put spools r to a temporary file so the SDK gets a seekable body with a
// known length, then uploads it in a single request.
func (s *S3Store) Put(ctx context.Context, r io.Reader, suggestedName, contentType string) (PutResult, error) {
	key := NewKey(s.nowFunc(), suggestedName)

	spool, err := os.CreateTemp(s.tempDir, "clientdrop-s3-*")
	if err != nil {
		return PutResult{}, fmt.Errorf("%w: create spool file: %w", ErrStorageWrite, err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	size, err := io.Copy(spool, contextReader{ctx: ctx, r: r})
	if err != nil {
		return PutResult{}, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return PutResult{}, fmt.Errorf("%w: rewind spool file: %w", ErrStorageWrite, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          spool,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.api.PutObject(ctx, input); err != nil {
		return PutResult{}, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	return PutResult{Key: key, Size: size}, nil
}

// Open returns a stream whose context stays alive until the caller closes it.
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	return &cancelOnClose{ReadCloser: out.Body, cancel: cancel}, nil
}

// URL returns a time-limited presigned GET URL. Presigning is local and does
// not contact S3.
func (s *S3Store) URL(ctx context.Context, key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.urlTTL))
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return req.URL, nil
}

// Delete removes the object. S3 reports success for missing keys.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("%w: %w", ErrStorageDelete, err)
	}
	return nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (s *S3Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func (s *S3Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		switch coded.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
