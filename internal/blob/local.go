package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore keeps objects under a root directory on the local filesystem.
// Objects are published under publicPrefix by the HTTP layer.
type LocalStore struct {
	root         string
	publicPrefix string
	nowFunc      func() time.Time
}

// NewLocalStore creates the root directory when missing.
func NewLocalStore(root, publicPrefix string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("local store root must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	prefix := "/" + strings.Trim(publicPrefix, "/")
	return &LocalStore{root: abs, publicPrefix: prefix, nowFunc: time.Now}, nil
}

// Root returns the absolute directory holding the objects.
func (s *LocalStore) Root() string { return s.root }

// PublicPrefix returns the URL path prefix objects are served under.
func (s *LocalStore) PublicPrefix() string { return s.publicPrefix }

func (s *LocalStore) Backend() Backend { return BackendLocal }

// Put streams r into a temporary file next to the destination and renames it
// into place, so a failed write never leaves a partial object under the key.
func (s *LocalStore) Put(ctx context.Context, r io.Reader, suggestedName, _ string) (PutResult, error) {
	key := NewKey(s.nowFunc(), suggestedName)
	dst := s.pathFor(key)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return PutResult{}, fmt.Errorf("%w: create directory: %w", ErrStorageWrite, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return PutResult{}, fmt.Errorf("%w: create temp file: %w", ErrStorageWrite, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if err != nil {
		return PutResult{}, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		return PutResult{}, fmt.Errorf("%w: sync: %w", ErrStorageWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return PutResult{}, fmt.Errorf("%w: close: %w", ErrStorageWrite, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return PutResult{}, fmt.Errorf("%w: rename: %w", ErrStorageWrite, err)
	}
	committed = true

	return PutResult{Key: key, Size: written}, nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(s.pathFor(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	return f, nil
}

// URL returns the path the object is published under. It does not check
// that the object exists.
func (s *LocalStore) URL(_ context.Context, key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return path.Join(s.publicPrefix, key), nil
}

// Delete removes the object. Deleting a missing key succeeds.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.pathFor(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", ErrStorageDelete, err)
	}
	return nil
}

func (s *LocalStore) pathFor(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}
