package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidKey is returned for keys that are empty or resolve outside the store root.
var ErrInvalidKey = errors.New("invalid blob key")

// tempPrefix marks in-flight writes. List never reports them.
const tempPrefix = ".put-"

// LocalBlobStore keeps blobs as files under a root directory. Keys are
// slash-separated paths relative to the root.
type LocalBlobStore struct {
	rootPath string
}

// NewLocalBlobStore creates a new LocalBlobStore with the given root directory.
func NewLocalBlobStore(rootPath string) *LocalBlobStore {
	return &LocalBlobStore{rootPath: rootPath}
}

// resolve maps a key to its file path. Keys that climb out of the root or
// are absolute are refused.
func (s *LocalBlobStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || clean == "." || filepath.IsAbs(clean) ||
		clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.rootPath, clean), nil
}

func missing(key string, err error, op string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("blob %s: %w", key, ErrNotFound)
	}
	return fmt.Errorf("failed to %s blob %s: %w", op, key, err)
}

// Put writes the blob through a temp file in the target directory and
// renames it into place, so readers see either the old or the new content.
func (s *LocalBlobStore) Put(ctx context.Context, key string, reader io.Reader) (err error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, ctxReader{ctx: ctx, r: reader}); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync blob %s: %w", key, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close blob %s: %w", key, err)
	}
	if err = os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to move blob into %s: %w", fullPath, err)
	}
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func (s *LocalBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, missing(key, err, "open")
	}
	return f, nil
}

// List returns the keys under prefix in lexical order. A prefix that does
// not exist yields no keys.
func (s *LocalBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	root := s.rootPath
	if prefix != "" {
		var err error
		if root, err = s.resolve(prefix); err != nil {
			return nil, err
		}
	}

	keys := []string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.rootPath, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list blobs with prefix %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes a blob and any directories it leaves empty, up to the root.
func (s *LocalBlobStore) Delete(ctx context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return missing(key, err, "delete")
	}
	root := filepath.Clean(s.rootPath)
	for dir := filepath.Dir(fullPath); dir != root && strings.HasPrefix(dir, root); dir = filepath.Dir(dir) {
		// Fails on the first non-empty directory.
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

// URL returns a file:// URL for an existing blob.
func (s *LocalBlobStore) URL(ctx context.Context, key string) (string, error) {
	fullPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if fullPath, err = filepath.Abs(fullPath); err != nil {
		return "", fmt.Errorf("failed to resolve blob %s: %w", key, err)
	}
	if _, err := os.Stat(fullPath); err != nil {
		return "", missing(key, err, "stat")
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(fullPath)}
	return u.String(), nil
}
