package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"stash/internal/backend"
)

// Local stores blob bytes under root/<bucket>/<id prefix>/<id>.
type Local struct {
	root    string
	buckets Buckets
}

// NewLocal creates a local blob store rooted at root.
func NewLocal(root string, buckets Buckets) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local blob root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs, buckets: buckets}, nil
}

// UploadBlob streams r into the bucket. Existing ids are not overwritten.
func (l *Local) UploadBlob(ctx context.Context, bucket, id, name string, r io.Reader) (backend.BlobInfo, error) {
	var zero backend.BlobInfo
	if l == nil {
		return zero, fmt.Errorf("blob store is not configured")
	}
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	dst, err := l.path(bucket, id)
	if err != nil {
		return zero, err
	}
	if _, err := os.Stat(dst); err == nil {
		return zero, fmt.Errorf("%w: blob %s/%s", backend.ErrConflict, bucket, id)
	}

	tmp, err := os.CreateTemp(filepath.Join(l.root, "tmp"), "put-*")
	if err != nil {
		return zero, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), contextReader{ctx: ctx, r: r})
	if err != nil {
		cleanup()
		return zero, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		cleanup()
		return zero, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return zero, err
	}

	return backend.BlobInfo{
		ID:     id,
		Name:   name,
		Size:   n,
		SHA256: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// OpenBlob returns a reader for one blob or backend.ErrNotFound.
func (l *Local) OpenBlob(ctx context.Context, bucket, id string) (io.ReadCloser, error) {
	if l == nil {
		return nil, fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.path(bucket, id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: blob %s/%s", backend.ErrNotFound, bucket, id)
	}
	return f, err
}

// DeleteBlob removes a blob. Missing blobs are ignored.
func (l *Local) DeleteBlob(ctx context.Context, bucket, id string) error {
	if l == nil {
		return fmt.Errorf("blob store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.path(bucket, id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) path(bucket, id string) (string, error) {
	if err := l.buckets.check(bucket); err != nil {
		return "", err
	}
	if err := checkBlobID(id); err != nil {
		return "", err
	}
	shard := id
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(l.root, "buckets", bucket, shard, id), nil
}

// contextReader stops a copy once ctx is cancelled.
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
