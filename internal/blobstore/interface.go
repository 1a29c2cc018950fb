// Package blobstore keeps uploaded file bytes in buckets, either on the
// local filesystem or in an S3-compatible object store.
package blobstore

import (
	"fmt"
	"strings"

	"stash/internal/backend"
)

var (
	_ backend.Blobs = (*Local)(nil)
	_ backend.Blobs = (*S3)(nil)
)

// Buckets restricts a store to the listed bucket ids. Empty accepts any.
type Buckets []string

func (b Buckets) check(bucket string) error {
	bucket = strings.TrimSpace(bucket)
	if !validKey(bucket) {
		return fmt.Errorf("%w: %q", backend.ErrUnknownBucket, bucket)
	}
	if len(b) == 0 {
		return nil
	}
	for _, allowed := range b {
		if allowed == bucket {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", backend.ErrUnknownBucket, bucket)
}

// validKey accepts bucket and blob ids that are safe as one path segment.
func validKey(key string) bool {
	if key == "" || len(key) > 128 || key[0] == '.' {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

func checkBlobID(id string) error {
	if !validKey(id) {
		return fmt.Errorf("invalid blob id %q", id)
	}
	return nil
}
