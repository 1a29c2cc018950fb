package files

import (
	"errors"
	"fmt"

	"stash/internal/models"
)

// DefaultQuota is the storage capacity per account when none is configured.
const DefaultQuota int64 = 2 * 1024 * 1024 * 1024

var ErrInvalidRecordType = errors.New("invalid record type")

// AggregateUsage sums record sizes per type and tracks the latest update per
// type. Every record is validated before any total is touched.
func AggregateUsage(records []models.File, quota int64) (models.StorageUsage, error) {
	for _, r := range records {
		if !models.IsValidFileType(r.Type) {
			return models.StorageUsage{}, fmt.Errorf("%w: file %s has type %q", ErrInvalidRecordType, r.ID, r.Type)
		}
	}

	usage := models.StorageUsage{Quota: quota}
	for _, r := range records {
		bucket := usage.Bucket(r.Type)
		bucket.Size += r.Size
		usage.Used += r.Size

		if r.UpdatedAt.IsZero() {
			continue
		}
		if bucket.LatestModified == nil || r.UpdatedAt.After(*bucket.LatestModified) {
			updated := r.UpdatedAt
			bucket.LatestModified = &updated
		}
	}
	return usage, nil
}
