package models

import "time"

// File is one document of the files collection.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Extension    string    `json:"extension"`
	Type         FileType  `json:"type"`
	Size         int64     `json:"size"`
	URL          string    `json:"url"`
	Owner        string    `json:"owner"`
	AccountID    string    `json:"account_id"`
	SharedWith   []string  `json:"users"`
	BucketFileID string    `json:"bucket_file_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TypeUsage is the per-category slice of a usage summary.
type TypeUsage struct {
	Size           int64      `json:"size"`
	LatestModified *time.Time `json:"latest_modified,omitempty"`
}

// StorageUsage summarises bytes used per category against the quota.
type StorageUsage struct {
	Image    TypeUsage `json:"image"`
	Document TypeUsage `json:"document"`
	Video    TypeUsage `json:"video"`
	Audio    TypeUsage `json:"audio"`
	Other    TypeUsage `json:"other"`
	Used     int64     `json:"used"`
	Quota    int64     `json:"all"`
}

// Bucket returns a pointer to the slice for t, or nil for unknown types.
func (u *StorageUsage) Bucket(t FileType) *TypeUsage {
	switch t {
	case FileTypeImage:
		return &u.Image
	case FileTypeDocument:
		return &u.Document
	case FileTypeVideo:
		return &u.Video
	case FileTypeAudio:
		return &u.Audio
	case FileTypeOther:
		return &u.Other
	default:
		return nil
	}
}
