package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"stash/internal/auth"
	"stash/internal/backend"
	"stash/internal/models"
)

var (
	ErrFileNotFound  = errors.New("file not found")
	ErrForbidden     = errors.New("only the owner can change this file")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrInvalidInput  = auth.ErrInvalidInput
)

// Config names the backend project, files collection and bucket.
type Config struct {
	Endpoint        string
	ProjectID       string
	APIKey          string
	FilesCollection string
	BucketID        string
	Quota           int64
	// PublicURL prefixes the content link stored on each file.
	PublicURL string
}

// FileList is one page of visible files.
type FileList struct {
	Total int           `json:"total"`
	Files []models.File `json:"documents"`
}

// Service runs file actions for an already resolved user.
type Service struct {
	factory backend.Factory
	cfg     Config
	logger  *slog.Logger
	newID   func() string
}

// NewService builds a Service over a backend client factory.
func NewService(factory backend.Factory, cfg Config, logger *slog.Logger) *Service {
	if cfg.Quota <= 0 {
		cfg.Quota = DefaultQuota
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		factory: factory,
		cfg:     cfg,
		logger:  logger.With("component", "files"),
		newID:   func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// Quota is the storage capacity of every account in bytes.
func (s *Service) Quota() int64 {
	return s.cfg.Quota
}

func (s *Service) admin() (backend.Client, error) {
	return s.factory.Admin(backend.Credentials{
		Endpoint:  s.cfg.Endpoint,
		ProjectID: s.cfg.ProjectID,
		APIKey:    s.cfg.APIKey,
	})
}

// Upload stores the bytes of filename and records its metadata. sizeHint is
// the declared length, or a negative value when unknown. When the metadata
// cannot be written the blob is deleted again.
func (s *Service) Upload(ctx context.Context, user models.User, filename string, sizeHint int64, r io.Reader) (models.File, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return models.File{}, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	client, err := s.admin()
	if err != nil {
		return models.File{}, err
	}

	usage, err := s.usage(ctx, client, user)
	if err != nil {
		return models.File{}, err
	}
	if sizeHint > 0 && usage.Used+sizeHint > s.cfg.Quota {
		return models.File{}, ErrQuotaExceeded
	}

	blobs := client.Blobs()
	blobID := s.newID()
	info, err := blobs.UploadBlob(ctx, s.cfg.BucketID, blobID, filename, r)
	if err != nil {
		s.logger.Error("upload blob failed", "name", filename, "error", err)
		return models.File{}, fmt.Errorf("upload blob: %w", err)
	}

	if usage.Used+info.Size > s.cfg.Quota {
		if cleanupErr := s.deleteBlob(ctx, blobs, info.ID); cleanupErr != nil {
			return models.File{}, errors.Join(ErrQuotaExceeded, cleanupErr)
		}
		return models.File{}, ErrQuotaExceeded
	}

	fileType, extension := models.ClassifyFile(filename)
	docID := s.newID()
	doc, err := client.Documents().CreateDocument(ctx, s.cfg.FilesCollection, docID, map[string]any{
		"type":         string(fileType),
		"name":         filename,
		"url":          s.contentURL(docID),
		"extension":    extension,
		"size":         info.Size,
		"owner":        user.ID,
		"accountId":    user.AccountID,
		"users":        []string{},
		"bucketFileId": info.ID,
	})
	if err != nil {
		s.logger.Error("create file document failed", "name", filename, "blob_id", info.ID, "error", err)
		err = fmt.Errorf("create file document: %w", err)
		if cleanupErr := s.deleteBlob(ctx, blobs, info.ID); cleanupErr != nil {
			return models.File{}, errors.Join(err, cleanupErr)
		}
		return models.File{}, err
	}

	s.logger.Info("file uploaded", "file_id", doc.ID, "owner", user.ID, "size", info.Size)
	return fileFromDocument(doc), nil
}

func (s *Service) deleteBlob(ctx context.Context, blobs backend.Blobs, blobID string) error {
	if err := blobs.DeleteBlob(context.WithoutCancel(ctx), s.cfg.BucketID, blobID); err != nil {
		s.logger.Error("orphaned blob cleanup failed", "blob_id", blobID, "error", err)
		return fmt.Errorf("delete orphaned blob %s: %w", blobID, err)
	}
	return nil
}

func (s *Service) contentURL(docID string) string {
	return s.cfg.PublicURL + "/v1/files/" + docID + "/content"
}

// List returns the files visible to user.
func (s *Service) List(ctx context.Context, user models.User, params ListParams) (FileList, error) {
	for _, t := range params.Types {
		if !models.IsValidFileType(t) {
			return FileList{}, fmt.Errorf("%w: unknown file type %q", ErrInvalidInput, t)
		}
	}
	client, err := s.admin()
	if err != nil {
		return FileList{}, err
	}
	queries := BuildQuery(user, params.Types, params.Search, params.Sort, params.Limit)
	list, err := client.Documents().ListDocuments(ctx, s.cfg.FilesCollection, queries)
	if err != nil {
		s.logger.Error("list files failed", "user", user.ID, "error", err)
		return FileList{}, fmt.Errorf("list files: %w", err)
	}

	out := FileList{Total: list.Total, Files: make([]models.File, 0, len(list.Documents))}
	for _, doc := range list.Documents {
		out.Files = append(out.Files, fileFromDocument(doc))
	}
	return out, nil
}

// Rename sets the file name to name.extension.
func (s *Service) Rename(ctx context.Context, user models.User, fileID, name, extension string) (models.File, error) {
	name = strings.TrimSpace(name)
	extension = strings.TrimPrefix(strings.TrimSpace(extension), ".")
	if name == "" {
		return models.File{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	newName := name
	if extension != "" {
		newName = name + "." + extension
	}

	client, file, err := s.ownedFile(ctx, user, fileID)
	if err != nil {
		return models.File{}, err
	}
	doc, err := client.Documents().UpdateDocument(ctx, s.cfg.FilesCollection, file.ID, map[string]any{"name": newName})
	if err != nil {
		return models.File{}, fmt.Errorf("rename file: %w", err)
	}
	return fileFromDocument(doc), nil
}

// Share replaces the set of emails the file is shared with.
func (s *Service) Share(ctx context.Context, user models.User, fileID string, emails []string) (models.File, error) {
	normalized := make([]string, 0, len(emails))
	for _, raw := range emails {
		email, err := auth.NormalizeEmail(raw)
		if err != nil {
			return models.File{}, err
		}
		if !slices.Contains(normalized, email) {
			normalized = append(normalized, email)
		}
	}

	client, file, err := s.ownedFile(ctx, user, fileID)
	if err != nil {
		return models.File{}, err
	}
	doc, err := client.Documents().UpdateDocument(ctx, s.cfg.FilesCollection, file.ID, map[string]any{"users": normalized})
	if err != nil {
		return models.File{}, fmt.Errorf("share file: %w", err)
	}
	return fileFromDocument(doc), nil
}

// Delete removes the metadata document and then the blob. An empty
// bucketFileID uses the one recorded on the file.
func (s *Service) Delete(ctx context.Context, user models.User, fileID, bucketFileID string) error {
	client, file, err := s.ownedFile(ctx, user, fileID)
	if err != nil {
		return err
	}
	if bucketFileID != "" && bucketFileID != file.BucketFileID {
		return fmt.Errorf("%w: bucket file id does not match file", ErrInvalidInput)
	}

	if err := client.Documents().DeleteDocument(ctx, s.cfg.FilesCollection, file.ID); err != nil {
		return fmt.Errorf("delete file document: %w", err)
	}
	if err := client.Blobs().DeleteBlob(ctx, s.cfg.BucketID, file.BucketFileID); err != nil {
		s.logger.Error("delete blob failed", "file_id", file.ID, "blob_id", file.BucketFileID, "error", err)
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// UsageSummary aggregates the storage used by files the user owns.
func (s *Service) UsageSummary(ctx context.Context, user models.User) (models.StorageUsage, error) {
	client, err := s.admin()
	if err != nil {
		return models.StorageUsage{}, err
	}
	return s.usage(ctx, client, user)
}

func (s *Service) usage(ctx context.Context, client backend.Client, user models.User) (models.StorageUsage, error) {
	list, err := client.Documents().ListDocuments(ctx, s.cfg.FilesCollection, []backend.Query{backend.Equal("owner", user.ID)})
	if err != nil {
		s.logger.Error("list owned files failed", "user", user.ID, "error", err)
		return models.StorageUsage{}, fmt.Errorf("list owned files: %w", err)
	}
	records := make([]models.File, 0, len(list.Documents))
	for _, doc := range list.Documents {
		records = append(records, fileFromDocument(doc))
	}
	return AggregateUsage(records, s.cfg.Quota)
}

// Open streams the bytes of a file visible to user.
func (s *Service) Open(ctx context.Context, user models.User, fileID string) (models.File, io.ReadCloser, error) {
	client, file, err := s.getFile(ctx, fileID)
	if err != nil {
		return models.File{}, nil, err
	}
	if !visibleTo(file, user) {
		return models.File{}, nil, ErrFileNotFound
	}
	rc, err := client.Blobs().OpenBlob(ctx, s.cfg.BucketID, file.BucketFileID)
	if errors.Is(err, backend.ErrNotFound) {
		s.logger.Warn("file has no blob", "file_id", file.ID, "blob_id", file.BucketFileID)
		return models.File{}, nil, ErrFileNotFound
	}
	if err != nil {
		return models.File{}, nil, fmt.Errorf("open blob: %w", err)
	}
	return file, rc, nil
}

func (s *Service) getFile(ctx context.Context, fileID string) (backend.Client, models.File, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, models.File{}, ErrFileNotFound
	}
	client, err := s.admin()
	if err != nil {
		return nil, models.File{}, err
	}
	doc, err := client.Documents().GetDocument(ctx, s.cfg.FilesCollection, fileID)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, models.File{}, ErrFileNotFound
	}
	if err != nil {
		return nil, models.File{}, fmt.Errorf("get file: %w", err)
	}
	return client, fileFromDocument(doc), nil
}

// ownedFile loads a file for mutation. Files the user cannot see report
// ErrFileNotFound; visible files owned by someone else report ErrForbidden.
func (s *Service) ownedFile(ctx context.Context, user models.User, fileID string) (backend.Client, models.File, error) {
	client, file, err := s.getFile(ctx, fileID)
	if err != nil {
		return nil, models.File{}, err
	}
	if !visibleTo(file, user) {
		return nil, models.File{}, ErrFileNotFound
	}
	if file.Owner != user.ID {
		return nil, models.File{}, ErrForbidden
	}
	return client, file, nil
}

func visibleTo(file models.File, user models.User) bool {
	return file.Owner == user.ID || slices.Contains(file.SharedWith, user.Email)
}
