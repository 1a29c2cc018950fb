// Package backend defines the collaborator surface the auth and file layers
// depend on: accounts with email tokens and sessions, document collections,
// and blob buckets. Implementations live in internal/store and
// internal/blobstore; tests substitute fakes.
package backend

import (
	"context"
	"errors"
	"io"
	"time"
)

// CurrentSession names the session bound to the presented secret.
const CurrentSession = "current"

var (
	ErrNoSession         = errors.New("no active session")
	ErrInvalidToken      = errors.New("invalid or expired token")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("already exists")
	ErrUnauthorized      = errors.New("missing credentials")
	ErrUnknownBucket     = errors.New("unknown bucket")
	ErrUnknownCollection = errors.New("unknown collection")
)

// Token is returned when an email token has been issued for an account.
type Token struct {
	AccountID string
	ExpiresAt time.Time
}

// Session is an established session. Secret is only populated on creation.
type Session struct {
	ID        string
	AccountID string
	Secret    string
	ExpiresAt time.Time
}

// Account identifies the owner of a session.
type Account struct {
	ID    string
	Email string
}

// Accounts issues and verifies one-time email tokens and manages sessions.
type Accounts interface {
	CreateEmailToken(ctx context.Context, accountHint, email string) (Token, error)
	CreateSession(ctx context.Context, accountID, secret string) (Session, error)
	GetCurrentAccount(ctx context.Context, sessionSecret string) (Account, error)
	DeleteSession(ctx context.Context, sessionSecret, sessionID string) error
	DeleteEmailTokens(ctx context.Context, accountID string) error
}

// Document is one record of a collection.
type Document struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Fields    map[string]any
}

// DocumentList is the result of a collection query.
type DocumentList struct {
	Total     int
	Documents []Document
}

// Documents is a schemaless document collection store.
type Documents interface {
	ListDocuments(ctx context.Context, collection string, queries []Query) (DocumentList, error)
	GetDocument(ctx context.Context, collection, id string) (Document, error)
	CreateDocument(ctx context.Context, collection, id string, fields map[string]any) (Document, error)
	UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) (Document, error)
	DeleteDocument(ctx context.Context, collection, id string) error
}

// BlobInfo describes one stored blob.
type BlobInfo struct {
	ID     string
	Name   string
	Size   int64
	SHA256 string
}

// Blobs stores file bytes in named buckets.
type Blobs interface {
	UploadBlob(ctx context.Context, bucket, id, name string, r io.Reader) (BlobInfo, error)
	OpenBlob(ctx context.Context, bucket, id string) (io.ReadCloser, error)
	DeleteBlob(ctx context.Context, bucket, id string) error
}

// Client is a handle scoped to one set of credentials.
type Client interface {
	Accounts() Accounts
	Documents() Documents
	Blobs() Blobs
}

// Credentials select the privilege of a Client. APIKey grants admin access;
// SessionSecret acts as the signed-in account.
type Credentials struct {
	Endpoint      string
	ProjectID     string
	APIKey        string
	SessionSecret string
}

// Factory builds Clients from credentials. It holds no per-request state.
type Factory interface {
	Admin(creds Credentials) (Client, error)
	Session(creds Credentials) (Client, error)
}
