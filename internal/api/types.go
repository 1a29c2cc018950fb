package api

import "stash/internal/models"

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// SignUpRequest creates an account for a new email.
type SignUpRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// EmailRequest carries the email for sign-in and code resends.
type EmailRequest struct {
	Email string `json:"email"`
}

// AccountResponse reports the account a code was sent for. AccountID is null
// when Error explains why no code was sent.
type AccountResponse struct {
	AccountID *string `json:"account_id"`
	Error     string  `json:"error,omitempty"`
}

// VerifyRequest exchanges a one-time code for a session.
type VerifyRequest struct {
	AccountID string `json:"account_id"`
	Password  string `json:"password"`
}

// VerifyResponse names the session established by a verified code.
type VerifyResponse struct {
	SessionID string `json:"session_id"`
}

// MeResponse describes the caller. User is nil when no session is active.
type MeResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *models.User `json:"user,omitempty"`
}

// FileListResponse is one page of visible files. Error is set when the
// listing failed and the page is empty.
type FileListResponse struct {
	Total     int           `json:"total"`
	Documents []models.File `json:"documents"`
	Error     string        `json:"error,omitempty"`
}

// UsageResponse is the storage summary of the caller.
type UsageResponse struct {
	models.StorageUsage
	Error string `json:"error,omitempty"`
}

// RenameRequest sets a file name to name.extension.
type RenameRequest struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
}

// ShareRequest replaces the emails a file is shared with.
type ShareRequest struct {
	Emails []string `json:"emails"`
}
