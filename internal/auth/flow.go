// Package auth drives passwordless sign-up and sign-in through one-time
// email codes and resolves the signed-in user from a session secret.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"stash/internal/backend"
	"stash/internal/models"
)

// UserNotFoundMessage is reported by SignIn for unknown emails.
const UserNotFoundMessage = "User not found"

var (
	ErrOTPIssuance     = errors.New("failed to send email otp")
	ErrVerification    = errors.New("failed to verify otp")
	ErrNoActiveSession = errors.New("no active session")
)

// Config names the backend project and collections the flow works against.
type Config struct {
	Endpoint        string
	ProjectID       string
	APIKey          string
	UsersCollection string
}

// AccountResult is the outcome of sign-up and sign-in. Error carries the
// user-facing reason when AccountID is empty.
type AccountResult struct {
	AccountID string
	Error     string
}

// Flow implements the account and session operations. It keeps no state
// between calls.
type Flow struct {
	factory backend.Factory
	cfg     Config
	logger  *slog.Logger
	newID   func() string
}

// NewFlow builds a Flow over a backend client factory.
func NewFlow(factory backend.Factory, cfg Config, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		factory: factory,
		cfg:     cfg,
		logger:  logger.With("component", "auth"),
		newID:   newAccountHint,
	}
}

func (f *Flow) admin() (backend.Client, error) {
	return f.factory.Admin(backend.Credentials{
		Endpoint:  f.cfg.Endpoint,
		ProjectID: f.cfg.ProjectID,
		APIKey:    f.cfg.APIKey,
	})
}

func (f *Flow) session(secret string) (backend.Client, error) {
	return f.factory.Session(backend.Credentials{
		Endpoint:      f.cfg.Endpoint,
		ProjectID:     f.cfg.ProjectID,
		SessionSecret: secret,
	})
}

func newAccountHint() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// LookupUserByEmail returns the user document with exactly this email, or nil.
func (f *Flow) LookupUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	client, err := f.admin()
	if err != nil {
		return nil, err
	}
	return f.findUser(ctx, client, backend.Equal("email", email))
}

// IssueEmailOTP asks the backend to mail a fresh code and returns the
// account id the code verifies against.
func (f *Flow) IssueEmailOTP(ctx context.Context, email string) (string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	client, err := f.admin()
	if err != nil {
		return "", err
	}
	token, err := client.Accounts().CreateEmailToken(ctx, f.newID(), email)
	if err != nil {
		f.logger.Error("email otp issuance failed", "email", email, "error", err)
		return "", fmt.Errorf("%w: %w", ErrOTPIssuance, err)
	}
	if token.AccountID == "" {
		f.logger.Error("email otp issuance returned no account", "email", email)
		return "", ErrOTPIssuance
	}
	return token.AccountID, nil
}

// CreateAccount issues a code and creates the user document when none
// exists for email. Registered emails only get a fresh code.
func (f *Flow) CreateAccount(ctx context.Context, fullName, email string) (AccountResult, error) {
	fullName, err := ValidateFullName(fullName)
	if err != nil {
		return AccountResult{}, err
	}
	email, err = NormalizeEmail(email)
	if err != nil {
		return AccountResult{}, err
	}

	existing, err := f.LookupUserByEmail(ctx, email)
	if err != nil {
		return AccountResult{}, fmt.Errorf("lookup user: %w", err)
	}

	accountID, err := f.IssueEmailOTP(ctx, email)
	if err != nil {
		return AccountResult{}, err
	}

	if existing == nil {
		if err := f.createUserDocument(ctx, fullName, email, accountID); err != nil {
			return AccountResult{}, err
		}
	}
	return AccountResult{AccountID: accountID}, nil
}

// createUserDocument stores the user keyed by account id, so concurrent
// sign-ups for one email collapse onto one document. On failure the just
// issued tokens are revoked.
func (f *Flow) createUserDocument(ctx context.Context, fullName, email, accountID string) error {
	client, err := f.admin()
	if err != nil {
		return err
	}
	_, err = client.Documents().CreateDocument(ctx, f.cfg.UsersCollection, accountID, map[string]any{
		"fullName":  fullName,
		"email":     email,
		"avatar":    models.AvatarPlaceholderURL,
		"accountId": accountID,
	})
	if err == nil || errors.Is(err, backend.ErrConflict) {
		return nil
	}

	f.logger.Error("create user document failed", "account_id", accountID, "error", err)
	err = fmt.Errorf("create user: %w", err)
	if revokeErr := client.Accounts().DeleteEmailTokens(context.WithoutCancel(ctx), accountID); revokeErr != nil {
		f.logger.Error("revoke email tokens failed", "account_id", accountID, "error", revokeErr)
		return errors.Join(err, fmt.Errorf("revoke email tokens: %w", revokeErr))
	}
	return err
}

// SignIn mails a code to a registered email. Unknown emails get an
// AccountResult carrying UserNotFoundMessage and no code is issued.
func (f *Flow) SignIn(ctx context.Context, email string) (AccountResult, error) {
	existing, err := f.LookupUserByEmail(ctx, email)
	if err != nil {
		return AccountResult{}, err
	}
	if existing == nil {
		return AccountResult{Error: UserNotFoundMessage}, nil
	}
	accountID, err := f.IssueEmailOTP(ctx, existing.Email)
	if err != nil {
		return AccountResult{}, err
	}
	return AccountResult{AccountID: accountID}, nil
}

// VerifyOTP exchanges an account id and code for a session. The caller owns
// persisting Session.Secret.
func (f *Flow) VerifyOTP(ctx context.Context, accountID, code string) (backend.Session, error) {
	accountID = strings.TrimSpace(accountID)
	code = strings.TrimSpace(code)
	if accountID == "" || !validOTP(code) {
		return backend.Session{}, ErrVerification
	}
	client, err := f.admin()
	if err != nil {
		return backend.Session{}, err
	}
	session, err := client.Accounts().CreateSession(ctx, accountID, code)
	if errors.Is(err, backend.ErrInvalidToken) {
		f.logger.Warn("otp verification rejected", "account_id", accountID)
		return backend.Session{}, ErrVerification
	}
	if err != nil {
		f.logger.Error("create session failed", "account_id", accountID, "error", err)
		return backend.Session{}, fmt.Errorf("create session: %w", err)
	}
	if session.ID == "" || session.Secret == "" {
		return backend.Session{}, ErrVerification
	}
	return session, nil
}

// CurrentUser resolves the user owning sessionSecret. No session and no
// matching document both yield nil without error.
func (f *Flow) CurrentUser(ctx context.Context, sessionSecret string) (*models.User, error) {
	if strings.TrimSpace(sessionSecret) == "" {
		return nil, nil
	}
	client, err := f.session(sessionSecret)
	if err != nil {
		return nil, nil
	}
	account, err := client.Accounts().GetCurrentAccount(ctx, sessionSecret)
	if errors.Is(err, backend.ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get current account: %w", err)
	}
	return f.findUser(ctx, client, backend.Equal("accountId", account.ID))
}

// RequireUser is CurrentUser for protected operations.
func (f *Flow) RequireUser(ctx context.Context, sessionSecret string) (models.User, error) {
	user, err := f.CurrentUser(ctx, sessionSecret)
	if err != nil {
		return models.User{}, err
	}
	if user == nil {
		return models.User{}, ErrNoActiveSession
	}
	return *user, nil
}

// SignOut invalidates the session at the backend. An already dead session
// is not an error.
func (f *Flow) SignOut(ctx context.Context, sessionSecret string) error {
	if strings.TrimSpace(sessionSecret) == "" {
		return nil
	}
	client, err := f.session(sessionSecret)
	if err != nil {
		return err
	}
	err = client.Accounts().DeleteSession(ctx, sessionSecret, backend.CurrentSession)
	if err == nil || errors.Is(err, backend.ErrNoSession) {
		return nil
	}
	f.logger.Error("delete session failed", "error", err)
	return fmt.Errorf("delete session: %w", err)
}

// ListUsers returns every user document, newest first.
func (f *Flow) ListUsers(ctx context.Context) ([]models.User, error) {
	client, err := f.admin()
	if err != nil {
		return nil, err
	}
	list, err := client.Documents().ListDocuments(ctx, f.cfg.UsersCollection, []backend.Query{backend.OrderDesc("createdAt")})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]models.User, 0, len(list.Documents))
	for _, doc := range list.Documents {
		users = append(users, UserFromDocument(doc))
	}
	return users, nil
}

func (f *Flow) findUser(ctx context.Context, client backend.Client, q backend.Query) (*models.User, error) {
	list, err := client.Documents().ListDocuments(ctx, f.cfg.UsersCollection, []backend.Query{q, backend.Limit(1)})
	if err != nil {
		f.logger.Error("user lookup failed", "query", q.String(), "error", err)
		return nil, fmt.Errorf("list users: %w", err)
	}
	if len(list.Documents) == 0 {
		return nil, nil
	}
	user := UserFromDocument(list.Documents[0])
	return &user, nil
}

// UserFromDocument maps a users collection document onto a User.
func UserFromDocument(doc backend.Document) models.User {
	return models.User{
		ID:        doc.ID,
		FullName:  stringField(doc.Fields, "fullName"),
		Email:     stringField(doc.Fields, "email"),
		AvatarURL: stringField(doc.Fields, "avatar"),
		AccountID: stringField(doc.Fields, "accountId"),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}
