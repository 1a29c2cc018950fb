package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stash/internal/backend"
)

// maxTokenAttempts bounds wrong-code submissions before a token is burned.
const maxTokenAttempts = 5

var _ backend.Accounts = (*Store)(nil)

// CreateEmailToken finds or creates the account for email, supersedes any
// outstanding token and mails a fresh one-time code. accountHint is used as
// the id when a new account has to be created.
func (s *Store) CreateEmailToken(ctx context.Context, accountHint, email string) (backend.Token, error) {
	email = normalizeEmail(email)
	if email == "" {
		return backend.Token{}, fmt.Errorf("email is required")
	}
	if s.sender == nil {
		return backend.Token{}, fmt.Errorf("otp sender is not configured")
	}

	code, err := randomDigits(otpDigits)
	if err != nil {
		return backend.Token{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost())
	if err != nil {
		return backend.Token{}, fmt.Errorf("hash otp: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	tokenID := NewID()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return backend.Token{}, err
	}
	defer func() { _ = tx.Rollback() }()

	accountID, err := ensureAccount(ctx, tx, accountHint, email, now)
	if err != nil {
		return backend.Token{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE email_tokens
		SET consumed_at = ?
		WHERE account_id = ?
		  AND consumed_at IS NULL
	`, dbFormatTime(now), accountID); err != nil {
		return backend.Token{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO email_tokens (id, account_id, secret_hash, expires_at, consumed_at, created_at, attempts)
		VALUES (?, ?, ?, ?, NULL, ?, 0)
	`, tokenID, accountID, string(hash), dbFormatTime(expiresAt), dbFormatTime(now)); err != nil {
		return backend.Token{}, err
	}
	if err := tx.Commit(); err != nil {
		return backend.Token{}, err
	}

	if err := s.sender.SendOTP(ctx, email, code, expiresAt); err != nil {
		_, _ = s.db.ExecContext(context.WithoutCancel(ctx), "DELETE FROM email_tokens WHERE id = ?", tokenID)
		return backend.Token{}, fmt.Errorf("send otp: %w", err)
	}

	return backend.Token{AccountID: accountID, ExpiresAt: expiresAt}, nil
}

// CreateSession exchanges the account's latest outstanding code for a new
// session. The returned Secret is the only copy of the session token.
func (s *Store) CreateSession(ctx context.Context, accountID, secret string) (backend.Session, error) {
	accountID = strings.TrimSpace(accountID)
	secret = strings.TrimSpace(secret)
	if accountID == "" || secret == "" {
		return backend.Session{}, backend.ErrInvalidToken
	}

	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return backend.Session{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		tokenID    string
		secretHash string
		expiresRaw string
		attempts   int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, secret_hash, expires_at, attempts
		FROM email_tokens
		WHERE account_id = ?
		  AND consumed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`, accountID).Scan(&tokenID, &secretHash, &expiresRaw, &attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.Session{}, backend.ErrInvalidToken
	}
	if err != nil {
		return backend.Session{}, err
	}

	expiresAt, err := dbParseTime(expiresRaw)
	if err != nil {
		return backend.Session{}, err
	}
	if !now.Before(expiresAt) {
		if err := consumeToken(ctx, tx, tokenID, now); err != nil {
			return backend.Session{}, err
		}
		if err := tx.Commit(); err != nil {
			return backend.Session{}, err
		}
		return backend.Session{}, backend.ErrInvalidToken
	}

	if bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(secret)) != nil {
		attempts++
		var consumed any
		if attempts >= maxTokenAttempts {
			consumed = dbFormatTime(now)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE email_tokens
			SET attempts = ?, consumed_at = ?
			WHERE id = ?
		`, attempts, consumed, tokenID); err != nil {
			return backend.Session{}, err
		}
		if err := tx.Commit(); err != nil {
			return backend.Session{}, err
		}
		return backend.Session{}, backend.ErrInvalidToken
	}

	if err := consumeToken(ctx, tx, tokenID, now); err != nil {
		return backend.Session{}, err
	}

	token, err := generateSessionToken()
	if err != nil {
		return backend.Session{}, err
	}
	session := backend.Session{
		ID:        NewID(),
		AccountID: accountID,
		Secret:    token,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, account_id, token_hash, expires_at, revoked_at, created_at)
		VALUES (?, ?, ?, ?, NULL, ?)
	`, session.ID, accountID, hashSessionToken(token), dbFormatTime(session.ExpiresAt), dbFormatTime(now)); err != nil {
		return backend.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return backend.Session{}, err
	}
	return session, nil
}

// GetCurrentAccount resolves an active, non-revoked session secret.
func (s *Store) GetCurrentAccount(ctx context.Context, sessionSecret string) (backend.Account, error) {
	sessionSecret = strings.TrimSpace(sessionSecret)
	if sessionSecret == "" {
		return backend.Account{}, backend.ErrNoSession
	}

	var account backend.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.email
		FROM sessions s
		JOIN accounts a ON a.id = s.account_id
		WHERE s.token_hash = ?
		  AND s.revoked_at IS NULL
		  AND s.expires_at > ?
		LIMIT 1
	`, hashSessionToken(sessionSecret), dbFormatTime(s.now())).Scan(&account.ID, &account.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.Account{}, backend.ErrNoSession
	}
	if err != nil {
		return backend.Account{}, err
	}
	return account, nil
}

// DeleteSession revokes sessionID, or the session bound to sessionSecret
// when sessionID is backend.CurrentSession. Only sessions of the secret's
// own account can be revoked.
func (s *Store) DeleteSession(ctx context.Context, sessionSecret, sessionID string) error {
	sessionSecret = strings.TrimSpace(sessionSecret)
	if sessionSecret == "" {
		return backend.ErrNoSession
	}
	now := dbFormatTime(s.now())
	tokenHash := hashSessionToken(sessionSecret)

	var (
		result sql.Result
		err    error
	)
	if sessionID == "" || sessionID == backend.CurrentSession {
		result, err = s.db.ExecContext(ctx, `
			UPDATE sessions
			SET revoked_at = ?
			WHERE token_hash = ?
			  AND revoked_at IS NULL
			  AND expires_at > ?
		`, now, tokenHash, now)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE sessions
			SET revoked_at = ?
			WHERE id = ?
			  AND revoked_at IS NULL
			  AND account_id = (
			    SELECT account_id FROM sessions
			    WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?
			  )
		`, now, sessionID, tokenHash, now)
	}
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return backend.ErrNoSession
	}
	return nil
}

// DeleteEmailTokens removes every email token of an account.
func (s *Store) DeleteEmailTokens(ctx context.Context, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM email_tokens WHERE account_id = ?", accountID)
	return err
}

// PurgeResult reports rows removed by PurgeExpired.
type PurgeResult struct {
	Tokens   int64 `json:"tokens"`
	Sessions int64 `json:"sessions"`
}

// PurgeExpired deletes consumed or expired email tokens and revoked or
// expired sessions.
func (s *Store) PurgeExpired(ctx context.Context) (PurgeResult, error) {
	now := dbFormatTime(s.now())
	var res PurgeResult

	tokens, err := s.db.ExecContext(ctx, `
		DELETE FROM email_tokens
		WHERE consumed_at IS NOT NULL OR expires_at <= ?
	`, now)
	if err != nil {
		return res, fmt.Errorf("purge email tokens: %w", err)
	}
	res.Tokens, _ = tokens.RowsAffected()

	sessions, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE revoked_at IS NOT NULL OR expires_at <= ?
	`, now)
	if err != nil {
		return res, fmt.Errorf("purge sessions: %w", err)
	}
	res.Sessions, _ = sessions.RowsAffected()
	return res, nil
}

func ensureAccount(ctx context.Context, tx *sql.Tx, accountHint, email string, now time.Time) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, "SELECT id FROM accounts WHERE email = ? LIMIT 1", email).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	id = strings.TrimSpace(accountHint)
	if !validID(id) {
		id = NewID()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, email, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, id, email, dbFormatTime(now), dbFormatTime(now))
	if isUniqueViolation(err) {
		return "", fmt.Errorf("%w: account %s", backend.ErrConflict, id)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func consumeToken(ctx context.Context, tx *sql.Tx, tokenID string, now time.Time) error {
	_, err := tx.ExecContext(ctx, "UPDATE email_tokens SET consumed_at = ? WHERE id = ?", dbFormatTime(now), tokenID)
	return err
}

func (s *Store) hashCost() int {
	if s.bcryptCost == 0 {
		return bcrypt.DefaultCost
	}
	return s.bcryptCost
}

func hashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
