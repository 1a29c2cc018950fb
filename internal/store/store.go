// Package store is the self-hosted backend: accounts, email tokens, sessions
// and schemaless document collections kept in one SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute

	defaultTokenTTL   = 15 * time.Minute
	defaultSessionTTL = 30 * 24 * time.Hour

	dbTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// OTPSender delivers a freshly issued one-time code to an email address.
type OTPSender interface {
	SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error
}

// Options tune the account and collection behaviour of a Store.
type Options struct {
	// Collections restricts document access to the named collections.
	// Empty allows any collection id.
	Collections []string
	TokenTTL    time.Duration
	SessionTTL  time.Duration
	Sender      OTPSender
}

// Store wraps the SQLite database.
type Store struct {
	db          *sql.DB
	sender      OTPSender
	tokenTTL    time.Duration
	sessionTTL  time.Duration
	collections map[string]struct{}
	now         func() time.Time
	bcryptCost  int
}

// Open opens the SQLite database and applies pending migrations.
func Open(path string) (*Store, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:         db,
		tokenTTL:   defaultTokenTTL,
		sessionTTL: defaultSessionTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Configure applies account and collection options. Zero values keep the
// current settings.
func (s *Store) Configure(opts Options) {
	if opts.TokenTTL > 0 {
		s.tokenTTL = opts.TokenTTL
	}
	if opts.SessionTTL > 0 {
		s.sessionTTL = opts.SessionTTL
	}
	if opts.Sender != nil {
		s.sender = opts.Sender
	}
	if len(opts.Collections) > 0 {
		s.collections = make(map[string]struct{}, len(opts.Collections))
		for _, id := range opts.Collections {
			id = strings.TrimSpace(id)
			if id != "" {
				s.collections[id] = struct{}{}
			}
		}
	}
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// Tune connection pool for local usage.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}

func dbFormatTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func dbParseTime(value string) (time.Time, error) {
	t, err := time.Parse(dbTimeLayout, value)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse db time %q: %w", value, err)
	}
	return t.UTC(), nil
}
