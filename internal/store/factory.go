package store

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"stash/internal/backend"
)

// Factory issues backend clients over one Store and one blob backend. Admin
// clients require the server API key; session clients act as the account
// owning the session secret.
type Factory struct {
	store     *Store
	blobs     backend.Blobs
	projectID string
	apiKey    string
}

var _ backend.Factory = (*Factory)(nil)

// NewFactory binds a Store and blob backend to a project and API key.
func NewFactory(st *Store, blobs backend.Blobs, projectID, apiKey string) *Factory {
	return &Factory{store: st, blobs: blobs, projectID: strings.TrimSpace(projectID), apiKey: apiKey}
}

// Admin returns a client with full access.
func (f *Factory) Admin(creds backend.Credentials) (backend.Client, error) {
	if err := f.checkProject(creds); err != nil {
		return nil, err
	}
	if f.apiKey == "" || subtle.ConstantTimeCompare([]byte(creds.APIKey), []byte(f.apiKey)) != 1 {
		return nil, fmt.Errorf("%w: api key rejected", backend.ErrUnauthorized)
	}
	return &adminClient{factory: f}, nil
}

// Session returns a client acting as the session's account.
func (f *Factory) Session(creds backend.Credentials) (backend.Client, error) {
	if err := f.checkProject(creds); err != nil {
		return nil, err
	}
	secret := strings.TrimSpace(creds.SessionSecret)
	if secret == "" {
		return nil, fmt.Errorf("%w: session secret required", backend.ErrUnauthorized)
	}
	return &sessionClient{factory: f, secret: secret}, nil
}

func (f *Factory) checkProject(creds backend.Credentials) error {
	if f.projectID == "" || creds.ProjectID == f.projectID {
		return nil
	}
	return fmt.Errorf("%w: unknown project %q", backend.ErrUnauthorized, creds.ProjectID)
}

type adminClient struct {
	factory *Factory
}

func (c *adminClient) Accounts() backend.Accounts   { return c.factory.store }
func (c *adminClient) Documents() backend.Documents { return c.factory.store }
func (c *adminClient) Blobs() backend.Blobs         { return c.factory.blobs }

type sessionClient struct {
	factory *Factory
	secret  string
}

func (c *sessionClient) Accounts() backend.Accounts {
	return &sessionAccounts{store: c.factory.store, secret: c.secret}
}
func (c *sessionClient) Documents() backend.Documents { return c.factory.store }
func (c *sessionClient) Blobs() backend.Blobs         { return c.factory.blobs }

// sessionAccounts exposes only the operations a signed-in account may run
// on itself. An empty secret argument falls back to the client's secret.
type sessionAccounts struct {
	store  *Store
	secret string
}

func (a *sessionAccounts) CreateEmailToken(context.Context, string, string) (backend.Token, error) {
	return backend.Token{}, fmt.Errorf("%w: email tokens need an admin client", backend.ErrUnauthorized)
}

func (a *sessionAccounts) CreateSession(context.Context, string, string) (backend.Session, error) {
	return backend.Session{}, fmt.Errorf("%w: sessions need an admin client", backend.ErrUnauthorized)
}

func (a *sessionAccounts) DeleteEmailTokens(context.Context, string) error {
	return fmt.Errorf("%w: email tokens need an admin client", backend.ErrUnauthorized)
}

func (a *sessionAccounts) GetCurrentAccount(ctx context.Context, sessionSecret string) (backend.Account, error) {
	return a.store.GetCurrentAccount(ctx, a.pick(sessionSecret))
}

func (a *sessionAccounts) DeleteSession(ctx context.Context, sessionSecret, sessionID string) error {
	return a.store.DeleteSession(ctx, a.pick(sessionSecret), sessionID)
}

func (a *sessionAccounts) pick(sessionSecret string) string {
	if strings.TrimSpace(sessionSecret) == "" {
		return a.secret
	}
	return sessionSecret
}
