package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "STASH_HTTP_TIMEOUT"
	sessionEnvKey      = "STASH_SESSION"

	// SessionCookieName carries the session secret between browser and server.
	SessionCookieName = "stash-session"
)

// Client is a simple HTTP client for the stash API.
type Client struct {
	baseURL string
	http    *http.Client
	session string
}

// NewClient creates a new API client. The session secret is read from
// STASH_SESSION when set.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
		session: strings.TrimSpace(os.Getenv(sessionEnvKey)),
	}
}

// WithSession returns a copy of the client that sends secret as the session
// cookie.
func (c *Client) WithSession(secret string) *Client {
	clone := *c
	clone.session = strings.TrimSpace(secret)
	return &clone
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Me returns the user of the client session.
func (c *Client) Me(ctx context.Context) (MeResponse, error) {
	var resp MeResponse
	err := c.do(ctx, http.MethodGet, "/v1/auth/me", nil, nil, &resp)
	return resp, err
}

// SignIn mails a code to a registered email.
func (c *Client) SignIn(ctx context.Context, email string) (AccountResponse, error) {
	var resp AccountResponse
	err := c.do(ctx, http.MethodPost, "/v1/auth/sign-in", nil, EmailRequest{Email: email}, &resp)
	return resp, err
}

// Verify exchanges a code for a session and returns the session secret.
func (c *Client) Verify(ctx context.Context, accountID, code string) (string, error) {
	payload, err := json.Marshal(VerifyRequest{AccountID: accountID, Password: code})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/verify", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", decodeError(resp)
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName && cookie.Value != "" {
			return cookie.Value, nil
		}
	}
	return "", &APIError{Status: resp.StatusCode, Message: "no session cookie in response"}
}

// ListFiles lists the files visible to the session user.
func (c *Client) ListFiles(ctx context.Context, query url.Values) (FileListResponse, error) {
	var resp FileListResponse
	err := c.do(ctx, http.MethodGet, "/v1/files", query, nil, &resp)
	return resp, err
}

// Usage returns the storage summary of the session user.
func (c *Client) Usage(ctx context.Context) (UsageResponse, error) {
	var resp UsageResponse
	err := c.do(ctx, http.MethodGet, "/v1/files/usage", nil, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setSessionCookie(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = "api error: " + resp.Status
	return apiErr
}

func (c *Client) setSessionCookie(req *http.Request) {
	if c.session == "" || req == nil {
		return
	}
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: c.session})
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
