package main

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strings"
	"testing"

	"stash/internal/api"
	"stash/internal/server"
)

func TestFormatCLIErrorNetworkGuidance(t *testing.T) {
	err := &net.DNSError{Err: "dial tcp: connection refused", Name: "127.0.0.1", IsTemporary: true}
	lines := formatCLIError(err)
	if !slices.Contains(lines, "hint: nothing answered at STASH_API_URL; start a server with: stash srv") {
		t.Fatalf("expected connectivity guidance, got %v", lines)
	}
}

func TestFormatCLIErrorAPIGuidance(t *testing.T) {
	tests := []struct {
		name string
		err  *api.APIError
		want string
	}{
		{"not a stash server", &api.APIError{Status: 404, Message: "api error: 404"}, "verify STASH_API_URL"},
		{"quota", &api.APIError{Status: 413, Code: "resource_exhausted", ErrorCode: server.ErrCodeQuotaExceeded, Message: "storage quota exceeded"}, "quota is full"},
		{"body too large", &api.APIError{Status: 413, Code: "resource_exhausted", ErrorCode: server.ErrCodeRequestTooLarge, Message: "request body too large"}, "max_upload_bytes"},
		{"otp delivery", &api.APIError{Status: 502, Code: "unavailable", ErrorCode: server.ErrCodeOTPDelivery, Message: "failed to send code"}, "could not mail the code"},
		{"wrong code", &api.APIError{Status: 401, Code: "unauthorized", ErrorCode: server.ErrCodeInvalidOTP, Message: "verification failed"}, "stash remote sign-in"},
		{"no session", &api.APIError{Status: 401, Code: "unauthorized", ErrorCode: server.ErrCodeUnauthorized, Message: "no active session"}, "STASH_SESSION"},
		{"rate limited", &api.APIError{Status: 429, Code: "resource_exhausted", ErrorCode: server.ErrCodeResourceExhausted, Message: "too many attempts"}, "Retry-After"},
		{"internal", &api.APIError{Status: 500, Code: "internal", ErrorCode: server.ErrCodeInternal, Message: "internal error"}, "internal error; its log"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lines := formatCLIError(fmt.Errorf("request: %w", tc.err))
			if len(lines) != 2 {
				t.Fatalf("expected message plus one hint, got %v", lines)
			}
			if !strings.Contains(lines[1], tc.want) {
				t.Fatalf("expected hint containing %q, got %v", tc.want, lines)
			}
		})
	}
}

func TestFormatCLIErrorTimeout(t *testing.T) {
	lines := formatCLIError(fmt.Errorf("ping: %w", context.DeadlineExceeded))
	if len(lines) != 2 || !strings.Contains(lines[1], "STASH_HTTP_TIMEOUT") {
		t.Fatalf("expected timeout hint, got %v", lines)
	}
}

func TestFormatCLIErrorPlain(t *testing.T) {
	if lines := formatCLIError(nil); lines != nil {
		t.Fatalf("expected nil, got %v", lines)
	}
	lines := formatCLIError(fmt.Errorf("--email is required"))
	if !slices.Equal(lines, []string{"--email is required"}) {
		t.Fatalf("expected message only, got %v", lines)
	}
}
