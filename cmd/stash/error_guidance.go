package main

import (
	"context"
	"errors"
	"net"

	"stash/internal/api"
	"stash/internal/server"
)

// apiErrorHints maps numeric API error codes to the next step a user can take.
var apiErrorHints = map[int]string{
	server.ErrCodeQuotaExceeded:     "hint: storage quota is full; delete files or raise quota_bytes on the server.",
	server.ErrCodeRequestTooLarge:   "hint: upload exceeds server.max_upload_bytes.",
	server.ErrCodeInvalidOTP:        "hint: the code is wrong or expired; request a new one with: stash remote sign-in <email>",
	server.ErrCodeUnauthorized:      "hint: set STASH_SESSION from: stash remote verify <account-id> <code>",
	server.ErrCodeResourceExhausted: "hint: too many sign-in attempts for this address; wait for the Retry-After period.",
	server.ErrCodeOTPDelivery:       "hint: the server could not mail the code; check mail.mode and the SMTP relay in server logs.",
	server.ErrCodeFileNotFound:      "hint: the file id is unknown or not shared with you; list ids with: stash remote files",
	server.ErrCodeForbidden:         "hint: only the owner can rename, share or delete a file.",
	server.ErrCodeInvalidType:       "hint: --type accepts image, document, video, audio and other.",
	server.ErrCodeTimeout:           "hint: the server gave up on the request; raise server.request_timeout for large uploads.",
}

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		if hint, ok := apiErrorHints[apiErr.ErrorCode]; ok {
			lines = append(lines, hint)
		}
		switch {
		case apiErr.Code == "" && apiErr.ErrorCode == 0:
			lines = append(lines, "hint: no stash error envelope in the response; verify STASH_API_URL points to a stash server.")
		case apiErr.Status >= 500 && apiErr.Code == "internal":
			lines = append(lines, "hint: the server hit an internal error; its log has the details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: no answer in time; raise STASH_HTTP_TIMEOUT or check the server with: stash remote status")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines, "hint: nothing answered at STASH_API_URL; start a server with: stash srv")
	}
	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := lines[:0]
	for _, line := range lines {
		if _, dup := seen[line]; dup || line == "" {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
