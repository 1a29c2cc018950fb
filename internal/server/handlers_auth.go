package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stash/internal/api"
	"stash/internal/auth"
)

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req api.SignUpRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if !s.countOTPIssue(w, r, req.Email) {
		return
	}

	result, err := s.auth.CreateAccount(r.Context(), req.FullName, req.Email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, accountResponse(result))
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req api.EmailRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if !s.countOTPIssue(w, r, req.Email) {
		return
	}

	result, err := s.auth.SignIn(r.Context(), req.Email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, accountResponse(result))
}

func (s *Server) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req api.EmailRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if !s.countOTPIssue(w, r, req.Email) {
		return
	}

	accountID, err := s.auth.IssueEmailOTP(r.Context(), req.Email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AccountResponse{AccountID: &accountID})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	now := s.now()
	key := loginAttemptKey("verify", req.AccountID, r)
	if !s.allowLogin(w, r, key, now) {
		return
	}

	session, err := s.auth.VerifyOTP(r.Context(), req.AccountID, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrVerification) {
			s.loginLimiter.RegisterFailure(key, now)
		}
		s.writeServiceError(w, r, err)
		return
	}
	s.loginLimiter.Reset(key)

	s.setSessionCookie(w, session.Secret)
	s.writeJSON(w, http.StatusOK, api.VerifyResponse{SessionID: session.ID})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.CurrentUser(r.Context(), sessionSecretFromRequest(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.MeResponse{Authenticated: user != nil, User: user})
}

// handleSignOut always drops the cookie, even when the backend could not
// invalidate the session.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context(), sessionSecretFromRequest(r)); err != nil {
		s.log().Error("sign out failed", "remote_addr", r.RemoteAddr, "error", err)
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, s.signInPath, http.StatusSeeOther)
}

// countOTPIssue charges one attempt to the "otp" window of email. Sign-up,
// sign-in and resend share the window so an address cannot be flooded with
// mail through any of them.
func (s *Server) countOTPIssue(w http.ResponseWriter, r *http.Request, email string) bool {
	now := s.now()
	key := loginAttemptKey("otp", email, r)
	if !s.allowLogin(w, r, key, now) {
		return false
	}
	s.loginLimiter.RegisterFailure(key, now)
	return true
}

func (s *Server) allowLogin(w http.ResponseWriter, r *http.Request, key string, now time.Time) bool {
	ok, retryAfter := s.loginLimiter.Allow(key, now)
	if ok {
		return true
	}
	seconds := int(retryAfter.Round(time.Second) / time.Second)
	w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
	s.writeErrorReq(w, r, http.StatusTooManyRequests, apiError{
		status:  http.StatusTooManyRequests,
		code:    "resource_exhausted",
		errCode: ErrCodeResourceExhausted,
		err:     fmt.Errorf("too many attempts; retry later"),
	})
	return false
}

func accountResponse(result auth.AccountResult) api.AccountResponse {
	if result.AccountID == "" {
		return api.AccountResponse{Error: result.Error}
	}
	id := result.AccountID
	return api.AccountResponse{AccountID: &id}
}

func loginAttemptKey(scope, subject string, r *http.Request) string {
	subject = strings.ToLower(strings.TrimSpace(subject))
	if subject == "" {
		subject = "<empty>"
	}
	ip := requestClientIP(r)
	if ip == "" {
		ip = "<unknown>"
	}
	return scope + "|" + ip + "|" + subject
}

func requestClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remote)
	if err == nil {
		return strings.TrimSpace(host)
	}
	return remote
}
