package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"stash/internal/api"
	"stash/internal/auth"
	"stash/internal/models"
)

const sessionCookieName = api.SessionCookieName

type userContextKey struct{}

func contextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

func userFromContext(ctx context.Context) (models.User, bool) {
	if ctx == nil {
		return models.User{}, false
	}
	user, ok := ctx.Value(userContextKey{}).(models.User)
	return user, ok
}

func sessionSecretFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, secret string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    secret,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.sessionMaxAge / time.Second),
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
}

// withUser resolves the session cookie into the signed-in user and rejects
// requests without one.
func (s *Server) withUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.auth.RequireUser(r.Context(), sessionSecretFromRequest(r))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		next(w, r.WithContext(contextWithUser(r.Context(), user)))
	}
}

func (s *Server) requestUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := userFromContext(r.Context())
	if !ok {
		s.writeServiceError(w, r, auth.ErrNoActiveSession)
		return models.User{}, false
	}
	return user, true
}
