package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /health", s.handleHealth)

	// Passwordless auth.
	mux.HandleFunc("POST /v1/auth/sign-up", s.handleSignUp)
	mux.HandleFunc("POST /v1/auth/sign-in", s.handleSignIn)
	mux.HandleFunc("POST /v1/auth/otp", s.handleResendOTP)
	mux.HandleFunc("POST /v1/auth/verify", s.handleVerify)
	mux.HandleFunc("GET /v1/auth/me", s.handleMe)
	mux.HandleFunc("POST /v1/auth/sign-out", s.handleSignOut)

	// Files of the signed-in user.
	mux.HandleFunc("GET /v1/files", s.withUser(s.handleListFiles))
	mux.HandleFunc("POST /v1/files", s.withUser(s.handleUploadFile))
	mux.HandleFunc("GET /v1/files/usage", s.withUser(s.handleUsage))
	mux.HandleFunc("PATCH /v1/files/{id}", s.withUser(s.handleRenameFile))
	mux.HandleFunc("PUT /v1/files/{id}/users", s.withUser(s.handleShareFile))
	mux.HandleFunc("DELETE /v1/files/{id}", s.withUser(s.handleDeleteFile))
	mux.HandleFunc("GET /v1/files/{id}/content", s.withUser(s.handleFileContent))

	return mux
}
