package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"stash/internal/api"
	"stash/internal/auth"
	"stash/internal/files"
	"stash/internal/models"
)

const uploadFieldName = "file"

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}
	params, err := listParamsFromQuery(r.URL.Query())
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	list, err := s.files.List(r.Context(), user, params)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidInput) {
			s.writeServiceError(w, r, err)
			return
		}
		s.log().Error("list files failed", "user", user.ID, "error", err)
		s.writeJSON(w, http.StatusOK, api.FileListResponse{Documents: []models.File{}, Error: "failed to list files"})
		return
	}
	s.writeJSON(w, http.StatusOK, api.FileListResponse{Total: list.Total, Documents: list.Files})
}

func listParamsFromQuery(query url.Values) (files.ListParams, error) {
	params := files.ListParams{
		Search: strings.TrimSpace(query.Get("search")),
		Sort:   strings.TrimSpace(query.Get("sort")),
	}
	for _, raw := range splitCSV(query["type"]) {
		t, err := models.ParseFileType(raw)
		if err != nil {
			return files.ListParams{}, badRequestCode(err, ErrCodeInvalidType)
		}
		params.Types = append(params.Types, t)
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return files.ListParams{}, badRequestCode(fmt.Errorf("invalid limit: %s", raw), ErrCodeInvalidQuery)
		}
		params.Limit = limit
	}
	return params, nil
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("multipart form with a %q field is required", uploadFieldName), ErrCodeMissingRequired))
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("%q field is required", uploadFieldName), ErrCodeMissingRequired))
			return
		}
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				s.writeServiceError(w, r, err)
				return
			}
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("read multipart body: %w", err), ErrCodeInvalidArgument))
			return
		}
		if part.FormName() != uploadFieldName {
			_ = part.Close()
			continue
		}

		file, err := s.files.Upload(r.Context(), user, part.FileName(), -1, part)
		_ = part.Close()
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, file)
		return
	}
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}

	usage, err := s.files.UsageSummary(r.Context(), user)
	if err != nil {
		s.log().Error("usage summary failed", "user", user.ID, "error", err)
		s.writeJSON(w, http.StatusOK, api.UsageResponse{
			StorageUsage: models.StorageUsage{Quota: s.files.Quota()},
			Error:        "failed to compute storage usage",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, api.UsageResponse{StorageUsage: usage})
}

func (s *Server) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	var req api.RenameRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	file, err := s.files.Rename(r.Context(), user, id, req.Name, req.Extension)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleShareFile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	var req api.ShareRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	file, err := s.files.Share(r.Context(), user, id, req.Emails)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	bucketFileID := strings.TrimSpace(r.URL.Query().Get("bucket_file_id"))
	if bucketFileID == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("bucket_file_id is required"), ErrCodeMissingRequired))
		return
	}

	if err := s.files.Delete(r.Context(), user, id, bucketFileID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFileContent(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requestUser(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	file, content, err := s.files.Open(r.Context(), user, id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Close()

	contentType := mime.TypeByExtension("." + file.Extension)
	if file.Extension == "" || contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": file.Name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if file.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content); err != nil {
		s.log().Error("stream file content failed", "file_id", file.ID, "error", err)
	}
}
