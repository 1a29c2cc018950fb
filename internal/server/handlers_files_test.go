package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"stash/internal/api"
	"stash/internal/models"
)

func uploadFile(t *testing.T, h http.Handler, cookie *http.Cookie, field, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("note", "ignored"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func listFiles(t *testing.T, h http.Handler, cookie *http.Cookie, query string) api.FileListResponse {
	t.Helper()
	w := doJSON(t, h, http.MethodGet, "/v1/files"+query, nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("expected list 200, got %d (%s)", w.Code, w.Body.String())
	}
	var resp api.FileListResponse
	decodeBody(t, w, &resp)
	return resp
}

func TestFilesRequireSession(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/files"},
		{http.MethodGet, "/v1/files/usage"},
		{http.MethodPatch, "/v1/files/abc"},
		{http.MethodDelete, "/v1/files/abc?bucket_file_id=x"},
		{http.MethodGet, "/v1/files/abc/content"},
	} {
		w := doJSON(t, h, tc.method, tc.path, nil, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", tc.method, tc.path, w.Code)
		}
		var resp api.ErrorResponse
		decodeBody(t, w, &resp)
		if resp.ErrorCode != ErrCodeUnauthorized {
			t.Fatalf("%s %s: expected error_code %d, got %d", tc.method, tc.path, ErrCodeUnauthorized, resp.ErrorCode)
		}
	}
}

func TestUploadListAndDownload(t *testing.T) {
	srv, sender := newTestServer(t)
	h := srv.Handler()
	cookie := signUp(t, h, sender, "Ada Lovelace", "ada@example.com")

	w := uploadFile(t, h, cookie, uploadFieldName, "notes.txt", []byte("hello"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected upload 201, got %d (%s)", w.Code, w.Body.String())
	}
	var file models.File
	decodeBody(t, w, &file)
	if file.Name != "notes.txt" || file.Extension != "txt" || file.Type != models.FileTypeDocument {
		t.Fatalf("unexpected file metadata %+v", file)
	}
	if file.Size != 5 || file.BucketFileID == "" {
		t.Fatalf("unexpected size or blob id %+v", file)
	}
	if file.URL != "http://127.0.0.1:8080/v1/files/"+file.ID+"/content" {
		t.Fatalf("unexpected url %q", file.URL)
	}

	w = uploadFile(t, h, cookie, uploadFieldName, "clip.mp4", []byte("0123456789"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected upload 201, got %d (%s)", w.Code, w.Body.String())
	}

	all := listFiles(t, h, cookie, "")
	if all.Total != 2 || len(all.Documents) != 2 {
		t.Fatalf("expected two files, got %+v", all)
	}

	videos := listFiles(t, h, cookie, "?type=video")
	if videos.Total != 1 || videos.Documents[0].Name != "clip.mp4" {
		t.Fatalf("expected only the video, got %+v", videos)
	}

	search := listFiles(t, h, cookie, "?search=NOTES&sort=name-asc")
	if search.Total != 1 || search.Documents[0].ID != file.ID {
		t.Fatalf("expected search hit on notes.txt, got %+v", search)
	}

	limited := listFiles(t, h, cookie, "?limit=1&sort=name-asc")
	if limited.Total != 2 || len(limited.Documents) != 1 || limited.Documents[0].Name != "clip.mp4" {
		t.Fatalf("expected first page of one, got %+v", limited)
	}

	w = doJSON(t, h, http.MethodGet, "/v1/files/"+file.ID+"/content", nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("expected content 200, got %d (%s)", w.Code, w.Body.String())
	}
	if w.Body.String() != "hello" {
		t.Fatalf("unexpected content %q", w.Body.String())
	}
	if w.Header().Get("Content-Length") != "5" {
		t.Fatalf("unexpected content length %q", w.Header().Get("Content-Length"))
	}

	w = doJSON(t, h, http.MethodGet, "/v1/files/usage", nil, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("expected usage 200, got %d", w.Code)
	}
	var usage api.UsageResponse
	decodeBody(t, w, &usage)
	if usage.Used != 15 || usage.Document.Size != 5 || usage.Video.Size != 10 {
		t.Fatalf("unexpected usage %+v", usage)
	}
	if usage.Document.LatestModified == nil || usage.Image.LatestModified != nil {
		t.Fatalf("unexpected latest modified values %+v", usage)
	}
	if usage.Quota != srv.files.Quota() || usage.Error != "" {
		t.Fatalf("unexpected quota or error %+v", usage)
	}
}

func TestListFilesRejectsBadQuery(t *testing.T) {
	srv, sender := newTestServer(t)
	h := srv.Handler()
	cookie := signUp(t, h, sender, "Ada Lovelace", "ada@example.com")

	tests := []struct {
		query string
		code  int
	}{
		{"?type=spreadsheet", ErrCodeInvalidType},
		{"?limit=-1", ErrCodeInvalidQuery},
		{"?limit=ten", ErrCodeInvalidQuery},
	}
	for _, tc := range tests {
		w := doJSON(t, h, http.MethodGet, "/v1/files"+tc.query, nil, cookie)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.query, w.Code)
		}
		var resp api.ErrorResponse
		decodeBody(t, w, &resp)
		if resp.ErrorCode != tc.code {
			t.Fatalf("%s: expected error_code %d, got %d", tc.query, tc.code, resp.ErrorCode)
		}
	}
}

func TestUploadRequiresFileField(t *testing.T) {
	srv, sender := newTestServer(t)
	h := srv.Handler()
	cookie := signUp(t, h, sender, "Ada Lovelace", "ada@example.com")

	w := uploadFile(t, h, cookie, "attachment", "notes.txt", []byte("hello"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodPost, "/v1/files", map[string]string{"name": "x"}, cookie)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart body, got %d", w.Code)
	}
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	srv, sender := newTestServer(t)
	srv.maxUploadBytes = 512
	h := srv.Handler()
	cookie := signUp(t, h, sender, "Ada Lovelace", "ada@example.com")

	w := uploadFile(t, h, cookie, uploadFieldName, "big.bin", bytes.Repeat([]byte("x"), 4096))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d (%s)", w.Code, w.Body.String())
	}
	if got := listFiles(t, h, cookie, ""); got.Total != 0 {
		t.Fatalf("expected no stored file, got %+v", got)
	}
}

func TestShareRenameDelete(t *testing.T) {
	srv, sender := newTestServer(t)
	h := srv.Handler()
	ada := signUp(t, h, sender, "Ada Lovelace", "ada@example.com")
	bob := signUp(t, h, sender, "Bob Babbage", "bob@example.com")

	w := uploadFile(t, h, ada, uploadFieldName, "plan.pdf", []byte("%PDF"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected upload 201, got %d (%s)", w.Code, w.Body.String())
	}
	var file models.File
	decodeBody(t, w, &file)

	w = doJSON(t, h, http.MethodGet, "/v1/files/"+file.ID+"/content", nil, bob)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unshared file, got %d", w.Code)
	}
	if got := listFiles(t, h, bob, ""); got.Total != 0 {
		t.Fatalf("expected bob to see nothing, got %+v", got)
	}

	w = doJSON(t, h, http.MethodPut, "/v1/files/"+file.ID+"/users", api.ShareRequest{Emails: []string{"Bob@Example.com"}}, bob)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when sharing an invisible file, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPut, "/v1/files/"+file.ID+"/users", api.ShareRequest{Emails: []string{"Bob@Example.com"}}, ada)
	if w.Code != http.StatusOK {
		t.Fatalf("expected share 200, got %d (%s)", w.Code, w.Body.String())
	}
	decodeBody(t, w, &file)
	if len(file.SharedWith) != 1 || file.SharedWith[0] != "bob@example.com" {
		t.Fatalf("unexpected shared users %v", file.SharedWith)
	}

	if got := listFiles(t, h, bob, ""); got.Total != 1 {
		t.Fatalf("expected bob to see the shared file, got %+v", got)
	}
	w = doJSON(t, h, http.MethodGet, "/v1/files/"+file.ID+"/content", nil, bob)
	if w.Code != http.StatusOK || w.Body.String() != "%PDF" {
		t.Fatalf("expected shared content, got %d %q", w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodPatch, "/v1/files/"+file.ID, api.RenameRequest{Name: "stolen", Extension: "pdf"}, bob)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner rename, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPatch, "/v1/files/"+file.ID, api.RenameRequest{Name: "roadmap", Extension: "pdf"}, ada)
	if w.Code != http.StatusOK {
		t.Fatalf("expected rename 200, got %d (%s)", w.Code, w.Body.String())
	}
	decodeBody(t, w, &file)
	if file.Name != "roadmap.pdf" {
		t.Fatalf("expected renamed file, got %q", file.Name)
	}

	w = doJSON(t, h, http.MethodDelete, "/v1/files/"+file.ID, nil, ada)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without bucket_file_id, got %d", w.Code)
	}
	var errResp api.ErrorResponse
	decodeBody(t, w, &errResp)
	if errResp.ErrorCode != ErrCodeMissingRequired {
		t.Fatalf("expected error_code %d, got %d", ErrCodeMissingRequired, errResp.ErrorCode)
	}

	w = doJSON(t, h, http.MethodDelete, "/v1/files/"+file.ID+"?bucket_file_id="+file.BucketFileID, nil, bob)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner delete, got %d", w.Code)
	}

	w = doJSON(t, h, http.MethodDelete, "/v1/files/"+file.ID+"?bucket_file_id="+file.BucketFileID, nil, ada)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected delete 204, got %d (%s)", w.Code, w.Body.String())
	}
	if got := listFiles(t, h, ada, ""); got.Total != 0 {
		t.Fatalf("expected no files after delete, got %+v", got)
	}
	w = doJSON(t, h, http.MethodGet, "/v1/files/"+file.ID+"/content", nil, ada)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}
