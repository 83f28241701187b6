package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/saidovdiyorbek/threads/internal/config"
	"github.com/saidovdiyorbek/threads/internal/http/middleware"
	"github.com/saidovdiyorbek/threads/internal/remote"
	"github.com/saidovdiyorbek/threads/internal/services"
	"github.com/saidovdiyorbek/threads/internal/storage"
)

func newAttachEngine(t *testing.T) *gin.Engine {
	t.Helper()
	store, err := storage.New(t.TempDir())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	h := NewAttachHandler(services.NewAttachService(newServiceDB(t, config.ServiceAttach), store, "http://files.test/api/v1/attaches/"))

	r := gin.New()
	r.Use(middleware.Actor())
	r.POST("/attaches/upload", h.UploadFiles)
	r.GET("/attaches/open/:hash", h.OpenFile)
	r.GET("/attaches/download/:hash", h.DownloadFile)
	r.POST("/internal/attaches/exists", h.Exists)
	r.POST("/internal/attaches/hashes/exists", h.ListExists)
	r.DELETE("/internal/attaches/delete-list", h.DeleteList)
	return r
}

type part struct{ name, ctype, body string }

func multipartRequest(t *testing.T, userID uint64, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="files"; filename="`+p.name+`"`)
		hdr.Set("Content-Type", p.ctype)
		fw, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("part: %v", err)
		}
		_, _ = fw.Write([]byte(p.body))
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/attaches/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatUint(userID, 10))
	}
	return req
}

func uploadFiles(t *testing.T, r http.Handler, userID uint64, parts ...part) []services.Uploaded {
	t.Helper()
	w := serve(r, multipartRequest(t, userID, parts...))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	var out []services.Uploaded
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	return out
}

func TestAttachHandler_UploadAndServe(t *testing.T) {
	r := newAttachEngine(t)
	out := uploadFiles(t, r, 7,
		part{"notes.txt", "text/plain", "hello"},
		part{"pic.png", "image/png", "\x89PNG"},
	)
	if len(out) != 2 || out[0].Hash == "" || out[0].Hash == out[1].Hash {
		t.Fatalf("uploaded = %+v", out)
	}
	if out[0].URL != "http://files.test/api/v1/attaches/open/"+out[0].Hash {
		t.Fatalf("url = %s", out[0].URL)
	}

	w := serve(r, jsonRequest(http.MethodGet, "/attaches/open/"+out[0].Hash, 0, nil))
	if w.Code != http.StatusOK || w.Body.String() != "hello" {
		t.Fatalf("open: %d %q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type = %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "inline") {
		t.Fatalf("open disposition = %s", cd)
	}

	w = serve(r, jsonRequest(http.MethodGet, "/attaches/download/"+out[1].Hash, 0, nil))
	if w.Code != http.StatusOK || w.Header().Get("Content-Disposition") != `attachment; filename=pic.png` {
		t.Fatalf("download: %d %v", w.Code, w.Header())
	}

	w = serve(r, jsonRequest(http.MethodGet, "/attaches/open/nope", 0, nil))
	if w.Code != http.StatusNotFound || decodeError(t, w).Code != 101 {
		t.Fatalf("absent: %d %s", w.Code, w.Body.String())
	}
}

func TestAttachHandler_UploadRejects(t *testing.T) {
	r := newAttachEngine(t)

	if w := serve(r, multipartRequest(t, 0, part{"a.txt", "text/plain", "x"})); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous upload: %d", w.Code)
	}
	if w := serve(r, multipartRequest(t, 7)); w.Code != http.StatusBadRequest {
		t.Fatalf("no files: %d %s", w.Code, w.Body.String())
	}
	if w := serve(r, jsonRequest(http.MethodPost, "/attaches/upload", 7, map[string]string{"a": "b"})); w.Code != http.StatusBadRequest {
		t.Fatalf("not multipart: %d", w.Code)
	}
}

func TestAttachHandler_Internal(t *testing.T) {
	r := newAttachEngine(t)
	out := uploadFiles(t, r, 7, part{"a.txt", "text/plain", "a"}, part{"b.txt", "text/plain", "b"})
	a, b := out[0].Hash, out[1].Hash

	w := serve(r, jsonRequest(http.MethodPost, "/internal/attaches/exists", 0, remote.HashCheckRequest{Hash: a, UserID: 7}))
	if w.Code != http.StatusOK || w.Body.String() != "true" {
		t.Fatalf("exists: %d %s", w.Code, w.Body.String())
	}
	w = serve(r, jsonRequest(http.MethodPost, "/internal/attaches/exists", 0, remote.HashCheckRequest{Hash: a, UserID: 8}))
	if w.Code != http.StatusNotFound || decodeError(t, w).Code != 101 {
		t.Fatalf("foreign exists: %d %s", w.Code, w.Body.String())
	}

	for _, tc := range []struct {
		req  remote.HashesCheckRequest
		want string
	}{
		{remote.HashesCheckRequest{Hashes: []string{a, b}, UserID: 7}, "true"},
		{remote.HashesCheckRequest{Hashes: []string{a, "missing"}, UserID: 7}, "false"},
		{remote.HashesCheckRequest{Hashes: []string{a}, UserID: 8}, "false"},
		{remote.HashesCheckRequest{UserID: 7}, "true"},
	} {
		w := serve(r, jsonRequest(http.MethodPost, "/internal/attaches/hashes/exists", 0, tc.req))
		if w.Code != http.StatusOK || w.Body.String() != tc.want {
			t.Fatalf("%+v: %d %s", tc.req, w.Code, w.Body.String())
		}
	}

	if w := serve(r, jsonRequest(http.MethodDelete, "/internal/attaches/delete-list", 0, []string{a})); w.Code != http.StatusNoContent {
		t.Fatalf("delete-list: %d %s", w.Code, w.Body.String())
	}
	if w := serve(r, jsonRequest(http.MethodGet, "/attaches/open/"+a, 0, nil)); w.Code != http.StatusNotFound {
		t.Fatalf("deleted file still served: %d", w.Code)
	}
	if w := serve(r, jsonRequest(http.MethodGet, "/attaches/open/"+b, 0, nil)); w.Code != http.StatusOK {
		t.Fatalf("untouched file: %d", w.Code)
	}
}
