package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/saidovdiyorbek/threads/internal/remote"
	"github.com/saidovdiyorbek/threads/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
	return resp
}

func Test_fail_500_LogsAndBody(t *testing.T) {
	r := gin.New()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-500")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/boom", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, CodeInternal, "kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	resp := decodeError(t, w)
	if resp.RequestID != "rid-500" || resp.Code != 500 || resp.Message != "kaboom" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}
}

func Test_Fail_404_NotLogged(t *testing.T) {
	r := gin.New()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r.Use(func(c *gin.Context) {
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/missing", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, CodeNotFound, "nope")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound || decodeError(t, w).Code != 404 {
		t.Fatalf("unexpected: %d %s", w.Code, w.Body.String())
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx should not be logged: %s", buf.String())
	}
}

func Test_statusOf(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
		msg    string
	}{
		{"not found", services.ErrPostNotFound, 404, 100, "post not found"},
		{"wrapped conflict", fmt.Errorf("like: %w", services.ErrCommentSelfLike), 409, 106, "cannot like your own comment"},
		{"forbidden", services.ErrUserNotYours, 403, 106, "user does not belong to the caller"},
		{"unauthenticated", services.ErrUnauthenticated, 401, 401, "missing or invalid caller identity"},
		{"storage", services.ErrFileCreation, 500, 100, "file creation failed"},
		{
			"validation keeps detail",
			fmt.Errorf("%w: text is required", services.ErrValidation),
			400, 400, "validation failed: text is required",
		},
		{
			"remote 404 passthrough",
			fmt.Errorf("user short info: %w", &remote.Error{Service: "users", Status: 404, Code: 100, Message: "user not found"}),
			404, 100, "user not found",
		},
		{
			"remote 4xx without body",
			&remote.Error{Service: "posts", Status: 409},
			409, 409, "Conflict",
		},
		{
			"remote 5xx",
			&remote.Error{Service: "attaches", Status: 503, Message: "down"},
			502, 502, "attaches service call failed",
		},
		{
			"transport failure",
			&remote.Error{Service: "comments", Err: errors.New("connection refused")},
			502, 502, "comments service call failed",
		},
		{"unknown", errors.New("disk on fire"), 500, 500, "internal server error"},
	}
	for _, tc := range cases {
		status, code, msg := statusOf(tc.err)
		if status != tc.status || code != tc.code || msg != tc.msg {
			t.Fatalf("%s: statusOf = (%d, %d, %q); want (%d, %d, %q)", tc.name, status, code, msg, tc.status, tc.code, tc.msg)
		}
	}
}

func Test_failErr_RecordsInternalErrors(t *testing.T) {
	r := gin.New()
	var recorded []*gin.Error
	r.Use(func(c *gin.Context) {
		c.Next()
		recorded = c.Errors
	})
	r.GET("/x", func(c *gin.Context) { failErr(c, errors.New("boom")) })
	r.GET("/y", func(c *gin.Context) { failErr(c, services.ErrPostNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != 500 || len(recorded) != 1 {
		t.Fatalf("500 should be recorded: code=%d errors=%d", w.Code, len(recorded))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/y", nil))
	if w.Code != 404 || len(recorded) != 0 {
		t.Fatalf("404 should not be recorded: code=%d errors=%d", w.Code, len(recorded))
	}
}
