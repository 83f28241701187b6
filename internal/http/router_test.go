package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/saidovdiyorbek/threads/internal/config"
	"github.com/saidovdiyorbek/threads/internal/repo"
)

func init() { gin.SetMode(gin.TestMode) }

func newTestDB(t *testing.T, service string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s_%s?mode=memory&cache=shared", service, uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db, service); err != nil {
		t.Fatalf("automigrate %s: %v", service, err)
	}
	return db
}

func baseConfig(service string) config.Config {
	return config.Config{
		Service:        service,
		APIBasePath:    "/api/v1",
		MaxBodyBytes:   1 << 20,
		RateRPS:        1000,
		RateBurst:      1000,
		IdempotencyTTL: time.Hour,
		OTEL:           config.OTELConfig{ServiceName: "threads-test"},
	}
}

// swappable lets a server be started before the engine it serves exists, so
// services that call each other can learn each other's URLs.
type swappable struct{ h http.Handler }

func (s *swappable) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.h.ServeHTTP(w, r) }

// system runs the four services and the gateway on httptest servers.
type system struct {
	gateway string
	dbs     map[string]*gorm.DB
}

func startSystem(t *testing.T) *system {
	t.Helper()
	names := []string{config.ServiceUser, config.ServicePost, config.ServiceComment, config.ServiceAttach, config.ServiceGateway}
	slots := map[string]*swappable{}
	urls := map[string]string{}
	for _, n := range names {
		slots[n] = &swappable{h: http.NotFoundHandler()}
		srv := httptest.NewServer(slots[n])
		t.Cleanup(srv.Close)
		urls[n] = srv.URL
	}
	up := config.UpstreamConfig{
		UserURL:    urls[config.ServiceUser],
		PostURL:    urls[config.ServicePost],
		CommentURL: urls[config.ServiceComment],
		AttachURL:  urls[config.ServiceAttach],
		Timeout:    5 * time.Second,
	}
	storage := config.StorageConfig{
		UploadDir:      t.TempDir(),
		PublicURL:      urls[config.ServiceGateway] + "/api/v1/attaches",
		MaxUploadBytes: 8 << 20,
	}

	sys := &system{gateway: urls[config.ServiceGateway], dbs: map[string]*gorm.DB{}}
	for _, n := range names {
		cfg := baseConfig(n)
		cfg.Upstream = up
		cfg.Storage = storage
		r := gin.New()
		if n == config.ServiceGateway {
			if err := RegisterGateway(r, cfg, nil); err != nil {
				t.Fatalf("gateway: %v", err)
			}
		} else {
			db := newTestDB(t, n)
			sys.dbs[n] = db
			if err := RegisterRoutes(r, db, cfg); err != nil {
				t.Fatalf("register %s: %v", n, err)
			}
		}
		slots[n].h = r
	}
	return sys
}

type call struct {
	method string
	path   string
	userID uint64
	body   io.Reader
	ctype  string
	idem   string
}

func (s *system) do(t *testing.T, c call) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(c.method, s.gateway+c.path, c.body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if c.userID != 0 {
		req.Header.Set("X-User-ID", fmt.Sprint(c.userID))
	}
	if c.ctype != "" {
		req.Header.Set("Content-Type", c.ctype)
	} else if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.idem != "" {
		req.Header.Set("Idempotency-Key", c.idem)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", c.method, c.path, err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(res.Body)
	return res, b
}

func jsonBody(v any) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func mustStatus(t *testing.T, res *http.Response, body []byte, want int) {
	t.Helper()
	if res.StatusCode != want {
		t.Fatalf("%s %s = %d; want %d; body=%s", res.Request.Method, res.Request.URL.Path, res.StatusCode, want, body)
	}
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}

type idOnly struct {
	ID uint64 `json:"id"`
}

type profile struct {
	PostCount      int64 `json:"post_count"`
	FollowersCount int64 `json:"followers_count"`
}

type postView struct {
	ID           uint64   `json:"id"`
	LikeCount    int64    `json:"like_count"`
	CommentCount int64    `json:"comment_count"`
	Hashes       []string `json:"hashes"`
}

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *system) createUser(t *testing.T, username string) uint64 {
	t.Helper()
	res, b := s.do(t, call{method: http.MethodPost, path: "/api/v1/users", body: jsonBody(map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	})})
	mustStatus(t, res, b, http.StatusCreated)
	return decode[idOnly](t, b).ID
}

func (s *system) upload(t *testing.T, userID uint64, name, content string) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()

	res, b := s.do(t, call{method: http.MethodPost, path: "/api/v1/attaches/upload", userID: userID, body: &buf, ctype: mw.FormDataContentType()})
	mustStatus(t, res, b, http.StatusCreated)
	out := decode[[]struct {
		Hash string `json:"hash"`
		URL  string `json:"url"`
	}](t, b)
	if len(out) != 1 || out[0].Hash == "" || !strings.HasSuffix(out[0].URL, "/open/"+out[0].Hash) {
		t.Fatalf("unexpected upload result: %s", b)
	}
	return out[0].Hash
}

func TestSystem_PostLifecycleKeepsCountersConsistent(t *testing.T) {
	s := startSystem(t)
	alice := s.createUser(t, "alice")
	bob := s.createUser(t, "bob")
	hash := s.upload(t, alice, "photo.txt", "pixels")

	// Create with an idempotency key, then replay it.
	create := func() (*http.Response, []byte) {
		return s.do(t, call{method: http.MethodPost, path: "/api/v1/posts", userID: alice, idem: "post-1",
			body: jsonBody(map[string]any{"text": "hello threads", "hashes": []string{hash}})})
	}
	res, b := create()
	mustStatus(t, res, b, http.StatusCreated)
	post := decode[postView](t, b)
	if len(post.Hashes) != 1 || post.Hashes[0] != hash {
		t.Fatalf("post hashes = %v", post.Hashes)
	}
	res, b = create()
	mustStatus(t, res, b, http.StatusOK)
	if res.Header.Get("Idempotency-Replayed") != "true" || decode[postView](t, b).ID != post.ID {
		t.Fatalf("expected replay of post %d, got %s", post.ID, b)
	}

	res, b = s.do(t, call{method: http.MethodGet, path: fmt.Sprintf("/api/v1/users/%d/profile", alice)})
	mustStatus(t, res, b, http.StatusOK)
	if p := decode[profile](t, b); p.PostCount != 1 {
		t.Fatalf("post_count after create = %d; want 1", p.PostCount)
	}

	// Bob comments and likes; the post counters follow.
	res, b = s.do(t, call{method: http.MethodPost, path: "/api/v1/comments", userID: bob,
		body: jsonBody(map[string]any{"text": "nice", "post_id": post.ID})})
	mustStatus(t, res, b, http.StatusCreated)
	comment := decode[idOnly](t, b)

	res, b = s.do(t, call{method: http.MethodPost, path: fmt.Sprintf("/api/v1/posts/%d/like", post.ID), userID: bob})
	mustStatus(t, res, b, http.StatusNoContent)
	res, b = s.do(t, call{method: http.MethodPost, path: fmt.Sprintf("/api/v1/posts/%d/like", post.ID), userID: bob})
	mustStatus(t, res, b, http.StatusConflict)
	if e := decode[envelope](t, b); e.Code != 101 {
		t.Fatalf("double like code = %d; want 101", e.Code)
	}

	res, b = s.do(t, call{method: http.MethodGet, path: fmt.Sprintf("/api/v1/posts/%d", post.ID)})
	mustStatus(t, res, b, http.StatusOK)
	got := decode[postView](t, b)
	if got.LikeCount != 1 || got.CommentCount != 1 {
		t.Fatalf("counters = like %d comment %d; want 1 and 1", got.LikeCount, got.CommentCount)
	}

	res, b = s.do(t, call{method: http.MethodGet, path: "/api/v1/posts/search?q=Threads"})
	mustStatus(t, res, b, http.StatusOK)
	if hits := decode[struct {
		Hits []postView `json:"hits"`
	}](t, b).Hits; len(hits) != 1 || hits[0].ID != post.ID {
		t.Fatalf("search hits = %s", b)
	}

	// Someone else cannot delete it.
	res, b = s.do(t, call{method: http.MethodDelete, path: fmt.Sprintf("/api/v1/posts/%d", post.ID), userID: bob})
	mustStatus(t, res, b, http.StatusForbidden)

	// The owner deletes it: comments, files and the owner's counter follow.
	res, b = s.do(t, call{method: http.MethodDelete, path: fmt.Sprintf("/api/v1/posts/%d", post.ID), userID: alice})
	mustStatus(t, res, b, http.StatusNoContent)

	res, b = s.do(t, call{method: http.MethodGet, path: fmt.Sprintf("/api/v1/posts/%d", post.ID)})
	mustStatus(t, res, b, http.StatusNotFound)
	res, b = s.do(t, call{method: http.MethodGet, path: fmt.Sprintf("/api/v1/comments/%d", comment.ID)})
	mustStatus(t, res, b, http.StatusNotFound)
	res, b = s.do(t, call{method: http.MethodGet, path: "/api/v1/attaches/open/" + hash})
	mustStatus(t, res, b, http.StatusNotFound)
	if e := decode[envelope](t, b); e.Code != 101 {
		t.Fatalf("open after delete code = %d; want 101", e.Code)
	}
	res, b = s.do(t, call{method: http.MethodGet, path: fmt.Sprintf("/api/v1/users/%d/profile", alice)})
	mustStatus(t, res, b, http.StatusOK)
	if p := decode[profile](t, b); p.PostCount != 0 {
		t.Fatalf("post_count after delete = %d; want 0", p.PostCount)
	}
}

func TestSystem_FollowAndFiles(t *testing.T) {
	s := startSystem(t)
	alice := s.createUser(t, "alice")
	bob := s.createUser(t, "bob")

	res, b := s.do(t, call{method: http.MethodPost, path: "/api/v1/users/follow", userID: alice, body: jsonBody(map[string]uint64{"follow_id": bob})})
	mustStatus(t, res, b, http.StatusNoContent)
	res, b = s.do(t, call{method: http.MethodPost, path: "/api/v1/users/follow", userID: alice, body: jsonBody(map[string]uint64{"follow_id": alice})})
	mustStatus(t, res, b, http.StatusConflict)

	res, b = s.do(t, call{method: http.MethodGet, path: fmt.Sprintf("/api/v1/users/%d/profile", bob)})
	mustStatus(t, res, b, http.StatusOK)
	if p := decode[profile](t, b); p.FollowersCount != 1 {
		t.Fatalf("followers = %d; want 1", p.FollowersCount)
	}

	hash := s.upload(t, bob, "notes.txt", "plain text")
	res, b = s.do(t, call{method: http.MethodGet, path: "/api/v1/attaches/download/" + hash})
	mustStatus(t, res, b, http.StatusOK)
	if string(b) != "plain text" {
		t.Fatalf("download body = %q", b)
	}
	if cd := res.Header.Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, "notes.txt") {
		t.Fatalf("Content-Disposition = %q", cd)
	}

	// Alice cannot attach Bob's file.
	res, b = s.do(t, call{method: http.MethodPost, path: "/api/v1/posts", userID: alice,
		body: jsonBody(map[string]any{"text": "stolen", "hashes": []string{hash}})})
	mustStatus(t, res, b, http.StatusNotFound)
}

func TestGateway_FallbacksAndInternal(t *testing.T) {
	s := startSystem(t)

	res, b := s.do(t, call{method: http.MethodGet, path: "/internal/api/v1/users/1/exists"})
	mustStatus(t, res, b, http.StatusNotFound)

	res, b = s.do(t, call{method: http.MethodGet, path: "/api/v1/chats"})
	mustStatus(t, res, b, http.StatusNotFound)
	if e := decode[envelope](t, b); e.Code != 404 {
		t.Fatalf("unknown service code = %d", e.Code)
	}

	res, b = s.do(t, call{method: http.MethodGet, path: "/health"})
	mustStatus(t, res, b, http.StatusOK)
	if res.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
}

func TestRegisterRoutes_HealthMetricsFallbacks(t *testing.T) {
	r := gin.New()
	cfg := baseConfig(config.ServiceUser)
	if err := RegisterRoutes(r, newTestDB(t, config.ServiceUser), cfg); err != nil {
		t.Fatalf("register: %v", err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOriginsEchoes(t *testing.T) {
	r := gin.New()
	cfg := baseConfig(config.ServiceUser)
	cfg.CORS.AllowedOrigins = []string{"http://example.com"}
	if err := RegisterRoutes(r, newTestDB(t, config.ServiceUser), cfg); err != nil {
		t.Fatalf("register: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("ACAO = %q", got)
	}
}

func TestRegisterRoutes_RejectsGatewayAndBadStorage(t *testing.T) {
	if err := RegisterRoutes(gin.New(), nil, baseConfig(config.ServiceGateway)); err == nil {
		t.Fatalf("expected error for gateway")
	}
	cfg := baseConfig(config.ServiceAttach)
	if err := RegisterRoutes(gin.New(), newTestDB(t, config.ServiceAttach), cfg); err == nil {
		t.Fatalf("expected error for empty upload dir")
	}
}

func TestLimitBody(t *testing.T) {
	r := gin.New()
	r.Use(limitBody(4))
	r.POST("/x", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("12345")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body = %d", w.Code)
	}
}

func TestGroupWithPrefix(t *testing.T) {
	for prefix, path := range map[string]string{"": "/ping", "/": "/ping", "/api/v1": "/api/v1/ping"} {
		r := gin.New()
		groupWithPrefix(r, prefix).GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusNoContent {
			t.Fatalf("prefix %q: GET %s = %d", prefix, path, w.Code)
		}
	}
}
