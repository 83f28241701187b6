package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/saidovdiyorbek/threads/internal/actor"
)

func TestActor_ParsesHeadersOntoContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Actor())

	var got actor.Actor
	var present bool
	var uid string
	r.GET("/me", func(c *gin.Context) {
		got, present = ActorFrom(c)
		uid = userIDOf(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(actor.HeaderUserID, "42")
	req.Header.Set(actor.HeaderUsername, "alice")
	req.Header.Set(actor.HeaderRole, "admin")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if !present || got.ID != 42 || got.Username != "alice" || !got.IsAdmin() {
		t.Fatalf("unexpected actor %+v (present=%v)", got, present)
	}
	if uid != "42" {
		t.Fatalf("userID = %q", uid)
	}
}

func TestActor_AnonymousOrMalformed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Actor())

	var present bool
	var uid string
	r.GET("/me", func(c *gin.Context) {
		_, present = ActorFrom(c)
		uid = userIDOf(c)
		c.Status(http.StatusNoContent)
	})

	for _, header := range []string{"", "abc", "-1", "0"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set(actor.HeaderUserID, header)
		}
		r.ServeHTTP(httptest.NewRecorder(), req)
		if present || uid != "" {
			t.Fatalf("header %q: expected anonymous request, got present=%v uid=%q", header, present, uid)
		}
	}
}
