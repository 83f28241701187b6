package actor

import (
	"context"
	"net/http"
	"testing"
)

func TestFromHeader_ParsesAndDefaultsRole(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderUserID, " 42 ")
	h.Set(HeaderUsername, "alice")

	a := FromHeader(h)
	if a.ID != 42 || a.Username != "alice" || a.Role != RoleUser {
		t.Fatalf("unexpected actor: %+v", a)
	}
}

func TestFromHeader_InvalidID(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderUserID, "abc")
	if a := FromHeader(h); !a.IsZero() {
		t.Fatalf("want zero actor, got %+v", a)
	}
}

func TestWithAndFrom(t *testing.T) {
	if _, ok := From(context.Background()); ok {
		t.Fatalf("empty context must not carry an actor")
	}
	ctx := With(context.Background(), Actor{ID: 7, Role: RoleAdmin})
	a, ok := From(ctx)
	if !ok || a.ID != 7 || !a.IsAdmin() {
		t.Fatalf("unexpected actor: %+v ok=%v", a, ok)
	}
}

func TestOwnsAndAttribution(t *testing.T) {
	u := Actor{ID: 1, Role: RoleUser}
	if !u.Owns(1) || u.Owns(2) {
		t.Fatalf("owner check failed for %+v", u)
	}
	admin := Actor{ID: 9, Role: RoleAdmin}
	if !admin.Owns(2) {
		t.Fatalf("admin must own everything")
	}
	if (Actor{}).Owns(0) {
		t.Fatalf("zero actor must not own anything")
	}

	if got := (Actor{}).Attribution(); got != System {
		t.Fatalf("zero attribution = %q", got)
	}
	if got := (Actor{ID: 5}).Attribution(); got != "5" {
		t.Fatalf("id attribution = %q", got)
	}
	if got := (Actor{ID: 5, Username: "bob"}).Attribution(); got != "bob" {
		t.Fatalf("username attribution = %q", got)
	}
}

func TestInject(t *testing.T) {
	h := http.Header{}
	Inject(h, Actor{})
	if len(h) != 0 {
		t.Fatalf("zero actor must not set headers: %v", h)
	}
	Inject(h, Actor{ID: 3, Username: "c", Role: RoleUser})
	if h.Get(HeaderUserID) != "3" || h.Get(HeaderUsername) != "c" || h.Get(HeaderRole) != RoleUser {
		t.Fatalf("unexpected headers: %v", h)
	}
}
