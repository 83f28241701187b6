// Package actor carries the identity of the caller through a request.
//
// The gateway (or an upstream auth layer) forwards the caller as plain
// headers. The HTTP layer parses them once into an Actor and stores it in the
// request context. From there it flows explicitly into services, into the GORM
// audit hooks (created_by / updated_by) and into outbound calls to sibling
// services.
package actor

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// Header names used to transport the actor between services.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUsername = "X-Username"
	HeaderRole     = "X-User-Role"
)

// Role values understood by the services.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// System is the attribution used when no caller is known (migrations,
// background maintenance, tests).
const System = "system"

// Actor is the caller on whose behalf a request runs.
type Actor struct {
	ID       uint64
	Username string
	Role     string
}

// IsZero reports whether no identity is present.
func (a Actor) IsZero() bool { return a.ID == 0 }

// IsAdmin reports whether the actor may act on resources it does not own.
func (a Actor) IsAdmin() bool { return strings.EqualFold(a.Role, RoleAdmin) }

// Owns reports whether the actor is the owner identified by userID or an admin.
func (a Actor) Owns(userID uint64) bool {
	return !a.IsZero() && (a.ID == userID || a.IsAdmin())
}

// Attribution returns the string stored in audit columns.
func (a Actor) Attribution() string {
	if a.IsZero() {
		return System
	}
	if a.Username != "" {
		return a.Username
	}
	return strconv.FormatUint(a.ID, 10)
}

type ctxKey struct{}

// With returns a copy of ctx carrying a.
func With(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// From returns the actor stored in ctx and whether one was present.
func From(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok && !a.IsZero()
}

// FromHeader parses the actor headers. A missing or malformed user id yields
// the zero Actor.
func FromHeader(h http.Header) Actor {
	id, err := strconv.ParseUint(strings.TrimSpace(h.Get(HeaderUserID)), 10, 64)
	if err != nil {
		return Actor{}
	}
	role := strings.ToUpper(strings.TrimSpace(h.Get(HeaderRole)))
	if role == "" {
		role = RoleUser
	}
	return Actor{
		ID:       id,
		Username: strings.TrimSpace(h.Get(HeaderUsername)),
		Role:     role,
	}
}

// Inject writes a onto outbound request headers.
func Inject(h http.Header, a Actor) {
	if a.IsZero() {
		return
	}
	h.Set(HeaderUserID, strconv.FormatUint(a.ID, 10))
	if a.Username != "" {
		h.Set(HeaderUsername, a.Username)
	}
	if a.Role != "" {
		h.Set(HeaderRole, a.Role)
	}
}
