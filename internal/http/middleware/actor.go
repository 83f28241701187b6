package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/saidovdiyorbek/threads/internal/actor"
)

// userIDKey is the Gin context key holding the caller's id as a decimal
// string. The rate limiter and the access log read it.
const userIDKey = "userID"

// Actor parses the X-User-ID / X-Username / X-User-Role headers into an
// actor.Actor and stores it on the request context. Requests without a valid
// user id pass through anonymously; the services decide whether an operation
// needs a caller.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		a := actor.FromHeader(c.Request.Header)
		if !a.IsZero() {
			c.Request = c.Request.WithContext(actor.With(c.Request.Context(), a))
			c.Set(userIDKey, strconv.FormatUint(a.ID, 10))
		}
		c.Next()
	}
}

// ActorFrom returns the caller stored by Actor.
func ActorFrom(c *gin.Context) (actor.Actor, bool) {
	return actor.From(c.Request.Context())
}

func userIDOf(c *gin.Context) string {
	return asString(c.Value(userIDKey))
}
