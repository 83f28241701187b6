package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/saidovdiyorbek/threads/internal/repo"
)

// Idempotency scopes, one per collection that accepts Idempotency-Key.
const (
	ScopePosts    = "posts"
	ScopeComments = "comments"
)

// DefaultIdempotencyTTL is used when a service is built without a TTL.
const DefaultIdempotencyTTL = 24 * time.Hour

// priorResult returns the id of the resource created earlier under
// (userID, scope, key), or 0 when there is none or key is blank.
func priorResult(ctx context.Context, db *gorm.DB, userID uint64, scope, key string) (uint64, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, nil
	}
	rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.ResourceID, nil
}

// remember records resourceID under key inside tx. A concurrent request that
// stored the same key first makes this return repo.ErrDuplicate, which rolls
// the caller's transaction back.
func remember(ctx context.Context, tx *gorm.DB, userID uint64, scope, key string, resourceID uint64, ttl time.Duration) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	_, err := repo.CreateIdempotency(ctx, tx, userID, scope, key, resourceID, http.StatusCreated, ttl)
	return err
}
