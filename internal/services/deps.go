package services

import (
	"context"
	"strings"

	"github.com/saidovdiyorbek/threads/internal/actor"
	"github.com/saidovdiyorbek/threads/internal/remote"
)

// UserDirectory is what the post and comment services need from the user
// service. *remote.Users implements it.
type UserDirectory interface {
	Exists(ctx context.Context, id uint64) (bool, error)
	ShortInfo(ctx context.Context, id uint64) (*remote.UserShortInfo, error)
	IncrementPostCount(ctx context.Context, id uint64) error
	DecrementPostCount(ctx context.Context, id uint64) error
}

// PostDirectory is what the comment service needs from the post service.
// *remote.Posts implements it.
type PostDirectory interface {
	Exists(ctx context.Context, id uint64) (bool, error)
	IncrementCommentCount(ctx context.Context, id uint64) error
	DecrementCommentCount(ctx context.Context, id uint64) error
}

// CommentCleaner trashes the comments of a deleted post. *remote.Comments
// implements it.
type CommentCleaner interface {
	TrashByPost(ctx context.Context, postID uint64) (int64, error)
}

// AttachRegistry checks and releases attachment hashes. *remote.Attaches
// implements it.
type AttachRegistry interface {
	Exists(ctx context.Context, hash string, userID uint64) (bool, error)
	ListExists(ctx context.Context, hashes []string, userID uint64) (bool, error)
	DeleteList(ctx context.Context, hashes []string) error
}

var (
	_ UserDirectory  = (*remote.Users)(nil)
	_ PostDirectory  = (*remote.Posts)(nil)
	_ CommentCleaner = (*remote.Comments)(nil)
	_ AttachRegistry = (*remote.Attaches)(nil)
)

// MaxHashes caps how many attachments one post or comment may link.
const MaxHashes = 20

// caller returns the actor of ctx or ErrUnauthenticated.
func caller(ctx context.Context) (actor.Actor, error) {
	a, ok := actor.From(ctx)
	if !ok {
		return actor.Actor{}, ErrUnauthenticated
	}
	return a, nil
}

// pageBounds applies the default (1, 20) and the cap of 100 items per page,
// and returns the normalized values with the row offset.
func pageBounds(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize, (page - 1) * pageSize
}

// cleanHashes trims hashes, drops blanks and duplicates and keeps the first
// occurrence order.
func cleanHashes(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, h := range in {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// diffHashes returns the hashes of next missing from prev (added) and the
// hashes of prev missing from next (removed).
func diffHashes(prev, next []string) (added, removed []string) {
	in := func(set []string, h string) bool {
		for _, s := range set {
			if s == h {
				return true
			}
		}
		return false
	}
	for _, h := range next {
		if !in(prev, h) {
			added = append(added, h)
		}
	}
	for _, h := range prev {
		if !in(next, h) {
			removed = append(removed, h)
		}
	}
	return added, removed
}
