// Package services – PostService
//
// PostService owns posts, their like edges and their attachment links. The
// author's post counter lives in the user service and attachment blobs live
// in the attach service, so create and delete call those services from inside
// the local transaction: a failed remote call rolls the local writes back.
// Remote effects that already landed are not compensated.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/saidovdiyorbek/threads/internal/domain"
	"github.com/saidovdiyorbek/threads/internal/remote"
	"github.com/saidovdiyorbek/threads/internal/repo"
	"github.com/saidovdiyorbek/threads/internal/search"
)

// MaxPostRunes caps the post text.
const MaxPostRunes = 255

// Search bounds.
const (
	DefaultSearchWindow = 1000
	DefaultSearchLimit  = 10
	MaxSearchLimit      = 50
)

// CreatePostInput is the payload of PostService.Create.
type CreatePostInput struct {
	Text     string
	ParentID *uint64
	Hashes   []string
}

// UpdatePostInput carries the optional fields of PostService.Update. A nil
// Hashes leaves the links alone; a non-nil one replaces them.
type UpdatePostInput struct {
	Text   *string
	Hashes *[]string
}

// PostDetail is a post with the hashes of its active attachment links.
type PostDetail struct {
	domain.Post
	Hashes []string `json:"hashes"`
}

// PostHit is a search result: a post with its similarity score.
type PostHit struct {
	PostDetail
	Score float64 `json:"score"`
}

// UserPosts is a user's short info with their active posts.
type UserPosts struct {
	User  remote.UserShortInfo `json:"user"`
	Posts []PostDetail         `json:"posts"`
}

// PostService implements the post service operations.
type PostService struct {
	DB       *gorm.DB
	Users    UserDirectory
	Attaches AttachRegistry
	Comments CommentCleaner

	// IdempotencyTTL bounds how long an Idempotency-Key replays.
	IdempotencyTTL time.Duration

	// SearchWindow is how many of the newest posts a search looks at.
	SearchWindow int
	Ranker       *search.Ranker
}

// NewPostService constructs a PostService.
func NewPostService(db *gorm.DB, users UserDirectory, attaches AttachRegistry, comments CommentCleaner) *PostService {
	return &PostService{
		DB:             db,
		Users:          users,
		Attaches:       attaches,
		Comments:       comments,
		IdempotencyTTL: DefaultIdempotencyTTL,
		SearchWindow:   DefaultSearchWindow,
		Ranker:         search.NewRanker(),
	}
}

func (s *PostService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/PostService").Start(ctx, name, trace.WithAttributes(attrs...))
}

// Create publishes a post for the caller. When idemKey was already used by
// the caller, the earlier post is returned with replayed set.
func (s *PostService) Create(ctx context.Context, in CreatePostInput, idemKey string) (post *PostDetail, replayed bool, err error) {
	ctx, span := s.span(ctx, "Create")
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return nil, false, err
	}
	text := strings.TrimSpace(in.Text)
	hashes := cleanHashes(in.Hashes)
	if err := validatePost(text, hashes); err != nil {
		return nil, false, err
	}

	if id, err := priorResult(ctx, s.DB, who.ID, ScopePosts, idemKey); err != nil {
		return nil, false, err
	} else if id != 0 {
		p, err := s.Get(ctx, id)
		return p, err == nil, err
	}

	ok, err := s.Users.Exists(ctx, who.ID)
	if err != nil {
		return nil, false, fmt.Errorf("check author: %w", err)
	}
	if !ok {
		return nil, false, ErrUnauthenticated
	}
	if in.ParentID != nil {
		parent, err := repo.Posts.FindActiveByID(ctx, s.DB, *in.ParentID)
		if err != nil {
			return nil, false, err
		}
		if parent == nil {
			return nil, false, ErrPostNotFound
		}
	}
	if len(hashes) > 0 {
		ok, err := s.Attaches.ListExists(ctx, hashes, who.ID)
		if err != nil {
			return nil, false, fmt.Errorf("check attaches: %w", err)
		}
		if !ok {
			return nil, false, ErrPostAttachMissing
		}
	}

	p := &domain.Post{Text: text, UserID: who.ID, ParentID: in.ParentID}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreatePost(ctx, tx, p); err != nil {
			return err
		}
		if err := repo.CreatePostAttaches(ctx, tx, p.ID, hashes); err != nil {
			return err
		}
		if err := remember(ctx, tx, who.ID, ScopePosts, idemKey, p.ID, s.IdempotencyTTL); err != nil {
			return err
		}
		if err := s.Users.IncrementPostCount(ctx, who.ID); err != nil {
			return fmt.Errorf("increment post count: %w", err)
		}
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request with the same key won.
		if id, perr := priorResult(ctx, s.DB, who.ID, ScopePosts, idemKey); perr == nil && id != 0 {
			p, err := s.Get(ctx, id)
			return p, err == nil, err
		}
	}
	if err != nil {
		return nil, false, err
	}
	span.SetAttributes(attribute.Int64("post.id", int64(p.ID)))
	return &PostDetail{Post: *p, Hashes: nonNil(hashes)}, false, nil
}

// Get returns an active post with its attachment hashes.
func (s *PostService) Get(ctx context.Context, id uint64) (*PostDetail, error) {
	ctx, span := s.span(ctx, "Get", attribute.Int64("post.id", int64(id)))
	defer span.End()

	p, err := s.active(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	hashes, err := repo.PostHashes(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	return &PostDetail{Post: *p, Hashes: nonNil(hashes)}, nil
}

// ListPage returns one page of active posts and the active total.
func (s *PostService) ListPage(ctx context.Context, page, pageSize int) ([]PostDetail, int64, error) {
	ctx, span := s.span(ctx, "ListPage", attribute.Int("page", page), attribute.Int("page_size", pageSize))
	defer span.End()

	_, limit, offset := pageBounds(page, pageSize)
	posts, total, err := repo.Posts.ListActivePage(ctx, s.DB, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out, err := s.details(ctx, posts)
	return out, total, err
}

// Update rewrites the text and/or replaces the attachment links of a post.
// Links that disappear are trashed and their files released; new hashes must
// all belong to the post's author.
func (s *PostService) Update(ctx context.Context, id uint64, in UpdatePostInput) (*PostDetail, error) {
	ctx, span := s.span(ctx, "Update", attribute.Int64("post.id", int64(id)))
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.active(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if !who.Owns(p.UserID) {
		return nil, ErrPostNotYours
	}

	var text *string
	if in.Text != nil {
		t := strings.TrimSpace(*in.Text)
		if utf8.RuneCountInString(t) > MaxPostRunes {
			return nil, invalid("text must be at most %d characters", MaxPostRunes)
		}
		text = &t
	}

	var added, removed []string
	if in.Hashes != nil {
		next := cleanHashes(*in.Hashes)
		if len(next) > MaxHashes {
			return nil, invalid("at most %d attachments are allowed", MaxHashes)
		}
		prev, err := repo.PostHashes(ctx, s.DB, id)
		if err != nil {
			return nil, err
		}
		added, removed = diffHashes(prev, next)
		if len(added) > 0 {
			ok, err := s.Attaches.ListExists(ctx, added, p.UserID)
			if err != nil {
				return nil, fmt.Errorf("check attaches: %w", err)
			}
			if !ok {
				return nil, ErrPostAttachMissing
			}
		}
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch {
		case text != nil && *text != p.Text:
			if err := repo.UpdatePostText(ctx, tx, p, *text); err != nil {
				return err
			}
		case len(added) > 0 || len(removed) > 0:
			if err := repo.TouchPost(ctx, tx, p); err != nil {
				return err
			}
		}
		if len(removed) > 0 {
			if _, err := repo.TrashPostAttaches(ctx, tx, id, removed...); err != nil {
				return err
			}
		}
		if err := repo.CreatePostAttaches(ctx, tx, id, added); err != nil {
			return err
		}
		if len(removed) > 0 {
			if err := s.Attaches.DeleteList(ctx, removed); err != nil {
				return fmt.Errorf("release attaches: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete trashes a post and cascades: its attachment links are trashed, the
// author's post counter is decremented, the files are released and the
// post's comments are trashed. Deleting twice reports ErrPostNotFound, and of
// two overlapping deletes only the one that flips the row runs the cascade.
func (s *PostService) Delete(ctx context.Context, id uint64) error {
	ctx, span := s.span(ctx, "Delete", attribute.Int64("post.id", int64(id)))
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return err
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.active(ctx, tx, id)
		if err != nil {
			return err
		}
		if !who.Owns(p.UserID) {
			return ErrPostNotYours
		}
		hashes, err := repo.PostHashes(ctx, tx, id)
		if err != nil {
			return err
		}
		trashed, err := repo.Posts.TrashActive(ctx, tx, id)
		if err != nil {
			return err
		}
		if !trashed {
			return ErrPostNotFound
		}
		if _, err := repo.TrashPostAttaches(ctx, tx, id); err != nil {
			return err
		}
		if err := s.Users.DecrementPostCount(ctx, p.UserID); err != nil {
			return fmt.Errorf("decrement post count: %w", err)
		}
		if len(hashes) > 0 {
			if err := s.Attaches.DeleteList(ctx, hashes); err != nil {
				return fmt.Errorf("release attaches: %w", err)
			}
		}
		if _, err := s.Comments.TrashByPost(ctx, id); err != nil {
			return fmt.Errorf("trash comments: %w", err)
		}
		return nil
	})
}

// ByUser returns the short info of userID with their active posts, newest
// first.
func (s *PostService) ByUser(ctx context.Context, userID uint64) (*UserPosts, error) {
	ctx, span := s.span(ctx, "ByUser", attribute.Int64("user.id", int64(userID)))
	defer span.End()

	info, err := s.Users.ShortInfo(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user short info: %w", err)
	}
	posts, err := repo.ListPostsByUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out, err := s.details(ctx, posts)
	if err != nil {
		return nil, err
	}
	return &UserPosts{User: *info, Posts: out}, nil
}

// Liked returns the active posts userID currently likes.
func (s *PostService) Liked(ctx context.Context, userID uint64) ([]PostDetail, error) {
	ctx, span := s.span(ctx, "Liked", attribute.Int64("user.id", int64(userID)))
	defer span.End()

	posts, err := repo.ListLikedPosts(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, posts)
}

// Like adds the caller's like to a post. Liking one's own post is refused.
func (s *PostService) Like(ctx context.Context, postID uint64) error {
	ctx, span := s.span(ctx, "Like", attribute.Int64("post.id", int64(postID)))
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return err
	}
	if _, err := s.active(ctx, s.DB, postID); err != nil {
		return err
	}
	ok, err := s.Users.Exists(ctx, who.ID)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !ok {
		return ErrUnauthenticated
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.active(ctx, tx, postID)
		if err != nil {
			return err
		}
		if p.UserID == who.ID {
			return ErrPostSelfLike
		}
		edge, err := repo.FindPostLike(ctx, tx, who.ID, postID)
		if err != nil {
			return err
		}
		switch {
		case edge == nil:
			if _, err := repo.CreatePostLike(ctx, tx, who.ID, postID); err != nil {
				if repo.IsUniqueViolation(err) {
					return ErrPostAlreadyLiked
				}
				return err
			}
		case edge.Deleted:
			revived, err := repo.Revive(ctx, tx, edge)
			if err != nil {
				return err
			}
			if !revived {
				return ErrPostAlreadyLiked
			}
		default:
			return ErrPostAlreadyLiked
		}
		return repo.Increment(ctx, tx, repo.PostLikes, postID)
	})
}

// Unlike removes the caller's active like from a post.
func (s *PostService) Unlike(ctx context.Context, postID uint64) error {
	ctx, span := s.span(ctx, "Unlike", attribute.Int64("post.id", int64(postID)))
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.active(ctx, tx, postID); err != nil {
			return err
		}
		edge, err := repo.FindPostLike(ctx, tx, who.ID, postID)
		if err != nil {
			return err
		}
		if edge == nil || edge.Deleted {
			return ErrPostNotLiked
		}
		trashed, err := repo.PostLikeEdges.TrashActive(ctx, tx, edge.ID)
		if err != nil {
			return err
		}
		if !trashed {
			return ErrPostNotLiked
		}
		return repo.Decrement(ctx, tx, repo.PostLikes, postID)
	})
}

// Search ranks the newest active posts against q by word overlap and returns
// up to limit of them, best first.
func (s *PostService) Search(ctx context.Context, q string, limit int) ([]PostHit, error) {
	ctx, span := s.span(ctx, "Search", attribute.Int("limit", limit))
	defer span.End()

	q = strings.TrimSpace(q)
	if q == "" {
		return nil, invalid("q is required")
	}
	switch {
	case limit <= 0:
		limit = DefaultSearchLimit
	case limit > MaxSearchLimit:
		limit = MaxSearchLimit
	}

	posts, err := repo.ListRecentPosts(ctx, s.DB, s.SearchWindow)
	if err != nil {
		return nil, err
	}
	docs := make([]search.Doc, len(posts))
	byID := make(map[uint64]domain.Post, len(posts))
	for i, p := range posts {
		docs[i] = search.Doc{ID: p.ID, Text: p.Text}
		byID[p.ID] = p
	}
	hits := s.Ranker.TopK(q, docs, limit)
	span.SetAttributes(attribute.Int("hits", len(hits)))

	matched := make([]domain.Post, len(hits))
	for i, h := range hits {
		matched[i] = byID[h.ID]
	}
	details, err := s.details(ctx, matched)
	if err != nil {
		return nil, err
	}
	out := make([]PostHit, len(hits))
	for i, h := range hits {
		out[i] = PostHit{PostDetail: details[i], Score: h.Score}
	}
	return out, nil
}

// Exists answers the internal existence probe with a plain boolean.
func (s *PostService) Exists(ctx context.Context, id uint64) (bool, error) {
	p, err := repo.Posts.FindActiveByID(ctx, s.DB, id)
	return p != nil, err
}

// IncrementCommentCount adds one to the comment counter of an active post.
func (s *PostService) IncrementCommentCount(ctx context.Context, id uint64) error {
	if _, err := s.active(ctx, s.DB, id); err != nil {
		return err
	}
	return repo.Increment(ctx, s.DB, repo.PostComments, id)
}

// DecrementCommentCount subtracts one from the comment counter of an active
// post.
func (s *PostService) DecrementCommentCount(ctx context.Context, id uint64) error {
	if _, err := s.active(ctx, s.DB, id); err != nil {
		return err
	}
	return repo.Decrement(ctx, s.DB, repo.PostComments, id)
}

func (s *PostService) active(ctx context.Context, db *gorm.DB, id uint64) (*domain.Post, error) {
	p, err := repo.Posts.FindActiveByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPostNotFound
	}
	return p, nil
}

func (s *PostService) details(ctx context.Context, posts []domain.Post) ([]PostDetail, error) {
	ids := make([]uint64, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	byPost, err := repo.PostHashesByPost(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	out := make([]PostDetail, len(posts))
	for i := range posts {
		out[i] = PostDetail{Post: posts[i], Hashes: nonNil(byPost[posts[i].ID])}
	}
	return out, nil
}

func validatePost(text string, hashes []string) error {
	if text == "" && len(hashes) == 0 {
		return invalid("a post needs text or at least one attachment")
	}
	if utf8.RuneCountInString(text) > MaxPostRunes {
		return invalid("text must be at most %d characters", MaxPostRunes)
	}
	if len(hashes) > MaxHashes {
		return invalid("at most %d attachments are allowed", MaxHashes)
	}
	return nil
}

// nonNil turns a nil slice into an empty one so it encodes as [].
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
