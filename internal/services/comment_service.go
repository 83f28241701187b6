// Package services – CommentService
//
// CommentService owns comments, replies, their like edges and attachment
// links. The post's comment counter lives in the post service and is adjusted
// remotely from inside the local transaction; the parent's reply counter is
// local.
//
// Deleting a comment trashes its direct replies only. Trashed replies do not
// decrement the post's comment counter, which therefore moves by exactly one
// per deleted comment.
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
)

// MaxCommentRunes caps the comment text.
const MaxCommentRunes = 1000

// CreateCommentInput is the payload of CommentService.Create.
type CreateCommentInput struct {
	Text     string
	PostID   uint64
	ParentID *uint64
	Hashes   []string
}

// CommentDetail is a comment with the hashes of its active attachment links.
type CommentDetail struct {
	domain.Comment
	Hashes []string `json:"hashes"`
}

// UserComments is a user's short info with their active comments.
type UserComments struct {
	User     remote.UserShortInfo `json:"user"`
	Comments []CommentDetail      `json:"comments"`
}

// PostComments lists the active comments of a post, replies included.
type PostComments struct {
	PostID   uint64          `json:"post_id"`
	Comments []CommentDetail `json:"comments"`
}

// Replies lists the active direct replies of a comment.
type Replies struct {
	ParentID uint64          `json:"parent_id"`
	Text     string          `json:"text"`
	Replies  []CommentDetail `json:"replies"`
}

// CommentService implements the comment service operations.
type CommentService struct {
	DB       *gorm.DB
	Users    UserDirectory
	Posts    PostDirectory
	Attaches AttachRegistry

	// IdempotencyTTL bounds how long an Idempotency-Key replays.
	IdempotencyTTL time.Duration
}

// NewCommentService constructs a CommentService.
func NewCommentService(db *gorm.DB, users UserDirectory, posts PostDirectory, attaches AttachRegistry) *CommentService {
	return &CommentService{
		DB:             db,
		Users:          users,
		Posts:          posts,
		Attaches:       attaches,
		IdempotencyTTL: DefaultIdempotencyTTL,
	}
}

func (s *CommentService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/CommentService").Start(ctx, name, trace.WithAttributes(attrs...))
}

// Create writes a comment (or a reply when ParentID is set) for the caller.
// Hashes are verified one by one; a single missing hash aborts the whole
// request and nothing is attached.
func (s *CommentService) Create(ctx context.Context, in CreateCommentInput, idemKey string) (comment *CommentDetail, replayed bool, err error) {
	ctx, span := s.span(ctx, "Create", attribute.Int64("post.id", int64(in.PostID)))
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return nil, false, err
	}
	text := strings.TrimSpace(in.Text)
	if err := validateCommentText(text); err != nil {
		return nil, false, err
	}
	if in.PostID == 0 {
		return nil, false, invalid("post_id is required")
	}
	hashes := cleanHashes(in.Hashes)
	if len(hashes) > MaxHashes {
		return nil, false, invalid("at most %d attachments are allowed", MaxHashes)
	}

	if id, err := priorResult(ctx, s.DB, who.ID, ScopeComments, idemKey); err != nil {
		return nil, false, err
	} else if id != 0 {
		c, err := s.Get(ctx, id)
		return c, err == nil, err
	}

	ok, err := s.Posts.Exists(ctx, in.PostID)
	if err != nil {
		return nil, false, fmt.Errorf("check post: %w", err)
	}
	if !ok {
		return nil, false, ErrCommentPostNotFound
	}
	author, err := s.Users.ShortInfo(ctx, who.ID)
	if err != nil {
		return nil, false, fmt.Errorf("author short info: %w", err)
	}
	if in.ParentID != nil {
		parent, err := repo.Comments.FindActiveByID(ctx, s.DB, *in.ParentID)
		if err != nil {
			return nil, false, err
		}
		if parent == nil {
			return nil, false, ErrCommentNotFound
		}
		if parent.PostID != in.PostID {
			return nil, false, invalid("parent comment belongs to another post")
		}
	}
	for _, h := range hashes {
		ok, err := s.Attaches.Exists(ctx, h, who.ID)
		if err != nil {
			return nil, false, fmt.Errorf("check attach: %w", err)
		}
		if !ok {
			return nil, false, ErrCommentAttachMissing
		}
	}

	c := &domain.Comment{
		Text:     text,
		PostID:   in.PostID,
		UserID:   who.ID,
		Username: author.Username,
		ParentID: in.ParentID,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateComment(ctx, tx, c); err != nil {
			return err
		}
		if err := repo.CreateCommentAttaches(ctx, tx, c.ID, hashes); err != nil {
			return err
		}
		if err := remember(ctx, tx, who.ID, ScopeComments, idemKey, c.ID, s.IdempotencyTTL); err != nil {
			return err
		}
		if c.ParentID != nil {
			if err := repo.Increment(ctx, tx, repo.CommentReplies, *c.ParentID); err != nil {
				return err
			}
		}
		if err := s.Posts.IncrementCommentCount(ctx, c.PostID); err != nil {
			return fmt.Errorf("increment comment count: %w", err)
		}
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) {
		if id, perr := priorResult(ctx, s.DB, who.ID, ScopeComments, idemKey); perr == nil && id != 0 {
			c, err := s.Get(ctx, id)
			return c, err == nil, err
		}
	}
	if err != nil {
		return nil, false, err
	}
	span.SetAttributes(attribute.Int64("comment.id", int64(c.ID)))
	return &CommentDetail{Comment: *c, Hashes: nonNil(hashes)}, false, nil
}

// Get returns an active comment with its attachment hashes.
func (s *CommentService) Get(ctx context.Context, id uint64) (*CommentDetail, error) {
	ctx, span := s.span(ctx, "Get", attribute.Int64("comment.id", int64(id)))
	defer span.End()

	c, err := s.active(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	hashes, err := repo.CommentHashes(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	return &CommentDetail{Comment: *c, Hashes: nonNil(hashes)}, nil
}

// ListPage returns one page of active comments and the active total.
func (s *CommentService) ListPage(ctx context.Context, page, pageSize int) ([]CommentDetail, int64, error) {
	ctx, span := s.span(ctx, "ListPage", attribute.Int("page", page), attribute.Int("page_size", pageSize))
	defer span.End()

	_, limit, offset := pageBounds(page, pageSize)
	comments, total, err := repo.Comments.ListActivePage(ctx, s.DB, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out, err := s.details(ctx, comments)
	return out, total, err
}

// Update rewrites the text of a comment. Only the author may do so.
func (s *CommentService) Update(ctx context.Context, id uint64, text string) (*CommentDetail, error) {
	ctx, span := s.span(ctx, "Update", attribute.Int64("comment.id", int64(id)))
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if err := validateCommentText(text); err != nil {
		return nil, err
	}
	c, err := s.active(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != who.ID {
		return nil, ErrCommentNotYours
	}
	if c.Text != text {
		if err := repo.UpdateCommentText(ctx, s.DB, c, text); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

// Delete trashes a comment and cascades: direct replies are trashed, the
// parent's reply counter and the post's comment counter drop by one, and the
// attachment links are trashed and their files released. Deleting twice
// reports ErrCommentNotFound.
func (s *CommentService) Delete(ctx context.Context, id uint64) error {
	ctx, span := s.span(ctx, "Delete", attribute.Int64("comment.id", int64(id)))
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return err
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.active(ctx, tx, id)
		if err != nil {
			return err
		}
		if !who.Owns(c.UserID) {
			return ErrCommentNotYours
		}
		hashes, err := repo.CommentHashes(ctx, tx, id)
		if err != nil {
			return err
		}
		trashed, err := repo.Comments.TrashActive(ctx, tx, id)
		if err != nil {
			return err
		}
		if !trashed {
			return ErrCommentNotFound
		}
		if _, err := repo.TrashReplies(ctx, tx, id); err != nil {
			return err
		}
		if c.ParentID != nil {
			if err := repo.Decrement(ctx, tx, repo.CommentReplies, *c.ParentID); err != nil {
				return err
			}
		}
		if _, err := repo.TrashCommentAttaches(ctx, tx, id); err != nil {
			return err
		}
		if err := s.Posts.DecrementCommentCount(ctx, c.PostID); err != nil {
			return fmt.Errorf("decrement comment count: %w", err)
		}
		if len(hashes) > 0 {
			if err := s.Attaches.DeleteList(ctx, hashes); err != nil {
				return fmt.Errorf("release attaches: %w", err)
			}
		}
		return nil
	})
}

// ByUser returns the short info of userID with their active comments.
func (s *CommentService) ByUser(ctx context.Context, userID uint64) (*UserComments, error) {
	ctx, span := s.span(ctx, "ByUser", attribute.Int64("user.id", int64(userID)))
	defer span.End()

	info, err := s.Users.ShortInfo(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("user short info: %w", err)
	}
	comments, err := repo.ListCommentsByUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out, err := s.details(ctx, comments)
	if err != nil {
		return nil, err
	}
	return &UserComments{User: *info, Comments: out}, nil
}

// ByPost returns the active comments of an active post.
func (s *CommentService) ByPost(ctx context.Context, postID uint64) (*PostComments, error) {
	ctx, span := s.span(ctx, "ByPost", attribute.Int64("post.id", int64(postID)))
	defer span.End()

	ok, err := s.Posts.Exists(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("check post: %w", err)
	}
	if !ok {
		return nil, ErrCommentPostNotFound
	}
	comments, err := repo.ListCommentsByPost(ctx, s.DB, postID)
	if err != nil {
		return nil, err
	}
	out, err := s.details(ctx, comments)
	if err != nil {
		return nil, err
	}
	return &PostComments{PostID: postID, Comments: out}, nil
}

// RepliesOf returns the active direct replies of an active comment.
func (s *CommentService) RepliesOf(ctx context.Context, parentID uint64) (*Replies, error) {
	ctx, span := s.span(ctx, "RepliesOf", attribute.Int64("comment.id", int64(parentID)))
	defer span.End()

	parent, err := s.active(ctx, s.DB, parentID)
	if err != nil {
		return nil, err
	}
	replies, err := repo.ListReplies(ctx, s.DB, parentID)
	if err != nil {
		return nil, err
	}
	out, err := s.details(ctx, replies)
	if err != nil {
		return nil, err
	}
	return &Replies{ParentID: parent.ID, Text: parent.Text, Replies: out}, nil
}

// Like adds the caller's like to a comment. Liking one's own comment is
// refused.
func (s *CommentService) Like(ctx context.Context, commentID uint64) error {
	ctx, span := s.span(ctx, "Like", attribute.Int64("comment.id", int64(commentID)))
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return err
	}
	if _, err := s.active(ctx, s.DB, commentID); err != nil {
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
		c, err := s.active(ctx, tx, commentID)
		if err != nil {
			return err
		}
		if c.UserID == who.ID {
			return ErrCommentSelfLike
		}
		edge, err := repo.FindCommentLike(ctx, tx, who.ID, commentID)
		if err != nil {
			return err
		}
		switch {
		case edge == nil:
			if _, err := repo.CreateCommentLike(ctx, tx, who.ID, commentID); err != nil {
				if repo.IsUniqueViolation(err) {
					return ErrCommentAlreadyLiked
				}
				return err
			}
		case edge.Deleted:
			revived, err := repo.Revive(ctx, tx, edge)
			if err != nil {
				return err
			}
			if !revived {
				return ErrCommentAlreadyLiked
			}
		default:
			return ErrCommentAlreadyLiked
		}
		return repo.Increment(ctx, tx, repo.CommentLikes, commentID)
	})
}

// Unlike removes the caller's active like from a comment.
func (s *CommentService) Unlike(ctx context.Context, commentID uint64) error {
	ctx, span := s.span(ctx, "Unlike", attribute.Int64("comment.id", int64(commentID)))
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.active(ctx, tx, commentID); err != nil {
			return err
		}
		edge, err := repo.FindCommentLike(ctx, tx, who.ID, commentID)
		if err != nil {
			return err
		}
		if edge == nil || edge.Deleted {
			return ErrCommentNotLiked
		}
		trashed, err := repo.CommentLikeEdges.TrashActive(ctx, tx, edge.ID)
		if err != nil {
			return err
		}
		if !trashed {
			return ErrCommentNotLiked
		}
		return repo.Decrement(ctx, tx, repo.CommentLikes, commentID)
	})
}

// TrashByPost trashes every active comment of postID. It backs the internal
// endpoint the post service calls when a post is deleted.
func (s *CommentService) TrashByPost(ctx context.Context, postID uint64) (int64, error) {
	ctx, span := s.span(ctx, "TrashByPost", attribute.Int64("post.id", int64(postID)))
	defer span.End()

	return repo.TrashCommentsByPost(ctx, s.DB, postID)
}

func (s *CommentService) active(ctx context.Context, db *gorm.DB, id uint64) (*domain.Comment, error) {
	c, err := repo.Comments.FindActiveByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCommentNotFound
	}
	return c, nil
}

func (s *CommentService) details(ctx context.Context, comments []domain.Comment) ([]CommentDetail, error) {
	ids := make([]uint64, len(comments))
	for i := range comments {
		ids[i] = comments[i].ID
	}
	byComment, err := repo.CommentHashesByComment(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	out := make([]CommentDetail, len(comments))
	for i := range comments {
		out[i] = CommentDetail{Comment: comments[i], Hashes: nonNil(byComment[comments[i].ID])}
	}
	return out, nil
}

func validateCommentText(text string) error {
	if text == "" {
		return invalid("text is required")
	}
	if utf8.RuneCountInString(text) > MaxCommentRunes {
		return invalid("text must be at most %d characters", MaxCommentRunes)
	}
	return nil
}
