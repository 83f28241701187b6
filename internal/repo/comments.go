// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the comment, comment-like and
// comment-attachment queries owned by the comment service.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/saidovdiyorbek/threads/internal/domain"
)

// Comments is the soft-delete repository for domain.Comment.
var Comments Base[domain.Comment]

// CommentLikeEdges is the soft-delete repository for domain.CommentLike.
var CommentLikeEdges Base[domain.CommentLike]

// CreateComment inserts c.
func CreateComment(ctx context.Context, db *gorm.DB, c *domain.Comment) error {
	return db.WithContext(ctx).Create(c).Error
}

// UpdateCommentText rewrites the text of c.
func UpdateCommentText(ctx context.Context, db *gorm.DB, c *domain.Comment, text string) error {
	if err := db.WithContext(ctx).Model(c).Update("text", text).Error; err != nil {
		return err
	}
	c.Text = text
	return nil
}

// ListCommentsByUser returns the active comments written by userID.
func ListCommentsByUser(ctx context.Context, db *gorm.DB, userID uint64) ([]domain.Comment, error) {
	return listComments(ctx, db, "user_id = ?", userID)
}

// ListCommentsByPost returns the active comments on postID, replies included.
func ListCommentsByPost(ctx context.Context, db *gorm.DB, postID uint64) ([]domain.Comment, error) {
	return listComments(ctx, db, "post_id = ?", postID)
}

// ListReplies returns the active direct replies of parentID.
func ListReplies(ctx context.Context, db *gorm.DB, parentID uint64) ([]domain.Comment, error) {
	return listComments(ctx, db, "parent_id = ?", parentID)
}

func listComments(ctx context.Context, db *gorm.DB, query string, arg uint64) ([]domain.Comment, error) {
	var out []domain.Comment
	err := db.WithContext(ctx).
		Where(query, arg).
		Where("deleted = ?", false).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// TrashReplies trashes the active direct replies of parentID. Replies of
// replies are left alone.
func TrashReplies(ctx context.Context, db *gorm.DB, parentID uint64) (int64, error) {
	return trashWhere[domain.Comment](ctx, db, "parent_id = ?", parentID)
}

// TrashCommentsByPost trashes every active comment on postID.
func TrashCommentsByPost(ctx context.Context, db *gorm.DB, postID uint64) (int64, error) {
	return trashWhere[domain.Comment](ctx, db, "post_id = ?", postID)
}

// FindCommentLike returns the like edge of userID on commentID, trashed or not.
func FindCommentLike(ctx context.Context, db *gorm.DB, userID, commentID uint64) (*domain.CommentLike, error) {
	return findEdge[domain.CommentLike](ctx, db, "user_id = ? AND comment_id = ?", userID, commentID)
}

// CreateCommentLike inserts an active like edge.
func CreateCommentLike(ctx context.Context, db *gorm.DB, userID, commentID uint64) (*domain.CommentLike, error) {
	e := &domain.CommentLike{UserID: userID, CommentID: commentID}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// CreateCommentAttaches links each hash to commentID.
func CreateCommentAttaches(ctx context.Context, db *gorm.DB, commentID uint64, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	rows := make([]domain.CommentAttach, 0, len(hashes))
	for _, h := range hashes {
		rows = append(rows, domain.CommentAttach{Hash: h, CommentID: commentID})
	}
	return db.WithContext(ctx).Create(&rows).Error
}

// CommentHashes returns the hashes actively linked to commentID.
func CommentHashes(ctx context.Context, db *gorm.DB, commentID uint64) ([]string, error) {
	return activeHashes[domain.CommentAttach](ctx, db, "comment_id", commentID)
}

// CommentHashesByComment returns the active hashes of each comment in
// commentIDs.
func CommentHashesByComment(ctx context.Context, db *gorm.DB, commentIDs []uint64) (map[uint64][]string, error) {
	return hashesByOwner[domain.CommentAttach](ctx, db, "comment_id", commentIDs)
}

// TrashCommentAttaches trashes every active link of commentID.
func TrashCommentAttaches(ctx context.Context, db *gorm.DB, commentID uint64) (int64, error) {
	return trashWhere[domain.CommentAttach](ctx, db, "comment_id = ?", commentID)
}
