// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the post, post-like and post-attachment
// queries owned by the post service.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/saidovdiyorbek/threads/internal/domain"
)

// Posts is the soft-delete repository for domain.Post.
var Posts Base[domain.Post]

// PostLikeEdges is the soft-delete repository for domain.PostLike.
var PostLikeEdges Base[domain.PostLike]

// CreatePost inserts p.
func CreatePost(ctx context.Context, db *gorm.DB, p *domain.Post) error {
	return db.WithContext(ctx).Create(p).Error
}

// UpdatePostText rewrites the text of p.
func UpdatePostText(ctx context.Context, db *gorm.DB, p *domain.Post, text string) error {
	if err := db.WithContext(ctx).Model(p).Update("text", text).Error; err != nil {
		return err
	}
	p.Text = text
	return nil
}

// TouchPost bumps updated_at (and the audit attribution) of p. Link edits
// call it so list ETags move even though the posts row itself is unchanged.
func TouchPost(ctx context.Context, db *gorm.DB, p *domain.Post) error {
	return db.WithContext(ctx).Model(p).Update("updated_at", time.Now().UTC()).Error
}

// ListRecentPosts returns up to limit active posts, newest first.
func ListRecentPosts(ctx context.Context, db *gorm.DB, limit int) ([]domain.Post, error) {
	var out []domain.Post
	err := db.WithContext(ctx).
		Where("deleted = ?", false).
		Order("id desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListPostsByUser returns the active posts of userID, newest first.
func ListPostsByUser(ctx context.Context, db *gorm.DB, userID uint64) ([]domain.Post, error) {
	var out []domain.Post
	err := db.WithContext(ctx).
		Where("user_id = ? AND deleted = ?", userID, false).
		Order("id desc").
		Find(&out).Error
	return out, err
}

// ListLikedPosts returns the active posts that userID has an active like on,
// most recently liked first.
func ListLikedPosts(ctx context.Context, db *gorm.DB, userID uint64) ([]domain.Post, error) {
	var out []domain.Post
	err := db.WithContext(ctx).
		Model(&domain.Post{}).
		Joins("JOIN post_likes pl ON pl.post_id = posts.id").
		Where("pl.user_id = ? AND pl.deleted = ? AND posts.deleted = ?", userID, false, false).
		Order("pl.id desc").
		Find(&out).Error
	return out, err
}

// FindPostLike returns the like edge of userID on postID, trashed or not.
func FindPostLike(ctx context.Context, db *gorm.DB, userID, postID uint64) (*domain.PostLike, error) {
	return findEdge[domain.PostLike](ctx, db, "user_id = ? AND post_id = ?", userID, postID)
}

// CreatePostLike inserts an active like edge.
func CreatePostLike(ctx context.Context, db *gorm.DB, userID, postID uint64) (*domain.PostLike, error) {
	e := &domain.PostLike{UserID: userID, PostID: postID}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// CreatePostAttaches links each hash to postID.
func CreatePostAttaches(ctx context.Context, db *gorm.DB, postID uint64, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	rows := make([]domain.PostAttach, 0, len(hashes))
	for _, h := range hashes {
		rows = append(rows, domain.PostAttach{Hash: h, PostID: postID})
	}
	return db.WithContext(ctx).Create(&rows).Error
}

// PostHashes returns the hashes actively linked to postID.
func PostHashes(ctx context.Context, db *gorm.DB, postID uint64) ([]string, error) {
	return activeHashes[domain.PostAttach](ctx, db, "post_id", postID)
}

// PostHashesByPost returns the active hashes of each post in postIDs.
func PostHashesByPost(ctx context.Context, db *gorm.DB, postIDs []uint64) (map[uint64][]string, error) {
	return hashesByOwner[domain.PostAttach](ctx, db, "post_id", postIDs)
}

// TrashPostAttaches trashes the active links of postID. With no hashes given
// every link of the post is trashed.
func TrashPostAttaches(ctx context.Context, db *gorm.DB, postID uint64, hashes ...string) (int64, error) {
	if len(hashes) == 0 {
		return trashWhere[domain.PostAttach](ctx, db, "post_id = ?", postID)
	}
	return trashWhere[domain.PostAttach](ctx, db, "post_id = ? AND hash IN ?", postID, hashes)
}
