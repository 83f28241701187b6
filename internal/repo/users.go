// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the user and follow-edge queries owned by
// the user service.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/saidovdiyorbek/threads/internal/domain"
)

// Users is the soft-delete repository for domain.User.
var Users Base[domain.User]

// Follows is the soft-delete repository for domain.UserFollow.
var Follows Base[domain.UserFollow]

// CreateUser inserts u. Username and email are expected to be normalized.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return db.WithContext(ctx).Create(u).Error
}

// UsernameTaken reports whether any row (trashed or not) other than exceptID
// already uses username. The unique index spans trashed rows as well.
func UsernameTaken(ctx context.Context, db *gorm.DB, username string, exceptID uint64) (bool, error) {
	return taken(ctx, db, "username", username, exceptID)
}

// EmailTaken is UsernameTaken for the email column.
func EmailTaken(ctx context.Context, db *gorm.DB, email string, exceptID uint64) (bool, error) {
	return taken(ctx, db, "email", email, exceptID)
}

func taken(ctx context.Context, db *gorm.DB, column, value string, exceptID uint64) (bool, error) {
	var n int64
	q := db.WithContext(ctx).Model(&domain.User{}).Where(column+" = ?", value)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	err := q.Count(&n).Error
	return n > 0, err
}

// UpdateUser writes the given columns on u. Counters are never part of fields.
func UpdateUser(ctx context.Context, db *gorm.DB, u *domain.User, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return db.WithContext(ctx).Model(u).Updates(fields).Error
}

// FindFollow returns the ProfileID -> FollowID edge whatever its deleted flag,
// or nil when the pair never followed.
func FindFollow(ctx context.Context, db *gorm.DB, profileID, followID uint64) (*domain.UserFollow, error) {
	return findEdge[domain.UserFollow](ctx, db, "profile_id = ? AND follow_id = ?", profileID, followID)
}

// CreateFollow inserts a fresh active edge.
func CreateFollow(ctx context.Context, db *gorm.DB, profileID, followID uint64) (*domain.UserFollow, error) {
	e := &domain.UserFollow{ProfileID: profileID, FollowID: followID}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}
