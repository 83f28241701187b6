// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the attachment queries owned by the
// attach service. Attachment rows are the only rows ever removed physically.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/saidovdiyorbek/threads/internal/domain"
)

// Attaches is the soft-delete repository for domain.Attach.
var Attaches Base[domain.Attach]

// CreateAttach inserts a.
func CreateAttach(ctx context.Context, db *gorm.DB, a *domain.Attach) error {
	return db.WithContext(ctx).Create(a).Error
}

// FindAttachByHash returns the active attachment with hash, or nil.
func FindAttachByHash(ctx context.Context, db *gorm.DB, hash string) (*domain.Attach, error) {
	var a domain.Attach
	err := db.WithContext(ctx).
		Where("hash = ? AND deleted = ?", hash, false).
		Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AttachOwned reports whether hash is active and uploaded by userID.
func AttachOwned(ctx context.Context, db *gorm.DB, hash string, userID uint64) (bool, error) {
	n, err := CountOwnedHashes(ctx, db, []string{hash}, userID)
	return n == 1, err
}

// CountOwnedHashes counts the distinct active hashes among hashes that were
// uploaded by userID.
func CountOwnedHashes(ctx context.Context, db *gorm.DB, hashes []string, userID uint64) (int64, error) {
	if len(hashes) == 0 {
		return 0, nil
	}
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Attach{}).
		Where("hash IN ? AND user_id = ? AND deleted = ?", hashes, userID, false).
		Distinct("hash").
		Count(&n).Error
	return n, err
}

// ListAttachesByHash returns every row (trashed or not) whose hash is in hashes.
func ListAttachesByHash(ctx context.Context, db *gorm.DB, hashes []string) ([]domain.Attach, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	var out []domain.Attach
	err := db.WithContext(ctx).
		Where("hash IN ?", hashes).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// DeleteAttachesByHash removes the rows physically and returns how many went.
func DeleteAttachesByHash(ctx context.Context, db *gorm.DB, hashes []string) (int64, error) {
	if len(hashes) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Where("hash IN ?", hashes).
		Delete(&domain.Attach{})
	return res.RowsAffected, res.Error
}
