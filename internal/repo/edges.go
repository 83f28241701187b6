// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file holds the helpers shared by the edge tables
// (follows, likes, attachment links). Edges are never removed: unfollow and
// unlike trash them, and a later follow or like revives the same row.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// findEdge returns the first row of T matching query, trashed or not.
func findEdge[T Entity](ctx context.Context, db *gorm.DB, query string, args ...any) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where(query, args...).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Revive clears the deleted flag on a trashed edge and reports whether this
// call made the change. False means the edge was already active.
func Revive[T Entity](ctx context.Context, db *gorm.DB, edge *T) (bool, error) {
	res := db.WithContext(ctx).
		Model(edge).
		Where("deleted = ?", true).
		Update("deleted", false)
	return res.RowsAffected > 0, res.Error
}

// trashWhere trashes every active row of T matching query and returns how many
// rows changed.
func trashWhere[T Entity](ctx context.Context, db *gorm.DB, query string, args ...any) (int64, error) {
	res := db.WithContext(ctx).
		Model(new(T)).
		Where(query, args...).
		Where("deleted = ?", false).
		Update("deleted", true)
	return res.RowsAffected, res.Error
}

// activeHashes plucks the hash column of the active attachment links of one
// owner, in insertion order.
func activeHashes[T Entity](ctx context.Context, db *gorm.DB, ownerColumn string, ownerID uint64) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Model(new(T)).
		Where(ownerColumn+" = ? AND deleted = ?", ownerID, false).
		Order("id asc").
		Pluck("hash", &out).Error
	return out, err
}

// hashesByOwner groups the active attachment hashes of several owners.
func hashesByOwner[T Entity](ctx context.Context, db *gorm.DB, ownerColumn string, ownerIDs []uint64) (map[uint64][]string, error) {
	out := make(map[uint64][]string, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		OwnerID uint64
		Hash    string
	}
	err := db.WithContext(ctx).
		Model(new(T)).
		Select(ownerColumn+" AS owner_id, hash").
		Where(ownerColumn+" IN ? AND deleted = ?", ownerIDs, false).
		Order("id asc").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.OwnerID] = append(out[r.OwnerID], r.Hash)
	}
	return out, nil
}
