// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the generic soft-delete repository shared
// by every entity family.
//
// Every operation takes the *gorm.DB handle explicitly so the same code runs
// inside a transaction (tx) or on the root connection.
//
// Error semantics:
//   - An absent id is not an error. Lookups return (nil, nil); the caller
//     decides whether that becomes a domain "not found".
//   - Database failures are returned unchanged.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/saidovdiyorbek/threads/internal/domain"
)

// ErrNotFound is returned by helpers that must report a missing record as an
// error (idempotency lookups, physical deletes). It aliases
// gorm.ErrRecordNotFound.
var ErrNotFound = gorm.ErrRecordNotFound

// Entity is the constraint satisfied by every model embedding
// domain.BaseEntity.
type Entity interface {
	EntityID() uint64
	IsDeleted() bool
}

// SoftDeleteRepository is the uniform contract over one entity type.
type SoftDeleteRepository[T Entity] interface {
	FindActiveByID(ctx context.Context, db *gorm.DB, id uint64) (*T, error)
	FindFullByID(ctx context.Context, db *gorm.DB, id uint64) (*T, error)
	Trash(ctx context.Context, db *gorm.DB, id uint64) (*T, error)
	TrashActive(ctx context.Context, db *gorm.DB, id uint64) (bool, error)
	TrashMany(ctx context.Context, db *gorm.DB, ids []uint64) ([]*T, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]T, error)
	ListActivePage(ctx context.Context, db *gorm.DB, offset, limit int) ([]T, int64, error)
}

// Base implements SoftDeleteRepository on GORM. The zero value is ready to use.
type Base[T Entity] struct{}

var _ SoftDeleteRepository[domain.Post] = Base[domain.Post]{}

// FindActiveByID returns the row only when it exists and is not trashed.
func (Base[T]) FindActiveByID(ctx context.Context, db *gorm.DB, id uint64) (*T, error) {
	var row T
	err := db.WithContext(ctx).
		Where("id = ? AND deleted = ?", id, false).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindFullByID returns the row regardless of the deleted flag.
func (Base[T]) FindFullByID(ctx context.Context, db *gorm.DB, id uint64) (*T, error) {
	var row T
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Trash flips deleted to true and returns the re-read row. A row that is
// already trashed is returned as is without a write.
func (b Base[T]) Trash(ctx context.Context, db *gorm.DB, id uint64) (*T, error) {
	if _, err := b.TrashActive(ctx, db, id); err != nil {
		return nil, err
	}
	return b.FindFullByID(ctx, db, id)
}

// TrashActive flips deleted to true only while the row is still active and
// reports whether this call made the change. Of two overlapping callers only
// one sees true, so cascades keyed on it run once.
func (Base[T]) TrashActive(ctx context.Context, db *gorm.DB, id uint64) (bool, error) {
	// The audit hook stamps updated_by; updated_at is set by GORM.
	res := db.WithContext(ctx).
		Model(new(T)).
		Where("id = ? AND deleted = ?", id, false).
		Update("deleted", true)
	return res.RowsAffected > 0, res.Error
}

// TrashMany applies Trash per id. The result is aligned with ids, holding
// nil for ids that do not exist. On a database error the rows gathered so far
// are returned together with the error.
func (b Base[T]) TrashMany(ctx context.Context, db *gorm.DB, ids []uint64) ([]*T, error) {
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		row, err := b.Trash(ctx, db, id)
		if err != nil {
			return out, err
		}
		out = append(out, row)
	}
	return out, nil
}

// ListActive returns every non-trashed row ordered by id.
func (Base[T]) ListActive(ctx context.Context, db *gorm.DB) ([]T, error) {
	var out []T
	err := db.WithContext(ctx).
		Where("deleted = ?", false).
		Order("id asc").
		Find(&out).Error
	return out, err
}

// ListActivePage returns one page of non-trashed rows ordered by id and the
// total number of active rows.
func (Base[T]) ListActivePage(ctx context.Context, db *gorm.DB, offset, limit int) ([]T, int64, error) {
	var (
		out   []T
		total int64
	)
	q := db.WithContext(ctx).Model(new(T)).Where("deleted = ?", false)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.WithContext(ctx).
		Where("deleted = ?", false).
		Order("id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, total, err
}
