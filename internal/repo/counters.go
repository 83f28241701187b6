// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the counter maintenance operations.
//
// Counters are denormalized integers changed in place with a single
// "col = col ± 1" statement, so concurrent adjustments on the same row
// serialize on the store's row lock instead of racing in application code.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/saidovdiyorbek/threads/internal/domain"
	"github.com/saidovdiyorbek/threads/internal/observability"
)

// Counter names one adjustable (table, column) pair.
type Counter struct {
	table  string
	column string
}

// String returns "<table>.<column>".
func (c Counter) String() string { return c.table + "." + c.column }

// The complete set of counters. Nothing else can be adjusted.
var (
	UserFollowers  = Counter{table: domain.User{}.TableName(), column: "followers_count"}
	UserFollowing  = Counter{table: domain.User{}.TableName(), column: "following_count"}
	UserPosts      = Counter{table: domain.User{}.TableName(), column: "post_count"}
	PostLikes      = Counter{table: domain.Post{}.TableName(), column: "like_count"}
	PostComments   = Counter{table: domain.Post{}.TableName(), column: "comment_count"}
	CommentLikes   = Counter{table: domain.Comment{}.TableName(), column: "like_count"}
	CommentReplies = Counter{table: domain.Comment{}.TableName(), column: "reply_count"}
)

// Increment adds one to counter on row id.
func Increment(ctx context.Context, db *gorm.DB, counter Counter, id uint64) error {
	return adjust(ctx, db, counter, id, 1)
}

// Decrement subtracts one from counter on row id. There is no floor: a
// counter at zero becomes negative.
func Decrement(ctx context.Context, db *gorm.DB, counter Counter, id uint64) error {
	return adjust(ctx, db, counter, id, -1)
}

// adjust issues exactly one UPDATE. Existence is the caller's concern. The
// statement targets the bare table, so no hook or audit column is involved.
func adjust(ctx context.Context, db *gorm.DB, counter Counter, id uint64, delta int) error {
	err := db.WithContext(ctx).
		Table(counter.table).
		Where("id = ?", id).
		UpdateColumn(counter.column, gorm.Expr(counter.column+" + ?", delta)).Error
	if err != nil {
		return err
	}
	dir := observability.DirectionUp
	if delta < 0 {
		dir = observability.DirectionDown
	}
	observability.ObserveCounter(counter.String(), dir)
	return nil
}

// CounterValue reads the current value of counter on row id.
func CounterValue(ctx context.Context, db *gorm.DB, counter Counter, id uint64) (int64, error) {
	var v int64
	err := db.WithContext(ctx).
		Table(counter.table).
		Where("id = ?", id).
		Select(counter.column).
		Scan(&v).Error
	return v, err
}
