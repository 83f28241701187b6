// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the small aggregate query used for
// conditional list responses (weak ETags) in the HTTP layer.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cespare/xxhash/v2"
	"gorm.io/gorm"
)

// ListStats summarizes one page of the active rows of a table.
//
// Fields:
//   - Count:        number of active rows in the whole table
//   - MaxUpdatedAt: greatest updated_at among them, nil when Count is 0
//   - Digest:       xxhash of the page rows as they serialize, so counter
//     statements (which leave updated_at alone) still move it
type ListStats struct {
	Count        int64
	MaxUpdatedAt *time.Time
	Digest       uint64
}

// ActiveStats computes ListStats for the page of active rows of T starting
// at offset, in the order ListActivePage returns them. A limit <= 0 digests
// every active row.
func ActiveStats[T Entity](ctx context.Context, db *gorm.DB, offset, limit int) (ListStats, error) {
	var st ListStats
	q := func() *gorm.DB {
		return db.WithContext(ctx).Model(new(T)).Where("deleted = ?", false)
	}

	if err := q().Count(&st.Count).Error; err != nil {
		return ListStats{}, err
	}
	if st.Count == 0 {
		return st, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err := q().Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return ListStats{}, err
	}
	st.MaxUpdatedAt = &row.UpdatedAt

	page := q().Order("id asc").Offset(offset)
	if limit > 0 {
		page = page.Limit(limit)
	}
	var rows []T
	if err := page.Find(&rows).Error; err != nil {
		return ListStats{}, err
	}
	d := xxhash.New()
	enc := json.NewEncoder(d)
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return ListStats{}, err
		}
	}
	st.Digest = d.Sum64()
	return st, nil
}
