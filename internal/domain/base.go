// Package domain defines the persistence models shared by the user, post,
// comment and attach services. Every model embeds BaseEntity, which carries
// the common audit columns and the boolean soft-delete flag.
package domain

import (
	"time"

	"gorm.io/gorm"

	"github.com/saidovdiyorbek/threads/internal/actor"
)

// BaseEntity is the common persisted shape.
//
// Fields:
//   - ID: surrogate key assigned on first persist, never changed afterwards.
//   - CreatedAt / UpdatedAt: maintained by GORM.
//   - CreatedBy / UpdatedBy: attribution taken from the actor carried by the
//     statement context (see the hooks below).
//   - Deleted: soft-delete flag. Standard reads filter it out; only explicit
//     "full" lookups return trashed rows.
type BaseEntity struct {
	ID        uint64    `json:"id"                   gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by,omitempty" gorm:"type:varchar(64)"`
	UpdatedBy string    `json:"updated_by,omitempty" gorm:"type:varchar(64)"`
	Deleted   bool      `json:"deleted"              gorm:"not null;default:false;index"`
}

// EntityID returns the primary key.
func (b BaseEntity) EntityID() uint64 { return b.ID }

// IsDeleted reports whether the row has been trashed.
func (b BaseEntity) IsDeleted() bool { return b.Deleted }

// BeforeCreate stamps the creating actor.
func (b *BaseEntity) BeforeCreate(tx *gorm.DB) error {
	who := attribution(tx)
	if b.CreatedBy == "" {
		b.CreatedBy = who
	}
	b.UpdatedBy = who
	return nil
}

// BeforeUpdate stamps the updating actor. SetColumn is required so that
// column-targeted updates (Update/Updates with a map) persist the value too.
func (b *BaseEntity) BeforeUpdate(tx *gorm.DB) error {
	who := attribution(tx)
	b.UpdatedBy = who
	tx.Statement.SetColumn("UpdatedBy", who)
	return nil
}

func attribution(tx *gorm.DB) string {
	if tx == nil || tx.Statement == nil {
		return actor.System
	}
	if a, ok := actor.From(tx.Statement.Context); ok {
		return a.Attribution()
	}
	return actor.System
}
