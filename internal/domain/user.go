package domain

// User status values.
const (
	UserStatusActive  = "ACTIVE"
	UserStatusBlocked = "BLOCKED"
)

// User is an account owned by the user service. The three counters are
// denormalized and only changed through repo.Increment / repo.Decrement.
type User struct {
	BaseEntity
	FullName       string `json:"full_name"       gorm:"type:varchar(60)"`
	Username       string `json:"username"        gorm:"type:varchar(60);not null;uniqueIndex"`
	Email          string `json:"email"           gorm:"type:varchar(120);not null;uniqueIndex"`
	PasswordHash   string `json:"-"               gorm:"type:varchar(100);not null"`
	Bio            string `json:"bio"             gorm:"type:varchar(255)"`
	Status         string `json:"status"          gorm:"type:varchar(16);not null;default:'ACTIVE'"`
	Role           string `json:"role"            gorm:"type:varchar(16);not null;default:'USER'"`
	FollowersCount int64  `json:"followers_count" gorm:"not null;default:0"`
	FollowingCount int64  `json:"following_count" gorm:"not null;default:0"`
	PostCount      int64  `json:"post_count"      gorm:"not null;default:0"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// UserFollow is the follow edge ProfileID -> FollowID. Unfollow trashes the
// edge and a later follow revives it, so one row exists per ordered pair.
type UserFollow struct {
	BaseEntity
	ProfileID uint64 `json:"profile_id" gorm:"not null;uniqueIndex:ux_follow_pair,priority:1"`
	FollowID  uint64 `json:"follow_id"  gorm:"not null;uniqueIndex:ux_follow_pair,priority:2;index"`
}

// TableName returns the database table name for UserFollow.
func (UserFollow) TableName() string { return "user_follows" }
