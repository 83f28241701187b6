package domain

// Post is owned by the post service. ParentID points at the reposted post,
// when there is one.
type Post struct {
	BaseEntity
	Text         string  `json:"text"          gorm:"type:varchar(255)"`
	UserID       uint64  `json:"user_id"       gorm:"not null;index"`
	ParentID     *uint64 `json:"parent_id"     gorm:"index"`
	LikeCount    int64   `json:"like_count"    gorm:"not null;default:0"`
	CommentCount int64   `json:"comment_count" gorm:"not null;default:0"`
}

// TableName returns the database table name for Post.
func (Post) TableName() string { return "posts" }

// PostAttach links an attachment hash (owned by the attach service) to a post.
type PostAttach struct {
	BaseEntity
	Hash   string `json:"hash"    gorm:"type:varchar(64);not null;index"`
	PostID uint64 `json:"post_id" gorm:"not null;index"`
}

// TableName returns the database table name for PostAttach.
func (PostAttach) TableName() string { return "post_attaches" }

// PostLike is the like edge between a user and a post. Unlike trashes the
// edge, and liking again revives it.
type PostLike struct {
	BaseEntity
	UserID uint64 `json:"user_id" gorm:"not null;uniqueIndex:ux_post_like,priority:2;index"`
	PostID uint64 `json:"post_id" gorm:"not null;uniqueIndex:ux_post_like,priority:1"`
}

// TableName returns the database table name for PostLike.
func (PostLike) TableName() string { return "post_likes" }
