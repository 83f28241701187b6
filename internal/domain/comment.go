package domain

// Comment is owned by the comment service. Username is a snapshot taken from
// the user service when the comment is written. ParentID is set for replies.
type Comment struct {
	BaseEntity
	Text       string  `json:"text"        gorm:"type:varchar(1000);not null"`
	PostID     uint64  `json:"post_id"     gorm:"not null;index"`
	UserID     uint64  `json:"user_id"     gorm:"not null;index"`
	Username   string  `json:"username"    gorm:"type:varchar(60)"`
	ParentID   *uint64 `json:"parent_id"   gorm:"index"`
	ReplyCount int64   `json:"reply_count" gorm:"not null;default:0"`
	LikeCount  int64   `json:"like_count"  gorm:"not null;default:0"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// CommentAttach links an attachment hash to a comment.
type CommentAttach struct {
	BaseEntity
	Hash      string `json:"hash"       gorm:"type:varchar(64);not null;index"`
	CommentID uint64 `json:"comment_id" gorm:"not null;index"`
}

// TableName returns the database table name for CommentAttach.
func (CommentAttach) TableName() string { return "comment_attaches" }

// CommentLike is the like edge between a user and a comment.
type CommentLike struct {
	BaseEntity
	UserID    uint64 `json:"user_id"    gorm:"not null;uniqueIndex:ux_comment_like,priority:2;index"`
	CommentID uint64 `json:"comment_id" gorm:"not null;uniqueIndex:ux_comment_like,priority:1"`
}

// TableName returns the database table name for CommentLike.
func (CommentLike) TableName() string { return "comment_likes" }
