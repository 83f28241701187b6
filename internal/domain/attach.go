package domain

// Attach describes an uploaded file. Path is the date-partitioned folder and
// FullPath the file itself. Rows are removed physically together with the
// file when an owner asks for deletion.
type Attach struct {
	BaseEntity
	OriginName  string `json:"origin_name"  gorm:"type:varchar(255)"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type" gorm:"type:varchar(127)"`
	Extension   string `json:"extension"    gorm:"type:varchar(32)"`
	Path        string `json:"-"            gorm:"type:varchar(512);not null"`
	FullPath    string `json:"-"            gorm:"type:varchar(1024);not null"`
	Hash        string `json:"hash"         gorm:"type:varchar(64);not null;uniqueIndex"`
	UserID      uint64 `json:"user_id"      gorm:"not null;index"`
}

// TableName returns the database table name for Attach.
func (Attach) TableName() string { return "attaches" }
