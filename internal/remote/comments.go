package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// TrashedCount is the answer of bulk trash endpoints.
type TrashedCount struct {
	Trashed int64 `json:"trashed"`
}

// Comments calls the comment service.
type Comments struct{ c *Client }

// NewComments builds a Comments client.
func NewComments(baseURL string, timeout time.Duration) *Comments {
	return &Comments{c: New("comment", baseURL, timeout)}
}

// NewCommentsFrom wraps an existing Client.
func NewCommentsFrom(c *Client) *Comments { return &Comments{c: c} }

// TrashByPost trashes every active comment of postID and returns how many
// were trashed.
func (cm *Comments) TrashByPost(ctx context.Context, postID uint64) (int64, error) {
	var out TrashedCount
	if err := cm.c.do(ctx, "comments_trash_by_post", http.MethodDelete, fmt.Sprintf("%s/comments/posts/%d", InternalPrefix, postID), nil, &out); err != nil {
		return 0, err
	}
	return out.Trashed, nil
}
