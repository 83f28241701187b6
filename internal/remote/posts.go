package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Posts calls the post service.
type Posts struct{ c *Client }

// NewPosts builds a Posts client.
func NewPosts(baseURL string, timeout time.Duration) *Posts {
	return &Posts{c: New("post", baseURL, timeout)}
}

// NewPostsFrom wraps an existing Client.
func NewPostsFrom(c *Client) *Posts { return &Posts{c: c} }

// Exists reports whether post id is active. The post service answers a plain
// boolean.
func (p *Posts) Exists(ctx context.Context, id uint64) (bool, error) {
	return p.c.exists(ctx, "post_exists", http.MethodGet, fmt.Sprintf("%s/posts/%d/exists", InternalPrefix, id), nil)
}

// IncrementCommentCount adds one to the post's comment counter.
func (p *Posts) IncrementCommentCount(ctx context.Context, id uint64) error {
	return p.c.do(ctx, "post_comment_count_increment", http.MethodPut, fmt.Sprintf("%s/posts/%d/comment-count/increment", InternalPrefix, id), nil, nil)
}

// DecrementCommentCount subtracts one from the post's comment counter.
func (p *Posts) DecrementCommentCount(ctx context.Context, id uint64) error {
	return p.c.do(ctx, "post_comment_count_decrement", http.MethodPut, fmt.Sprintf("%s/posts/%d/comment-count/decrement", InternalPrefix, id), nil, nil)
}
