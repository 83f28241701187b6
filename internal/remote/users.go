package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// UserShortInfo is the identity snapshot other services keep next to their
// rows (comment author names, post listings).
type UserShortInfo struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
}

// Users calls the user service.
type Users struct{ c *Client }

// NewUsers builds a Users client.
func NewUsers(baseURL string, timeout time.Duration) *Users {
	return &Users{c: New("user", baseURL, timeout)}
}

// NewUsersFrom wraps an existing Client.
func NewUsersFrom(c *Client) *Users { return &Users{c: c} }

// Exists reports whether user id is active. The user service answers a
// not-found envelope for absent users; that is returned as false.
func (u *Users) Exists(ctx context.Context, id uint64) (bool, error) {
	return u.c.exists(ctx, "user_exists", http.MethodGet, fmt.Sprintf("%s/users/%d/exists", InternalPrefix, id), nil)
}

// ShortInfo returns the id and username of an active user.
func (u *Users) ShortInfo(ctx context.Context, id uint64) (*UserShortInfo, error) {
	var out UserShortInfo
	if err := u.c.do(ctx, "user_short_info", http.MethodGet, fmt.Sprintf("%s/users/%d/short-info", InternalPrefix, id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IncrementPostCount adds one to the user's post counter.
func (u *Users) IncrementPostCount(ctx context.Context, id uint64) error {
	return u.c.do(ctx, "user_post_count_increment", http.MethodPut, fmt.Sprintf("%s/users/%d/post-count/increment", InternalPrefix, id), nil, nil)
}

// DecrementPostCount subtracts one from the user's post counter.
func (u *Users) DecrementPostCount(ctx context.Context, id uint64) error {
	return u.c.do(ctx, "user_post_count_decrement", http.MethodPut, fmt.Sprintf("%s/users/%d/post-count/decrement", InternalPrefix, id), nil, nil)
}
