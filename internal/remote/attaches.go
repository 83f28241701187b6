package remote

import (
	"context"
	"net/http"
	"time"
)

// HashCheckRequest asks whether one hash exists and belongs to UserID.
type HashCheckRequest struct {
	Hash   string `json:"hash"`
	UserID uint64 `json:"user_id"`
}

// HashesCheckRequest asks whether every hash exists and belongs to UserID.
type HashesCheckRequest struct {
	Hashes []string `json:"hashes"`
	UserID uint64   `json:"user_id"`
}

// Attaches calls the attach service.
type Attaches struct{ c *Client }

// NewAttaches builds an Attaches client.
func NewAttaches(baseURL string, timeout time.Duration) *Attaches {
	return &Attaches{c: New("attach", baseURL, timeout)}
}

// NewAttachesFrom wraps an existing Client.
func NewAttachesFrom(c *Client) *Attaches { return &Attaches{c: c} }

// Exists checks a single hash. The attach service raises a not-found envelope
// for a missing hash; that is returned as false.
func (a *Attaches) Exists(ctx context.Context, hash string, userID uint64) (bool, error) {
	return a.c.exists(ctx, "attach_exists", http.MethodPost, InternalPrefix+"/attaches/exists",
		HashCheckRequest{Hash: hash, UserID: userID})
}

// ListExists checks a batch of hashes in one round trip. It is true only when
// all of them exist and belong to userID.
func (a *Attaches) ListExists(ctx context.Context, hashes []string, userID uint64) (bool, error) {
	if len(hashes) == 0 {
		return true, nil
	}
	return a.c.exists(ctx, "attach_list_exists", http.MethodPost, InternalPrefix+"/attaches/hashes/exists",
		HashesCheckRequest{Hashes: hashes, UserID: userID})
}

// DeleteList removes the attachments (rows and files) for hashes.
func (a *Attaches) DeleteList(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	return a.c.do(ctx, "attach_delete_list", http.MethodDelete, InternalPrefix+"/attaches/delete-list", hashes, nil)
}
