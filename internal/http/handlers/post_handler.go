// Post HTTP handlers.
//
// Public endpoints:
//   - POST   /posts                        (publish, Idempotency-Key aware)
//   - GET    /posts                        (list, paginated, ETag support)
//   - GET    /posts/search?q=              (rank recent posts by word overlap)
//   - GET    /posts/{id}
//   - PUT    /posts/{id}                   (owner or admin)
//   - DELETE /posts/{id}                   (trash with cascade)
//   - GET    /posts/users/{userId}         (a user's posts)
//   - GET    /posts/users/{userId}/liked   (posts a user likes)
//   - POST   /posts/{id}/like
//   - POST   /posts/{id}/unlike
//
// Internal endpoints:
//   - GET /internal/api/v1/posts/{id}/exists
//   - PUT /internal/api/v1/posts/{id}/comment-count/{increment|decrement}
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/saidovdiyorbek/threads/internal/domain"
	"github.com/saidovdiyorbek/threads/internal/services"
	"github.com/saidovdiyorbek/threads/internal/utils"
)

// PostService defines the post operations consumed by the post handlers.
type PostService interface {
	Create(ctx context.Context, in services.CreatePostInput, idemKey string) (*services.PostDetail, bool, error)
	Get(ctx context.Context, id uint64) (*services.PostDetail, error)
	ListPage(ctx context.Context, page, pageSize int) ([]services.PostDetail, int64, error)
	Update(ctx context.Context, id uint64, in services.UpdatePostInput) (*services.PostDetail, error)
	Delete(ctx context.Context, id uint64) error
	ByUser(ctx context.Context, userID uint64) (*services.UserPosts, error)
	Liked(ctx context.Context, userID uint64) ([]services.PostDetail, error)
	Like(ctx context.Context, postID uint64) error
	Unlike(ctx context.Context, postID uint64) error
	Search(ctx context.Context, q string, limit int) ([]services.PostHit, error)

	Exists(ctx context.Context, id uint64) (bool, error)
	IncrementCommentCount(ctx context.Context, id uint64) error
	DecrementCommentCount(ctx context.Context, id uint64) error
}

// PostHandler serves the post service endpoints.
type PostHandler struct {
	svc PostService
}

// NewPostHandler binds a PostHandler to svc.
func NewPostHandler(svc PostService) *PostHandler { return &PostHandler{svc: svc} }

// CreatePostRequest is the JSON payload for publishing a post.
type CreatePostRequest struct {
	Text     string   `json:"text" example:"Hello, threads"`
	ParentID *uint64  `json:"parent_id" example:"7"`
	Hashes   []string `json:"hashes"`
}

// UpdatePostRequest is the JSON payload for editing a post. An absent
// hashes field keeps the current attachments; an empty array removes them.
type UpdatePostRequest struct {
	Text   *string   `json:"text"`
	Hashes *[]string `json:"hashes"`
}

// ListPostsResponse wraps a page of posts and pagination information.
type ListPostsResponse struct {
	Posts      []services.PostDetail `json:"posts"`
	Pagination Pagination            `json:"pagination"`
}

// CreatePost godoc
// @ID          createPost
// @Summary     Publish a post
// @Description Repeating the request with the same Idempotency-Key returns the first post with 200 and Idempotency-Replayed.
// @Tags        Posts
// @Accept      json
// @Produce     json
// @Param       X-User-ID        header  string  true   "Caller id"
// @Param       Idempotency-Key  header  string  false  "Deduplicates retries"
// @Param       body             body    handlers.CreatePostRequest  true  "Post"
// @Success     201  {object}  services.PostDetail
// @Success     200  {object}  services.PostDetail  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse  "No caller"
// @Failure     404  {object}  handlers.ErrorResponse  "Parent post or attachment not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Sibling service failed"
// @Router      /posts [post]
func (h *PostHandler) CreatePost(c *gin.Context) {
	var req CreatePostRequest
	if !bindJSON(c, &req) {
		return
	}
	p, replayed, err := h.svc.Create(c.Request.Context(), services.CreatePostInput{
		Text:     req.Text,
		ParentID: req.ParentID,
		Hashes:   req.Hashes,
	}, idempotencyKey(c))
	if err != nil {
		failErr(c, err)
		return
	}
	created(c, p, replayed)
}

// GetPost godoc
// @ID          getPost
// @Summary     Get a post
// @Tags        Posts
// @Produce     json
// @Param       id   path  int  true  "Post ID"
// @Success     200  {object}  services.PostDetail
// @Failure     404  {object}  handlers.ErrorResponse  "Post not found"
// @Router      /posts/{id} [get]
func (h *PostHandler) GetPost(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	p, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// SearchPostsResponse carries the ranked hits of a post search.
type SearchPostsResponse struct {
	Query string             `json:"query"`
	Hits  []services.PostHit `json:"hits"`
}

// SearchPosts godoc
// @ID          searchPosts
// @Summary     Search recent posts
// @Description Ranks the newest active posts by the word overlap of their text with q. Hashtags and mentions match their bare word.
// @Tags        Posts
// @Produce     json
// @Param       q      query  string  true   "Free-text query"
// @Param       limit  query  int     false  "Maximum hits"  minimum(1) maximum(50) default(10)
// @Success     200  {object}  handlers.SearchPostsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing query"
// @Router      /posts/search [get]
func (h *PostHandler) SearchPosts(c *gin.Context) {
	q := c.Query("q")
	hits, err := h.svc.Search(c.Request.Context(), q, utils.AtoiDefault(c.Query("limit"), 0))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SearchPostsResponse{Query: strings.TrimSpace(q), Hits: hits})
}

// ListPosts godoc
// @ID          listPosts
// @Summary     List active posts (paginated)
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Posts
// @Produce     json
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListPostsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Router      /posts [get]
func (h *PostHandler) ListPosts(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	if svc, isDB := h.svc.(*services.PostService); isDB {
		st, err := pageStats[domain.Post](c, svc.DB, page, pageSize)
		if err == nil && notModified(c, "posts", st, page, pageSize) {
			return
		}
	}

	items, total, err := h.svc.ListPage(ctx, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListPostsResponse{Posts: items, Pagination: newPagination(page, pageSize, total)})
}

// UpdatePost godoc
// @ID          updatePost
// @Summary     Edit a post
// @Tags        Posts
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller id"
// @Param       id         path    int     true  "Post ID"
// @Param       body       body    handlers.UpdatePostRequest  true  "Changed fields"
// @Success     200  {object}  services.PostDetail
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Post or attachment not found"
// @Router      /posts/{id} [put]
func (h *PostHandler) UpdatePost(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req UpdatePostRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.svc.Update(c.Request.Context(), id, services.UpdatePostInput{Text: req.Text, Hashes: req.Hashes})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// DeletePost godoc
// @ID          deletePost
// @Summary     Trash a post
// @Description Trashes the post, its likes, attachment links and comments, and adjusts the owner's post counter.
// @Tags        Posts
// @Param       X-User-ID  header  string  true  "Caller id"
// @Param       id         path    int     true  "Post ID"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "Post not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Sibling service failed"
// @Router      /posts/{id} [delete]
func (h *PostHandler) DeletePost(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// PostsByUser godoc
// @ID          postsByUser
// @Summary     A user's active posts
// @Tags        Posts
// @Produce     json
// @Param       userId  path  int  true  "User ID"
// @Success     200  {object}  services.UserPosts
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /posts/users/{userId} [get]
func (h *PostHandler) PostsByUser(c *gin.Context) {
	userID, valid := pathID(c, "userId")
	if !valid {
		return
	}
	out, err := h.svc.ByUser(c.Request.Context(), userID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// LikedPosts godoc
// @ID          likedPosts
// @Summary     Posts a user likes
// @Tags        Posts
// @Produce     json
// @Param       userId  path  int  true  "User ID"
// @Success     200  {array}  services.PostDetail
// @Router      /posts/users/{userId}/liked [get]
func (h *PostHandler) LikedPosts(c *gin.Context) {
	userID, valid := pathID(c, "userId")
	if !valid {
		return
	}
	out, err := h.svc.Liked(c.Request.Context(), userID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// LikePost godoc
// @ID          likePost
// @Summary     Like a post
// @Tags        Posts
// @Param       X-User-ID  header  string  true  "Caller id"
// @Param       id         path    int     true  "Post ID"
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "No caller"
// @Failure     404  {object}  handlers.ErrorResponse  "Post not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already liked or own post"
// @Router      /posts/{id}/like [post]
func (h *PostHandler) LikePost(c *gin.Context) {
	h.toggle(c, h.svc.Like)
}

// UnlikePost godoc
// @ID          unlikePost
// @Summary     Remove a like from a post
// @Tags        Posts
// @Param       X-User-ID  header  string  true  "Caller id"
// @Param       id         path    int     true  "Post ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Post not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not liked"
// @Router      /posts/{id}/unlike [post]
func (h *PostHandler) UnlikePost(c *gin.Context) {
	h.toggle(c, h.svc.Unlike)
}

func (h *PostHandler) toggle(c *gin.Context, fn func(context.Context, uint64) error) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := fn(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// Exists answers the internal existence probe with a plain boolean.
func (h *PostHandler) Exists(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	found, err := h.svc.Exists(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, found)
}

// IncrementCommentCount adds one to the post's comment counter.
func (h *PostHandler) IncrementCommentCount(c *gin.Context) {
	h.toggle(c, h.svc.IncrementCommentCount)
}

// DecrementCommentCount subtracts one from the post's comment counter.
func (h *PostHandler) DecrementCommentCount(c *gin.Context) {
	h.toggle(c, h.svc.DecrementCommentCount)
}
