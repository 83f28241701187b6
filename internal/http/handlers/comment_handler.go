// Comment HTTP handlers.
//
// Public endpoints:
//   - POST   /comments                     (comment or reply, Idempotency-Key aware)
//   - GET    /comments                     (list, paginated, ETag support)
//   - GET    /comments/{id}
//   - PUT    /comments/{id}                (author only)
//   - DELETE /comments/{id}                (trash with replies)
//   - GET    /comments/users/{userId}
//   - GET    /comments/posts/{postId}
//   - GET    /comments/{id}/replies
//   - POST   /comments/{id}/like
//   - POST   /comments/{id}/unlike
//
// Internal endpoint:
//   - DELETE /internal/api/v1/comments/posts/{postId}
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/saidovdiyorbek/threads/internal/domain"
	"github.com/saidovdiyorbek/threads/internal/remote"
	"github.com/saidovdiyorbek/threads/internal/services"
)

// CommentService defines the comment operations consumed by the handlers.
type CommentService interface {
	Create(ctx context.Context, in services.CreateCommentInput, idemKey string) (*services.CommentDetail, bool, error)
	Get(ctx context.Context, id uint64) (*services.CommentDetail, error)
	ListPage(ctx context.Context, page, pageSize int) ([]services.CommentDetail, int64, error)
	Update(ctx context.Context, id uint64, text string) (*services.CommentDetail, error)
	Delete(ctx context.Context, id uint64) error
	ByUser(ctx context.Context, userID uint64) (*services.UserComments, error)
	ByPost(ctx context.Context, postID uint64) (*services.PostComments, error)
	RepliesOf(ctx context.Context, parentID uint64) (*services.Replies, error)
	Like(ctx context.Context, commentID uint64) error
	Unlike(ctx context.Context, commentID uint64) error

	TrashByPost(ctx context.Context, postID uint64) (int64, error)
}

// CommentHandler serves the comment service endpoints.
type CommentHandler struct {
	svc CommentService
}

// NewCommentHandler binds a CommentHandler to svc.
func NewCommentHandler(svc CommentService) *CommentHandler { return &CommentHandler{svc: svc} }

// CreateCommentRequest is the JSON payload for commenting on a post or
// replying to a comment.
type CreateCommentRequest struct {
	Text     string   `json:"text" example:"Nice one"`
	PostID   uint64   `json:"post_id" binding:"required" example:"10"`
	ParentID *uint64  `json:"parent_id"`
	Hashes   []string `json:"hashes"`
}

// UpdateCommentRequest is the JSON payload for editing a comment.
type UpdateCommentRequest struct {
	Text string `json:"text" example:"Nice one, edited"`
}

// ListCommentsResponse wraps a page of comments and pagination information.
type ListCommentsResponse struct {
	Comments   []services.CommentDetail `json:"comments"`
	Pagination Pagination               `json:"pagination"`
}

// CreateComment godoc
// @ID          createComment
// @Summary     Comment on a post
// @Description With parent_id the comment is a reply; the parent must be an active comment of the same post.
// @Tags        Comments
// @Accept      json
// @Produce     json
// @Param       X-User-ID        header  string  true   "Caller id"
// @Param       Idempotency-Key  header  string  false  "Deduplicates retries"
// @Param       body             body    handlers.CreateCommentRequest  true  "Comment"
// @Success     201  {object}  services.CommentDetail
// @Success     200  {object}  services.CommentDetail  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Post, parent or attachment not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Sibling service failed"
// @Router      /comments [post]
func (h *CommentHandler) CreateComment(c *gin.Context) {
	var req CreateCommentRequest
	if !bindJSON(c, &req) {
		return
	}
	cm, replayed, err := h.svc.Create(c.Request.Context(), services.CreateCommentInput{
		Text:     req.Text,
		PostID:   req.PostID,
		ParentID: req.ParentID,
		Hashes:   req.Hashes,
	}, idempotencyKey(c))
	if err != nil {
		failErr(c, err)
		return
	}
	created(c, cm, replayed)
}

// GetComment godoc
// @ID          getComment
// @Summary     Get a comment
// @Tags        Comments
// @Produce     json
// @Param       id   path  int  true  "Comment ID"
// @Success     200  {object}  services.CommentDetail
// @Failure     404  {object}  handlers.ErrorResponse  "Comment not found"
// @Router      /comments/{id} [get]
func (h *CommentHandler) GetComment(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	cm, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cm)
}

// ListComments godoc
// @ID          listComments
// @Summary     List active comments (paginated)
// @Tags        Comments
// @Produce     json
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListCommentsResponse
// @Success     304  {string}  string  "Not Modified"
// @Router      /comments [get]
func (h *CommentHandler) ListComments(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	if svc, isDB := h.svc.(*services.CommentService); isDB {
		st, err := pageStats[domain.Comment](c, svc.DB, page, pageSize)
		if err == nil && notModified(c, "comments", st, page, pageSize) {
			return
		}
	}

	items, total, err := h.svc.ListPage(ctx, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListCommentsResponse{Comments: items, Pagination: newPagination(page, pageSize, total)})
}

// UpdateComment godoc
// @ID          updateComment
// @Summary     Edit a comment
// @Tags        Comments
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller id"
// @Param       id         path    int     true  "Comment ID"
// @Param       body       body    handlers.UpdateCommentRequest  true  "New text"
// @Success     200  {object}  services.CommentDetail
// @Failure     403  {object}  handlers.ErrorResponse  "Not the author"
// @Failure     404  {object}  handlers.ErrorResponse  "Comment not found"
// @Router      /comments/{id} [put]
func (h *CommentHandler) UpdateComment(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req UpdateCommentRequest
	if !bindJSON(c, &req) {
		return
	}
	cm, err := h.svc.Update(c.Request.Context(), id, req.Text)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, cm)
}

// DeleteComment godoc
// @ID          deleteComment
// @Summary     Trash a comment
// @Description Trashes the comment, its direct replies, likes and attachment links, and adjusts the post and parent counters.
// @Tags        Comments
// @Param       X-User-ID  header  string  true  "Caller id"
// @Param       id         path    int     true  "Comment ID"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the author"
// @Failure     404  {object}  handlers.ErrorResponse  "Comment not found"
// @Router      /comments/{id} [delete]
func (h *CommentHandler) DeleteComment(c *gin.Context) {
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

// CommentsByUser godoc
// @ID          commentsByUser
// @Summary     A user's active comments
// @Tags        Comments
// @Produce     json
// @Param       userId  path  int  true  "User ID"
// @Success     200  {object}  services.UserComments
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /comments/users/{userId} [get]
func (h *CommentHandler) CommentsByUser(c *gin.Context) {
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

// CommentsByPost godoc
// @ID          commentsByPost
// @Summary     A post's active comments
// @Tags        Comments
// @Produce     json
// @Param       postId  path  int  true  "Post ID"
// @Success     200  {object}  services.PostComments
// @Failure     404  {object}  handlers.ErrorResponse  "Post not found"
// @Router      /comments/posts/{postId} [get]
func (h *CommentHandler) CommentsByPost(c *gin.Context) {
	postID, valid := pathID(c, "postId")
	if !valid {
		return
	}
	out, err := h.svc.ByPost(c.Request.Context(), postID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// Replies godoc
// @ID          commentReplies
// @Summary     Direct replies of a comment
// @Tags        Comments
// @Produce     json
// @Param       id   path  int  true  "Comment ID"
// @Success     200  {object}  services.Replies
// @Failure     404  {object}  handlers.ErrorResponse  "Comment not found"
// @Router      /comments/{id}/replies [get]
func (h *CommentHandler) Replies(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	out, err := h.svc.RepliesOf(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// LikeComment godoc
// @ID          likeComment
// @Summary     Like a comment
// @Tags        Comments
// @Param       X-User-ID  header  string  true  "Caller id"
// @Param       id         path    int     true  "Comment ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Comment not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already liked or own comment"
// @Router      /comments/{id}/like [post]
func (h *CommentHandler) LikeComment(c *gin.Context) {
	h.toggle(c, h.svc.Like)
}

// UnlikeComment godoc
// @ID          unlikeComment
// @Summary     Remove a like from a comment
// @Tags        Comments
// @Param       X-User-ID  header  string  true  "Caller id"
// @Param       id         path    int     true  "Comment ID"
// @Success     204  {string}  string  "No Content"
// @Failure     409  {object}  handlers.ErrorResponse  "Not liked"
// @Router      /comments/{id}/unlike [post]
func (h *CommentHandler) UnlikeComment(c *gin.Context) {
	h.toggle(c, h.svc.Unlike)
}

func (h *CommentHandler) toggle(c *gin.Context, fn func(context.Context, uint64) error) {
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

// TrashByPost trashes the active comments of a post for the post service.
func (h *CommentHandler) TrashByPost(c *gin.Context) {
	postID, valid := pathID(c, "postId")
	if !valid {
		return
	}
	n, err := h.svc.TrashByPost(c.Request.Context(), postID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, remote.TrashedCount{Trashed: n})
}
