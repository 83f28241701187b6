// User HTTP handlers.
//
// Public endpoints:
//   - POST   /users                 (register)
//   - GET    /users                 (list, paginated, ETag support)
//   - GET    /users/{id}            (any account, trashed included)
//   - PUT    /users/{id}            (self or admin)
//   - DELETE /users/{id}            (trash, self or admin)
//   - POST   /users/follow          (follow)
//   - POST   /users/unfollow        (unfollow)
//   - GET    /users/{id}/profile    (stored counters)
//
// Internal endpoints (sibling services only, never proxied):
//   - GET /internal/api/v1/users/{id}/exists
//   - GET /internal/api/v1/users/{id}/short-info
//   - PUT /internal/api/v1/users/{id}/post-count/{increment|decrement}
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/saidovdiyorbek/threads/internal/domain"
	"github.com/saidovdiyorbek/threads/internal/remote"
	"github.com/saidovdiyorbek/threads/internal/services"
)

// UserService defines the account operations consumed by the user handlers.
//
// Implementations must honor the provided context and read the caller from
// it with actor.From.
type UserService interface {
	Create(ctx context.Context, in services.CreateUserInput) (*domain.User, error)
	Get(ctx context.Context, id uint64) (*domain.User, error)
	ListPage(ctx context.Context, page, pageSize int) ([]domain.User, int64, error)
	Update(ctx context.Context, id uint64, in services.UpdateUserInput) (*domain.User, error)
	Delete(ctx context.Context, id uint64) error
	Follow(ctx context.Context, followID uint64) error
	Unfollow(ctx context.Context, unfollowID uint64) error
	Profile(ctx context.Context, id uint64) (*services.Profile, error)

	Exists(ctx context.Context, id uint64) (bool, error)
	ShortInfo(ctx context.Context, id uint64) (*remote.UserShortInfo, error)
	IncrementPostCount(ctx context.Context, id uint64) error
	DecrementPostCount(ctx context.Context, id uint64) error
}

// UserHandler serves the user service endpoints.
type UserHandler struct {
	svc UserService
}

// NewUserHandler binds a UserHandler to svc.
func NewUserHandler(svc UserService) *UserHandler { return &UserHandler{svc: svc} }

// CreateUserRequest is the JSON payload for registering an account.
type CreateUserRequest struct {
	FullName string `json:"full_name" binding:"max=60" example:"Alice Smith"`
	Username string `json:"username"  binding:"required" example:"alice"`
	Email    string `json:"email"     binding:"required" example:"alice@example.com"`
	Password string `json:"password"  binding:"required" example:"s3cret!"`
	Bio      string `json:"bio"       binding:"max=255" example:"Coffee and Go."`
	// Role is USER (default) or ADMIN; ADMIN needs an admin caller.
	Role string `json:"role" example:"USER"`
}

// UpdateUserRequest is the JSON payload for updating an account. Omitted
// fields are left unchanged.
type UpdateUserRequest struct {
	FullName *string `json:"full_name" binding:"omitempty,max=60"`
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Bio      *string `json:"bio" binding:"omitempty,max=255"`
}

// FollowRequest is the JSON payload of POST /users/follow.
type FollowRequest struct {
	FollowID uint64 `json:"follow_id" binding:"required" example:"2"`
}

// UnfollowRequest is the JSON payload of POST /users/unfollow.
type UnfollowRequest struct {
	UnfollowID uint64 `json:"unfollow_id" binding:"required" example:"2"`
}

// ListUsersResponse wraps a page of users and pagination information.
type ListUsersResponse struct {
	Users      []domain.User `json:"users"`
	Pagination Pagination    `json:"pagination"`
}

// CreateUser godoc
// @ID          createUser
// @Summary     Register an account
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false  "Caller id (required to create an ADMIN)"
// @Param       body       body    handlers.CreateUserRequest  true  "Account"
// @Success     201  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Username or email taken"
// @Router      /users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.svc.Create(c.Request.Context(), services.CreateUserInput{
		FullName: req.FullName,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Bio:      req.Bio,
		Role:     req.Role,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// GetUser godoc
// @ID          getUser
// @Summary     Get an account
// @Description Returns the account including its deleted flag.
// @Tags        Users
// @Produce     json
// @Param       id   path  int  true  "User ID"
// @Success     200  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	u, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List active accounts (paginated)
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Users
// @Produce     json
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListUsersResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Router      /users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	if svc, isDB := h.svc.(*services.UserService); isDB {
		st, err := pageStats[domain.User](c, svc.DB, page, pageSize)
		if err == nil && notModified(c, "users", st, page, pageSize) {
			return
		}
	}

	items, total, err := h.svc.ListPage(ctx, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListUsersResponse{Users: items, Pagination: newPagination(page, pageSize, total)})
}

// UpdateUser godoc
// @ID          updateUser
// @Summary     Update an account
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "Caller id"
// @Param       id         path    int     true  "User ID"
// @Param       body       body    handlers.UpdateUserRequest  true  "Changed fields"
// @Success     200  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Username or email taken"
// @Router      /users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.svc.Update(c.Request.Context(), id, services.UpdateUserInput{
		FullName: req.FullName,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Bio:      req.Bio,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// DeleteUser godoc
// @ID          deleteUser
// @Summary     Trash an account
// @Tags        Users
// @Param       X-User-ID  header  string  true  "Caller id"
// @Param       id         path    int     true  "User ID"
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the owner"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
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

// Follow godoc
// @ID          followUser
// @Summary     Follow a user
// @Tags        Users
// @Accept      json
// @Param       X-User-ID  header  string  true  "Caller id"
// @Param       body       body    handlers.FollowRequest  true  "Target"
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "No caller"
// @Failure     404  {object}  handlers.ErrorResponse  "Target not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already followed"
// @Router      /users/follow [post]
func (h *UserHandler) Follow(c *gin.Context) {
	var req FollowRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.Follow(c.Request.Context(), req.FollowID); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// Unfollow godoc
// @ID          unfollowUser
// @Summary     Unfollow a user
// @Tags        Users
// @Accept      json
// @Param       X-User-ID  header  string  true  "Caller id"
// @Param       body       body    handlers.UnfollowRequest  true  "Target"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Target not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not followed"
// @Router      /users/unfollow [post]
func (h *UserHandler) Unfollow(c *gin.Context) {
	var req UnfollowRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.svc.Unfollow(c.Request.Context(), req.UnfollowID); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// Profile godoc
// @ID          userProfile
// @Summary     Account profile with counters
// @Tags        Users
// @Produce     json
// @Param       id   path  int  true  "User ID"
// @Success     200  {object}  services.Profile
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Router      /users/{id}/profile [get]
func (h *UserHandler) Profile(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	p, err := h.svc.Profile(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

//
// Internal
//

// Exists answers true for an active user and 404 otherwise.
func (h *UserHandler) Exists(c *gin.Context) {
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

// ShortInfo returns {id, username} of an active user.
func (h *UserHandler) ShortInfo(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	info, err := h.svc.ShortInfo(c.Request.Context(), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, info)
}

// IncrementPostCount adds one to the user's post counter.
func (h *UserHandler) IncrementPostCount(c *gin.Context) {
	h.adjust(c, h.svc.IncrementPostCount)
}

// DecrementPostCount subtracts one from the user's post counter.
func (h *UserHandler) DecrementPostCount(c *gin.Context) {
	h.adjust(c, h.svc.DecrementPostCount)
}

func (h *UserHandler) adjust(c *gin.Context, fn func(context.Context, uint64) error) {
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
