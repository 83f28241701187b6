package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/saidovdiyorbek/threads/internal/http/middleware"
	"github.com/saidovdiyorbek/threads/internal/repo"
	"github.com/saidovdiyorbek/threads/internal/utils"
)

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds the page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// pathID parses the named path parameter as an entity id. On failure the
// request is answered with 400 and ok is false.
func pathID(c *gin.Context, name string) (id uint64, ok bool) {
	id, ok = utils.ParseID(c.Param(name))
	if !ok {
		fail(c, http.StatusBadRequest, CodeBadRequest, name+" must be a positive integer")
	}
	return id, ok
}

// bindJSON decodes the body into dst and answers 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, CodeBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// pageStats computes the ETag inputs for the page a list handler is about
// to serve.
func pageStats[T repo.Entity](c *gin.Context, db *gorm.DB, page, pageSize int) (repo.ListStats, error) {
	return repo.ActiveStats[T](c.Request.Context(), db, (page-1)*pageSize, pageSize)
}

// notModified sets a weak ETag derived from st and the requested page and
// reports whether the client's If-None-Match already matches it, in which
// case 304 has been written.
func notModified(c *gin.Context, resource string, st repo.ListStats, page, pageSize int) bool {
	var ts int64
	if st.MaxUpdatedAt != nil {
		ts = st.MaxUpdatedAt.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%d:%d:%x:%d:%d"`, resource, st.Count, ts, st.Digest, page, pageSize)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && strings.TrimSpace(inm) == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// created writes a create response: 201 for a new resource, 200 with
// Idempotency-Replayed when a stored result was replayed.
func created(c *gin.Context, body any, replayed bool) {
	if replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		ok(c, http.StatusOK, body)
		return
	}
	ok(c, http.StatusCreated, body)
}

func idempotencyKey(c *gin.Context) string {
	key, _ := middleware.GetIdempotencyKey(c)
	return key
}
